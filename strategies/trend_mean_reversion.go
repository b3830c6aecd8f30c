package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perptrader/market"
)

// TrendMeanReversion buys oversold dips in an hourly uptrend and sells overbought
// spikes in an hourly downtrend.
//
//   - LONG:  trend close > trend EMA, RSI < oversold, low <= lower band, green bar
//   - SHORT: trend close < trend EMA, RSI > overbought, high >= upper band, red bar
type TrendMeanReversion struct {
	Params
}

func NewTrendMeanReversion(p Params) *TrendMeanReversion {
	return &TrendMeanReversion{Params: p}
}

func (s *TrendMeanReversion) Name() string { return "trend-mean-reversion" }

func (s *TrendMeanReversion) Evaluate(snap Snapshot) market.Signal {
	if !snap.Ready || snap.Prev == nil {
		return market.None
	}
	for _, v := range []float64{snap.TrendClose, snap.TrendEMA, snap.RSI, snap.BBUpper, snap.BBLower} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return market.None
		}
	}

	bar := snap.Bar
	sig := market.Signal{
		ATR:   snap.ATR,
		Price: bar.Close,
		Indicators: map[string]float64{
			"rsi":         snap.RSI,
			"atr":         snap.ATR,
			"trend_close": snap.TrendClose,
			"trend_ema":   snap.TrendEMA,
			"bb_upper":    snap.BBUpper,
			"bb_lower":    snap.BBLower,
		},
	}

	switch {
	case snap.TrendClose > snap.TrendEMA &&
		snap.RSI < s.RSIOversold &&
		bar.Low <= snap.BBLower &&
		bar.Green():
		sig.Side = market.Long
		sig.Reason = fmt.Sprintf("uptrend, rsi %.1f < %.0f, low %.2f <= band %.2f", snap.RSI, s.RSIOversold, bar.Low, snap.BBLower)

	case snap.TrendClose < snap.TrendEMA &&
		snap.RSI > s.RSIOverbought &&
		bar.High >= snap.BBUpper &&
		bar.Red():
		sig.Side = market.Short
		sig.Reason = fmt.Sprintf("downtrend, rsi %.1f > %.0f, high %.2f >= band %.2f", snap.RSI, s.RSIOverbought, bar.High, snap.BBUpper)
	}
	return sig
}
