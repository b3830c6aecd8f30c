package strategies

import (
	"time"

	"github.com/rustyeddy/perptrader/indicators"
	"github.com/rustyeddy/perptrader/pricing"
)

// Features feeds closed bars through the indicators and builds Snapshots.
//
// The trend EMA only ever sees completed hourly bars, so a 5m bar at 10:35 is
// judged against the 09:00 hour, never the hour still in progress.
type Features struct {
	params Params

	hour  *pricing.Aggregator // nil when trend bars are pushed explicitly
	trend *indicators.ExponentialMA
	rsi   *indicators.RSI
	atr   *indicators.ATR
	bb    *indicators.Bollinger

	trendClose float64
	haveTrend  bool
	prev       *pricing.Candle
}

// NewFeatures builds the hourly trend by aggregating the pushed bars.
func NewFeatures(p Params) *Features {
	f := newFeatures(p)
	f.hour = pricing.NewAggregator(time.Hour)
	return f
}

// NewLiveFeatures expects hourly bars through PushTrend.
func NewLiveFeatures(p Params) *Features {
	return newFeatures(p)
}

func newFeatures(p Params) *Features {
	return &Features{
		params: p,
		trend:  indicators.NewEMA(p.TrendEMAPeriod),
		rsi:    indicators.NewRSI(p.RSIPeriod),
		atr:    indicators.NewATR(p.ATRPeriod),
		bb:     indicators.NewBollinger(p.BBPeriod, p.BBStd),
	}
}

// PushTrend consumes one completed hourly bar.
func (f *Features) PushTrend(c pricing.Candle) {
	f.trend.Update(c)
	f.trendClose = c.Close
	f.haveTrend = true
}

// Push consumes one closed bar and returns the snapshot for it.
func (f *Features) Push(c pricing.Candle) Snapshot {
	if f.hour != nil {
		if done, ok := f.hour.Push(c); ok {
			f.PushTrend(done)
		}
	}

	f.rsi.Update(c)
	f.atr.Update(c)
	f.bb.Update(c)

	upper, lower := f.bb.Bands()
	s := Snapshot{
		Bar:        c,
		Prev:       f.prev,
		TrendClose: f.trendClose,
		TrendEMA:   f.trend.Value(),
		RSI:        f.rsi.Value(),
		ATR:        f.atr.Value(),
		BBUpper:    upper,
		BBLower:    lower,
		Ready:      f.Ready(),
	}

	cp := c
	f.prev = &cp
	return s
}

// Ready reports whether every indicator has warmed up.
func (f *Features) Ready() bool {
	return f.haveTrend && f.trend.Ready() && f.rsi.Ready() && f.atr.Ready() && f.bb.Ready()
}

// Warmup is the number of 5m bars a backtest needs before the first snapshot can
// be ready.
func (f *Features) Warmup() int {
	bars := f.params.TrendEMAPeriod*12 + 12
	for _, n := range []int{f.rsi.Warmup(), f.atr.Warmup(), f.bb.Warmup()} {
		if n > bars {
			bars = n
		}
	}
	return bars
}
