package strategies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pricing"
)

// Snapshot is everything a signal source may look at for one closed bar.
type Snapshot struct {
	Bar  pricing.Candle
	Prev *pricing.Candle

	// Trend is read from the last completed higher-timeframe bar.
	TrendClose float64
	TrendEMA   float64

	RSI     float64
	ATR     float64
	BBUpper float64
	BBLower float64

	Ready bool
}

// SignalSource turns a snapshot into a signal. Implementations keep no state
// between calls; the caller carries the previous bar.
type SignalSource interface {
	Name() string
	Evaluate(s Snapshot) market.Signal
}

// Params configures the indicators behind a Snapshot and the signal thresholds.
type Params struct {
	TrendEMAPeriod int     `json:"trend_ema_period" yaml:"trend_ema_period"` // 100, on 1h closes
	RSIPeriod      int     `json:"rsi_period" yaml:"rsi_period"`             // 14
	RSIOversold    float64 `json:"rsi_oversold" yaml:"rsi_oversold"`         // 35
	RSIOverbought  float64 `json:"rsi_overbought" yaml:"rsi_overbought"`     // 65
	ATRPeriod      int     `json:"atr_period" yaml:"atr_period"`             // 14
	BBPeriod       int     `json:"bb_period" yaml:"bb_period"`               // 20
	BBStd          float64 `json:"bb_std" yaml:"bb_std"`                     // 2.0
}

func DefaultParams() Params {
	return Params{
		TrendEMAPeriod: 100,
		RSIPeriod:      14,
		RSIOversold:    35,
		RSIOverbought:  65,
		ATRPeriod:      14,
		BBPeriod:       20,
		BBStd:          2.0,
	}
}

func (p Params) Validate() error {
	if p.TrendEMAPeriod <= 0 || p.RSIPeriod <= 0 || p.ATRPeriod <= 0 {
		return fmt.Errorf("strategy periods must be positive")
	}
	if p.BBPeriod < 2 || p.BBStd <= 0 {
		return fmt.Errorf("strategy.bb_period must be at least 2 and bb_std positive")
	}
	if !(p.RSIOversold < p.RSIOverbought) {
		return fmt.Errorf("strategy.rsi_oversold must be below rsi_overbought")
	}
	return nil
}

type factory func(Params) SignalSource

var registry = map[string]factory{
	"trend-mean-reversion": func(p Params) SignalSource { return NewTrendMeanReversion(p) },
	"noop":                 func(Params) SignalSource { return Noop{} },
}

// Register adds a named signal source.
func Register(name string, f func(Params) SignalSource) {
	registry[strings.ToLower(name)] = f
}

// Names lists registered sources.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByName builds a registered source. Underscores and a few aliases are accepted.
func ByName(name string, p Params) (SignalSource, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	switch key {
	case "tmr", "trendmeanreversion":
		key = "trend-mean-reversion"
	case "none", "":
		key = "noop"
	}
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p), nil
}
