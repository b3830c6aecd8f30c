package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument carries the exchange precision rules for one symbol. Quantities and
// prices are rounded here before they cross the transport boundary.
type Instrument struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	QtyStep  float64 `json:"qty_step" yaml:"qty_step"`
	TickSize float64 `json:"tick_size" yaml:"tick_size"`
	MinQty   float64 `json:"min_qty" yaml:"min_qty"`
}

// BTCUSDT matches the USD-M perpetual filters (3 qty decimals, 0.1 tick).
var BTCUSDT = Instrument{
	Symbol:   "BTCUSDT",
	QtyStep:  0.001,
	TickSize: 0.1,
	MinQty:   0.001,
}

func (in Instrument) Validate() error {
	if in.Symbol == "" {
		return fmt.Errorf("instrument.symbol is required")
	}
	if in.QtyStep <= 0 {
		return fmt.Errorf("instrument.qty_step must be positive")
	}
	if in.TickSize <= 0 {
		return fmt.Errorf("instrument.tick_size must be positive")
	}
	if in.MinQty < 0 {
		return fmt.Errorf("instrument.min_qty must not be negative")
	}
	return nil
}

// QtyDecimal truncates q down to a whole number of steps.
func (in Instrument) QtyDecimal(q float64) decimal.Decimal {
	step := decimal.NewFromFloat(in.QtyStep)
	if step.IsZero() {
		return decimal.NewFromFloat(q)
	}
	return decimal.NewFromFloat(q).Div(step).Floor().Mul(step)
}

// PriceDecimal rounds p to the nearest tick.
func (in Instrument) PriceDecimal(p float64) decimal.Decimal {
	tick := decimal.NewFromFloat(in.TickSize)
	if tick.IsZero() {
		return decimal.NewFromFloat(p)
	}
	return decimal.NewFromFloat(p).Div(tick).Round(0).Mul(tick)
}

func (in Instrument) RoundQty(q float64) float64 {
	f, _ := in.QtyDecimal(q).Float64()
	return f
}

func (in Instrument) RoundPrice(p float64) float64 {
	f, _ := in.PriceDecimal(p).Float64()
	return f
}

// FormatQty renders q with exactly the step's decimal places.
func (in Instrument) FormatQty(q float64) string {
	return in.QtyDecimal(q).StringFixed(places(in.QtyStep))
}

func (in Instrument) FormatPrice(p float64) string {
	return in.PriceDecimal(p).StringFixed(places(in.TickSize))
}

// Tradable reports whether q survives rounding and the minimum size filter.
func (in Instrument) Tradable(q float64) bool {
	r := in.QtyDecimal(q)
	return r.IsPositive() && r.GreaterThanOrEqual(decimal.NewFromFloat(in.MinQty))
}

func places(step float64) int32 {
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}
