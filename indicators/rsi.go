package indicators

import (
	"fmt"

	"github.com/rustyeddy/perptrader/pricing"
)

// RSI is the Relative Strength Index using simple rolling means of gains and
// losses (not Wilder smoothing). A flat window reads 50.
type RSI struct {
	period    int
	gains     *window
	losses    *window
	prevClose float64
	hasPrev   bool
}

func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  newWindow(period),
		losses: newWindow(period),
	}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }

// Warmup needs one extra close to form the first delta.
func (r *RSI) Warmup() int { return r.period + 1 }

func (r *RSI) Reset() {
	r.gains.reset()
	r.losses.reset()
	r.hasPrev = false
}

func (r *RSI) Update(c pricing.Candle) {
	if r.hasPrev {
		d := c.Close - r.prevClose
		if d > 0 {
			r.gains.push(d)
			r.losses.push(0)
		} else {
			r.gains.push(0)
			r.losses.push(-d)
		}
	}
	r.prevClose = c.Close
	r.hasPrev = true
}

func (r *RSI) Ready() bool { return r.gains.full() }

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	gain := r.gains.mean()
	loss := r.losses.mean()
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}
