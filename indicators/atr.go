package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perptrader/pricing"
)

func trueRange(c, prev pricing.Candle) float64 {
	hl := c.High - c.Low
	hc := math.Abs(c.High - prev.Close)
	lc := math.Abs(c.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR is a streaming Average True Range: the simple mean of the last period true
// ranges. The first candle has no previous close, so its true range is high-low.
type ATR struct {
	period  int
	win     *window
	prev    pricing.Candle
	hasPrev bool
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *ATR {
	return &ATR{period: period, win: newWindow(period)}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int { return a.period }

func (a *ATR) Reset() {
	a.win.reset()
	a.hasPrev = false
}

func (a *ATR) Update(c pricing.Candle) {
	tr := c.High - c.Low
	if a.hasPrev {
		tr = trueRange(c, a.prev)
	}
	a.win.push(tr)
	a.prev = c
	a.hasPrev = true
}

func (a *ATR) Ready() bool { return a.win.full() }

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.win.mean()
}
