package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perptrader/pricing"
)

// Bollinger tracks an SMA of closes with bands k sample standard deviations away.
// Value returns the middle band.
type Bollinger struct {
	period int
	k      float64
	win    *window
}

func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{period: period, k: k, win: newWindow(period)}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BB(%d,%.1f)", b.period, b.k) }
func (b *Bollinger) Warmup() int  { return b.period }
func (b *Bollinger) Reset()       { b.win.reset() }

func (b *Bollinger) Update(c pricing.Candle) { b.win.push(c.Close) }

func (b *Bollinger) Ready() bool { return b.win.full() && b.period > 1 }

func (b *Bollinger) Value() float64 {
	if !b.Ready() {
		return 0
	}
	return b.win.mean()
}

// StdDev is the sample (n-1) standard deviation of the window.
func (b *Bollinger) StdDev() float64 {
	if !b.Ready() {
		return 0
	}
	mean := b.win.mean()
	var ss float64
	b.win.each(func(v float64) {
		ss += (v - mean) * (v - mean)
	})
	return math.Sqrt(ss / float64(b.win.n-1))
}

// Bands returns upper and lower bands.
func (b *Bollinger) Bands() (upper, lower float64) {
	if !b.Ready() {
		return 0, 0
	}
	mid := b.win.mean()
	sd := b.StdDev()
	return mid + b.k*sd, mid - b.k*sd
}
