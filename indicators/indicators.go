// Package indicators provides streaming technical indicators over closed candles.
package indicators

import "github.com/rustyeddy/perptrader/pricing"

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* candle and updates internal state.
	Update(c pricing.Candle)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current value, or 0 before warmup.
	Value() float64
}

// Run feeds candles through ind and returns the final value.
func Run(ind Indicator, candles []pricing.Candle) float64 {
	for _, c := range candles {
		ind.Update(c)
	}
	return ind.Value()
}

// window is a fixed-size FIFO of float64 values with a running sum.
type window struct {
	size int
	vals []float64
	head int
	n    int
	sum  float64
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{size: size, vals: make([]float64, size)}
}

func (w *window) push(v float64) {
	if w.n == w.size {
		w.sum -= w.vals[w.head]
	} else {
		w.n++
	}
	w.vals[w.head] = v
	w.sum += v
	w.head = (w.head + 1) % w.size
}

func (w *window) full() bool { return w.n == w.size }

func (w *window) mean() float64 {
	if w.n == 0 {
		return 0
	}
	return w.sum / float64(w.n)
}

func (w *window) reset() {
	for i := range w.vals {
		w.vals[i] = 0
	}
	w.head, w.n, w.sum = 0, 0, 0
}

// each visits the stored values, oldest first.
func (w *window) each(fn func(v float64)) {
	start := (w.head - w.n + w.size) % w.size
	for i := 0; i < w.n; i++ {
		fn(w.vals[(start+i)%w.size])
	}
}
