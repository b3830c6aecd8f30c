package pricing

import (
	"math"
	"time"
)

// Candle is one OHLCV bar. Time is the bar's open time.
type Candle struct {
	Instrument string // optional but handy
	Time       time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume float64 // optional
}

// Green reports a bar that closed above its open.
func (c Candle) Green() bool { return c.Close > c.Open }

// Red reports a bar that closed below its open.
func (c Candle) Red() bool { return c.Close < c.Open }

// Valid rejects bars with missing or non-finite prices and inverted ranges.
func (c Candle) Valid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.High >= c.Low
}

// Aggregator folds lower-timeframe candles into a higher timeframe. Push returns
// the previous bucket once a candle from a later bucket arrives, so a completed
// bar is only ever emitted after its period has fully elapsed.
type Aggregator struct {
	period  time.Duration
	current Candle
	open    bool
}

func NewAggregator(period time.Duration) *Aggregator {
	return &Aggregator{period: period}
}

func (a *Aggregator) Period() time.Duration { return a.period }

// Push adds c and reports the completed higher-timeframe candle, if any.
func (a *Aggregator) Push(c Candle) (Candle, bool) {
	bucket := c.Time.Truncate(a.period)

	if !a.open {
		a.start(bucket, c)
		return Candle{}, false
	}

	if bucket.Equal(a.current.Time) {
		if c.High > a.current.High {
			a.current.High = c.High
		}
		if c.Low < a.current.Low {
			a.current.Low = c.Low
		}
		a.current.Close = c.Close
		a.current.Volume += c.Volume
		return Candle{}, false
	}

	done := a.current
	a.start(bucket, c)
	return done, true
}

// Partial returns the in-progress bucket.
func (a *Aggregator) Partial() (Candle, bool) {
	return a.current, a.open
}

func (a *Aggregator) start(bucket time.Time, c Candle) {
	a.current = Candle{
		Instrument: c.Instrument,
		Time:       bucket,
		Open:       c.Open,
		High:       c.High,
		Low:        c.Low,
		Close:      c.Close,
		Volume:     c.Volume,
	}
	a.open = true
}
