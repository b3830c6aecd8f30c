package engine

import (
	"math"
	"time"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/risk"
)

// Tick is one price observation: a replayed bar or a polled live snapshot.
type Tick struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// PriceTick builds a tick from a single last-trade price.
func PriceTick(at time.Time, price float64) Tick {
	return Tick{Time: at, Open: price, High: price, Low: price, Close: price}
}

// Valid reports whether the tick can be used to open a position.
func (t Tick) Valid() bool {
	for _, v := range []float64{t.High, t.Low, t.Close} {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return !t.Time.IsZero() && t.High >= t.Low
}

func (t Tick) observation() position.Observation {
	return position.Observation{Time: t.Time, High: t.High, Low: t.Low, Close: t.Close}
}

// EquityPoint is one mark-to-market sample.
type EquityPoint struct {
	Time       time.Time
	Capital    float64
	Unrealized float64
	Equity     float64
}

// ExitEvent is one leg closed by the ladder, reconciliation or a forced close.
type ExitEvent struct {
	PositionID string
	Symbol     string
	Side       market.Side
	Fill       position.Fill
}

// ClosedTrade is the ledger entry of a fully closed position.
type ClosedTrade struct {
	ID            string
	Symbol        string
	Side          market.Side
	EntryTime     time.Time
	ExitTime      time.Time
	EntryPrice    float64
	ExitPrice     float64
	InitialStop   float64
	Size          float64
	Target1Filled bool
	GrossPnL      float64
	Commission    float64
	NetPnL        float64
	ExitReason    position.Reason
}

func (c ClosedTrade) Win() bool { return c.NetPnL > 0 }

// Skip reasons reported in Outcome.Skipped.
const (
	SkipNoSignal    = "no_signal"
	SkipInvalidTick = "invalid_tick"
	SkipGovernor    = "governor"
	SkipZeroQty     = "zero_qty"
	SkipRejected    = "rejected"
)

// Outcome is everything a Step produced. Several positions can exit on one tick,
// so exits and closes are slices.
type Outcome struct {
	Equity   EquityPoint
	Exits    []ExitEvent
	Closed   []ClosedTrade
	Opened   *position.Position
	Skipped  string
	Decision risk.Decision
	Halted   bool // a close on this tick halted trading for the day
	NewDay   bool
}
