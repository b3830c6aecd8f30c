package position

import (
	"fmt"
	"math"
	"time"
)

// Observation is one price view of a tick. A live last-trade price is passed with
// High == Low == Close.
type Observation struct {
	Time  time.Time
	High  float64
	Low   float64
	Close float64
}

// LadderConfig configures staged exits.
type LadderConfig struct {
	TP1ClosePct     float64 // fraction of the remaining size closed at target1
	MoveStopToEntry bool
	CommissionRate  float64
}

func (c LadderConfig) Validate() error {
	if !(c.TP1ClosePct > 0 && c.TP1ClosePct <= 1) {
		return fmt.Errorf("exits.tp1_close_pct must be in (0, 1]")
	}
	if c.CommissionRate < 0 {
		return fmt.Errorf("account.commission_rate must not be negative")
	}
	return nil
}

// Action is the exit a ladder decided on for one tick.
type Action string

const (
	Hold    Action = ""
	Stop    Action = "STOP"
	Target1 Action = "TARGET1"
	Target2 Action = "TARGET2"
)

type Decision struct {
	Action Action
	Price  float64
	Qty    float64
}

func (d Decision) Fires() bool { return d.Action != Hold }

// Ladder evaluates stop, target1 and target2 in that order. A bar that touches
// both the stop and a target resolves as the stop.
type Ladder struct {
	cfg LadderConfig
}

func NewLadder(cfg LadderConfig) *Ladder {
	return &Ladder{cfg: cfg}
}

func (l *Ladder) Config() LadderConfig { return l.cfg }

// Evaluate decides at most one transition for p. It does not mutate p. A high or
// low that is zero, negative or not finite never triggers a level.
func (l *Ladder) Evaluate(p *Position, obs Observation) Decision {
	if p == nil || p.IsClosed() {
		return Decision{}
	}
	long := p.Side.Sign() > 0
	high, low := priced(obs.High), priced(obs.Low)

	// adverse is the extreme that moves against the position, favorable the one
	// that moves toward its targets.
	adverse := func(level float64) bool {
		if long {
			return low && obs.Low <= level
		}
		return high && obs.High >= level
	}
	favorable := func(level float64) bool {
		if long {
			return high && obs.High >= level
		}
		return low && obs.Low <= level
	}

	if adverse(p.Stop) {
		return Decision{Action: Stop, Price: p.Stop, Qty: p.Remaining}
	}
	if !p.Target1Filled {
		if favorable(p.Target1) {
			return l.TakeTarget1(p)
		}
		return Decision{}
	}
	if favorable(p.Target2) {
		return Decision{Action: Target2, Price: p.Target2, Qty: p.Remaining}
	}
	return Decision{}
}

// TakeTarget1 is the partial exit at target1 whatever the price, for fills the
// venue reports. It is Hold once target1 has filled.
func (l *Ladder) TakeTarget1(p *Position) Decision {
	if p == nil || p.IsClosed() || p.Target1Filled {
		return Decision{}
	}
	return Decision{Action: Target1, Price: p.Target1, Qty: p.Remaining * l.cfg.TP1ClosePct}
}

func priced(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Apply executes d on p and returns the fill. Target1 latches the fill flag and
// ratchets the stop after the partial is booked.
func (l *Ladder) Apply(p *Position, d Decision, at time.Time) (Fill, error) {
	if !d.Fires() {
		return Fill{}, fmt.Errorf("apply: nothing to do for %s", p.ID)
	}
	f, err := p.Close(d.Qty, d.Price, at, Reason(d.Action), l.cfg.CommissionRate)
	if err != nil {
		return Fill{}, fmt.Errorf("apply %s to %s: %w", d.Action, p.ID, err)
	}
	if d.Action == Target1 {
		p.MarkTarget1Filled(l.cfg.MoveStopToEntry)
	}
	return f, nil
}

// Step evaluates and applies in one call. ok is false when nothing fired.
func (l *Ladder) Step(p *Position, obs Observation) (Fill, bool, error) {
	d := l.Evaluate(p, obs)
	if !d.Fires() {
		return Fill{}, false, nil
	}
	f, err := l.Apply(p, d, obs.Time)
	if err != nil {
		return Fill{}, false, err
	}
	return f, true, nil
}
