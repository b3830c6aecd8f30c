package risk

import (
	"fmt"
	"time"
)

// DailyState is a copy of the governor's counters.
type DailyState struct {
	Day               time.Time // midnight of the current day in the limits location
	TradesToday       int
	RealizedPnLToday  float64
	ConsecutiveLosses int
	Halted            bool
	HaltReason        string
}

// Governor enforces per-day entry limits. Counters reset lazily when a tick from
// a later calendar date arrives; there is no timer.
//
// A Governor is owned by a single controller and is not safe for concurrent use.
type Governor struct {
	limits Limits
	state  DailyState
	seen   bool
}

func NewGovernor(l Limits) *Governor {
	return &Governor{limits: l}
}

func (g *Governor) Limits() Limits { return g.limits }

// Advance moves the governor to t's calendar date. It returns true when the date
// changed and the counters were reset.
func (g *Governor) Advance(t time.Time) bool {
	lt := t.In(g.limits.location())
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, lt.Location())
	if g.seen && day.Equal(g.state.Day) {
		return false
	}
	g.state = DailyState{Day: day}
	g.seen = true
	return true
}

// Check reports every reason a new entry would be refused.
func (g *Governor) Check(openPositions int) Decision {
	d := Decision{Allowed: true}
	if g.state.Halted {
		d.add(CodeHalted, fmt.Sprintf("trading halted for %s: %s",
			g.state.Day.Format("2006-01-02"), g.state.HaltReason))
	}
	if g.state.TradesToday >= g.limits.MaxTradesPerDay {
		d.add(CodeMaxTradesPerDay, fmt.Sprintf("trades today %d >= max %d",
			g.state.TradesToday, g.limits.MaxTradesPerDay))
	}
	if openPositions >= g.limits.MaxOpenPositions {
		d.add(CodeMaxOpenPositions, fmt.Sprintf("open positions %d >= max %d",
			openPositions, g.limits.MaxOpenPositions))
	}
	return d
}

func (g *Governor) CanOpen(openPositions int) bool {
	return g.Check(openPositions).Allowed
}

// RecordOpen counts a new entry against today's budget.
func (g *Governor) RecordOpen() {
	g.state.TradesToday++
}

// RecordPartial books the net PnL of a partial close. Streaks and halts are only
// evaluated when a position closes fully.
func (g *Governor) RecordPartial(net float64) {
	g.state.RealizedPnLToday += net
}

// RecordClose books the final leg of a position. net is the position's total net
// PnL across all legs and decides the loss streak; finalLeg is the amount not yet
// booked through RecordPartial. It returns true if this close halted trading.
func (g *Governor) RecordClose(finalLeg, net float64) bool {
	g.state.RealizedPnLToday += finalLeg
	if net < 0 {
		g.state.ConsecutiveLosses++
	} else {
		g.state.ConsecutiveLosses = 0
	}

	if g.state.Halted {
		return false
	}
	switch {
	case g.state.RealizedPnLToday <= g.limits.MaxDailyLoss:
		g.halt(HaltDailyLoss)
	case g.state.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses:
		g.halt(HaltConsecutiveLosses)
	default:
		return false
	}
	return true
}

func (g *Governor) halt(reason string) {
	g.state.Halted = true
	g.state.HaltReason = reason
}

// State returns a copy of the current counters.
func (g *Governor) State() DailyState {
	return g.state
}
