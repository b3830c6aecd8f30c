// Package reconcile re-derives what the engine believes about a live position
// from the venue's resting orders.
//
// The venue does not push fills, so the adapter infers them: when one of the two
// staged take-profit orders is gone, target1 is assumed to have filled and the
// protective stop is moved to the entry price. A take-profit that an operator
// cancelled by hand looks exactly the same, so every inference is reported as a
// note and should be treated as best effort rather than a fill log.
package reconcile

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/market"
)

// DefaultTolerance is the fraction of entry inside which a stop already counts as
// break-even.
const DefaultTolerance = 0.001

type Config struct {
	Instrument market.Instrument
	Tolerance  float64
}

// Action summarises what a pass did.
type Action string

const (
	ActionNone     Action = "none"
	ActionFlat     Action = "flat"
	ActionMoveStop Action = "move_stop"
	ActionAtEntry  Action = "already_break_even"
)

// Report is the outcome of one pass. The engine decides what to do with it; the
// adapter never opens or closes positions.
type Report struct {
	Symbol     string
	Flat       bool
	Side       market.Side
	Amount     float64
	EntryPrice float64

	TakeProfits int
	Stops       int

	Target1Filled      bool
	AlreadyAtBreakEven bool
	StopMovedTo        float64
	Cancelled          []int64
	Placed             exchange.Ack

	Notes []string
}

func (r Report) Action() Action {
	switch {
	case r.Flat:
		return ActionFlat
	case r.AlreadyAtBreakEven:
		return ActionAtEntry
	case r.StopMovedTo > 0:
		return ActionMoveStop
	}
	return ActionNone
}

func (r *Report) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

type Adapter struct {
	tr  exchange.Transport
	cfg Config
	log *zap.Logger
}

func New(tr exchange.Transport, cfg Config, log *zap.Logger) *Adapter {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{tr: tr, cfg: cfg, log: log}
}

// Reconcile runs one corrective pass. Running it twice in a row leaves the venue
// unchanged the second time.
func (a *Adapter) Reconcile(ctx context.Context) (Report, error) {
	symbol := a.cfg.Instrument.Symbol
	r := Report{Symbol: symbol}

	pos, err := a.tr.GetPosition(ctx, symbol)
	if err != nil {
		return r, fmt.Errorf("reconcile: get position: %w", err)
	}
	if pos.Flat() {
		r.Flat = true
		return r, nil
	}
	r.Side = pos.Side()
	r.Amount = pos.Amount
	r.EntryPrice = pos.EntryPrice

	orders, err := a.tr.ListOpenOrders(ctx, symbol)
	if err != nil {
		return r, fmt.Errorf("reconcile: list orders: %w", err)
	}

	var stops []exchange.Order
	for _, o := range orders {
		switch {
		case o.TakeProfitLike():
			r.TakeProfits++
		case o.StopLike():
			stops = append(stops, o)
		}
	}
	r.Stops = len(stops)

	if r.TakeProfits != 1 {
		if r.Stops == 0 {
			r.note("position %.6f %s has no stop order", pos.Amount, symbol)
		}
		return r, nil
	}

	r.Target1Filled = true
	r.note("one take-profit left: target1 assumed filled (an operator cancel looks the same)")

	entry := a.cfg.Instrument.RoundPrice(pos.EntryPrice)
	band := pos.EntryPrice * a.cfg.Tolerance

	var stale []exchange.Order
	for _, s := range stops {
		if math.Abs(s.StopPrice-pos.EntryPrice) <= band {
			r.AlreadyAtBreakEven = true
			continue
		}
		stale = append(stale, s)
	}
	if r.AlreadyAtBreakEven && len(stale) == 0 {
		return r, nil
	}

	for _, s := range stale {
		if err := a.tr.CancelOrder(ctx, symbol, s.ID); err != nil {
			return r, fmt.Errorf("reconcile: cancel stop %d: %w", s.ID, err)
		}
		r.Cancelled = append(r.Cancelled, s.ID)
		a.log.Info("cancelled stale stop",
			zap.String("symbol", symbol),
			zap.Int64("order_id", s.ID),
			zap.Float64("stop", s.StopPrice))
	}
	if r.AlreadyAtBreakEven {
		return r, nil
	}

	ack, err := a.tr.SubmitStop(ctx, symbol, exchange.ExitSide(r.Side), 0, true, entry)
	if err != nil {
		r.note("break-even stop rejected, position is unprotected")
		return r, fmt.Errorf("reconcile: place break-even stop at %v: %w", entry, err)
	}
	r.Placed = ack
	r.StopMovedTo = entry
	a.log.Info("moved stop to break-even",
		zap.String("symbol", symbol),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop", entry),
		zap.Int64("order_id", ack.OrderID))
	return r, nil
}
