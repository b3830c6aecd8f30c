// Package engine drives the lifecycle of leveraged positions: entries, staged
// exits, capital and the equity curve. The same Controller runs backtests and the
// live loop; it never talks to a venue.
package engine

import (
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/reconcile"
	"github.com/rustyeddy/perptrader/risk"
)

// Controller owns every position and is the only writer of capital. It is driven
// by a single goroutine.
type Controller struct {
	cfg    Config
	ladder *position.Ladder
	gov    *risk.Governor
	log    *zap.Logger

	capital float64
	open    []*position.Position
	closed  []ClosedTrade
	equity  []EquityPoint
	stops   map[string]float64 // initial stop by position id
}

func New(cfg Config, log *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg,
		ladder:  position.NewLadder(cfg.Ladder),
		gov:     risk.NewGovernor(cfg.Limits),
		log:     log.With(zap.String("symbol", cfg.Symbol)),
		capital: cfg.InitialCapital,
		stops:   make(map[string]float64),
	}, nil
}

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) Capital() float64 { return c.capital }

// SetCapital replaces capital with a venue balance.
func (c *Controller) SetCapital(v float64) {
	if v > 0 {
		c.capital = v
	}
}

// Step runs one tick: roll the day, sample equity, manage exits, then consider an
// entry for sig.
func (c *Controller) Step(tick Tick, sig market.Signal) Outcome {
	var out Outcome

	if c.gov.Advance(tick.Time) {
		out.NewDay = true
		c.log.Debug("new trading day", zap.Time("day", c.gov.State().Day))
	}

	out.Equity = c.markEquity(tick)

	obs := tick.observation()
	for _, p := range slices.Clone(c.open) {
		f, fired, err := c.ladder.Step(p, obs)
		if err != nil {
			c.log.Error("exit failed", zap.String("position", p.ID), zap.Error(err))
			continue
		}
		if !fired {
			continue
		}
		c.book(&out, p, f)
	}

	out.Opened, out.Skipped, out.Decision = c.tryEnter(tick, sig)
	return out
}

func (c *Controller) markEquity(tick Tick) EquityPoint {
	var unrealized float64
	if tick.Close > 0 && !math.IsInf(tick.Close, 0) {
		for _, p := range c.open {
			unrealized += p.UnrealizedPnL(tick.Close)
		}
	}
	pt := EquityPoint{
		Time:       tick.Time,
		Capital:    c.capital,
		Unrealized: unrealized,
		Equity:     c.capital + unrealized,
	}
	c.equity = append(c.equity, pt)
	return pt
}

// book applies a fill to capital and the governor and archives the position once
// it is closed.
func (c *Controller) book(out *Outcome, p *position.Position, f position.Fill) {
	c.capital += f.Net
	out.Exits = append(out.Exits, ExitEvent{PositionID: p.ID, Symbol: p.Symbol, Side: p.Side, Fill: f})

	if !f.Final {
		c.gov.RecordPartial(f.Net)
		c.log.Info("partial exit",
			zap.String("position", p.ID),
			zap.String("reason", string(f.Reason)),
			zap.Float64("price", f.Price),
			zap.Float64("qty", f.Qty),
			zap.Float64("net", f.Net),
			zap.Float64("stop", p.Stop))
		return
	}

	if c.gov.RecordClose(f.Net, p.RealizedPnL) {
		out.Halted = true
		st := c.gov.State()
		c.log.Warn("trading halted",
			zap.String("reason", st.HaltReason),
			zap.Float64("pnl_today", st.RealizedPnLToday),
			zap.Int("consecutive_losses", st.ConsecutiveLosses))
	}

	ct := c.archive(p)
	out.Closed = append(out.Closed, ct)
	c.log.Info("position closed",
		zap.String("position", p.ID),
		zap.String("reason", string(f.Reason)),
		zap.Float64("exit", f.Price),
		zap.Float64("net", ct.NetPnL),
		zap.Float64("capital", c.capital))
}

func (c *Controller) archive(p *position.Position) ClosedTrade {
	ct := ClosedTrade{
		ID:            p.ID,
		Symbol:        p.Symbol,
		Side:          p.Side,
		EntryTime:     p.EntryTime,
		ExitTime:      p.ExitTime,
		EntryPrice:    p.EntryPrice,
		ExitPrice:     p.ExitPrice,
		InitialStop:   c.stops[p.ID],
		Size:          p.InitialSize,
		Target1Filled: p.Target1Filled,
		GrossPnL:      p.GrossPnL,
		Commission:    p.Commission,
		NetPnL:        p.RealizedPnL,
		ExitReason:    p.ExitReason,
	}
	c.closed = append(c.closed, ct)
	delete(c.stops, p.ID)
	c.open = slices.DeleteFunc(c.open, func(o *position.Position) bool { return o == p })
	return ct
}

func (c *Controller) tryEnter(tick Tick, sig market.Signal) (*position.Position, string, risk.Decision) {
	if !sig.HasSide() {
		return nil, SkipNoSignal, risk.Decision{}
	}
	if !tick.Valid() {
		c.log.Debug("invalid tick, entry skipped", zap.Time("time", tick.Time))
		return nil, SkipInvalidTick, risk.Decision{}
	}

	d := c.gov.Check(len(c.open))
	if !d.Allowed {
		c.log.Info("entry blocked", zap.String("side", string(sig.Side)), zap.String("violations", d.String()))
		return nil, SkipGovernor, d
	}

	entry := tick.Close
	dist := entry * c.cfg.StopPct
	if c.cfg.UseATRStop && sig.HasATR() {
		dist = sig.ATR * c.cfg.ATRMultiplier
	}
	stop := entry - sig.Side.Sign()*dist

	sz := risk.Size(risk.SizeInputs{
		Capital:       c.capital,
		Entry:         entry,
		Stop:          stop,
		RiskPct:       c.cfg.RiskPct,
		AllocationPct: c.cfg.AllocationPct,
		Leverage:      c.cfg.Leverage,
	})
	qty := sz.Qty
	if c.cfg.Instrument.QtyStep > 0 {
		if !c.cfg.Instrument.Tradable(qty) {
			qty = 0
		} else {
			qty = c.cfg.Instrument.RoundQty(qty)
		}
	}
	if !(qty > 0) {
		c.log.Debug("zero quantity, entry skipped", zap.Float64("entry", entry), zap.Float64("stop", stop))
		return nil, SkipZeroQty, d
	}

	p, err := position.New(position.Params{
		ID:        c.cfg.newID(tick.Time),
		Symbol:    c.cfg.Symbol,
		Side:      sig.Side,
		EntryTime: tick.Time,
		Entry:     entry,
		Stop:      stop,
		Size:      qty,
		R1:        c.cfg.R1,
		R2:        c.cfg.R2,
	})
	if err != nil {
		c.log.Warn("position rejected", zap.Error(err))
		return nil, SkipRejected, d
	}

	c.open = append(c.open, p)
	c.stops[p.ID] = stop
	c.gov.RecordOpen()
	c.log.Info("position opened",
		zap.String("position", p.ID),
		zap.String("side", string(p.Side)),
		zap.Float64("entry", entry),
		zap.Float64("stop", stop),
		zap.Float64("target1", p.Target1),
		zap.Float64("target2", p.Target2),
		zap.Float64("qty", qty),
		zap.String("bound", string(sz.Bound)),
		zap.String("reason", sig.Reason))

	cp := *p
	return &cp, "", d
}

// CloseAll closes every open position at price, for example at the end of a replay.
func (c *Controller) CloseAll(at time.Time, price float64, reason position.Reason) Outcome {
	var out Outcome
	for _, p := range slices.Clone(c.open) {
		f, err := p.CloseAll(price, at, reason, c.cfg.Ladder.CommissionRate)
		if err != nil {
			c.log.Error("forced close failed", zap.String("position", p.ID), zap.Error(err))
			continue
		}
		c.book(&out, p, f)
	}
	return out
}

// ApplyReconciliation folds a venue report into local belief. A flat venue closes
// every local position at mark. An inferred target1 fill books the partial at
// target1 exactly as the ladder would have, then puts the stop at entry where the
// venue now has it. Capital may still be replaced by the venue balance afterwards.
func (c *Controller) ApplyReconciliation(r reconcile.Report, at time.Time, mark float64) Outcome {
	var out Outcome
	if r.Symbol != "" && r.Symbol != c.cfg.Symbol {
		return out
	}

	switch {
	case r.Flat:
		if len(c.open) == 0 {
			return out
		}
		c.log.Info("venue is flat, clearing local positions", zap.Int("open", len(c.open)))
		return c.CloseAll(at, mark, position.ReasonExchangeFlat)

	case r.Target1Filled:
		for _, p := range slices.Clone(c.open) {
			d := c.ladder.TakeTarget1(p)
			if !d.Fires() {
				continue
			}
			f, err := c.ladder.Apply(p, d, at)
			if err != nil {
				c.log.Error("target1 booking failed", zap.String("position", p.ID), zap.Error(err))
				continue
			}
			if !p.IsClosed() {
				p.Stop = p.EntryPrice
			}
			c.log.Info("target1 fill inferred from venue",
				zap.String("position", p.ID),
				zap.Float64("qty", f.Qty),
				zap.Float64("stop", p.Stop))
			c.book(&out, p, f)
		}
	}
	return out
}

// Open returns copies of the open positions.
func (c *Controller) Open() []position.Position {
	out := make([]position.Position, len(c.open))
	for i, p := range c.open {
		out[i] = *p
	}
	return out
}

func (c *Controller) Closed() []ClosedTrade { return slices.Clone(c.closed) }

func (c *Controller) Equity() []EquityPoint { return slices.Clone(c.equity) }

// State is a read-only view for logging, metrics and the journal.
type State struct {
	Capital      float64
	Open         []position.Position
	ClosedTrades int
	EquityPoints int
	Daily        risk.DailyState
}

func (c *Controller) Snapshot() State {
	return State{
		Capital:      c.capital,
		Open:         c.Open(),
		ClosedTrades: len(c.closed),
		EquityPoints: len(c.equity),
		Daily:        c.gov.State(),
	}
}

func (s State) String() string {
	return fmt.Sprintf("capital=%.2f open=%d closed=%d halted=%v", s.Capital, len(s.Open), s.ClosedTrades, s.Daily.Halted)
}
