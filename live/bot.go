// Package live runs the engine against a venue on bar boundaries.
package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/metrics"
	"github.com/rustyeddy/perptrader/notify"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/pricing"
	"github.com/rustyeddy/perptrader/reconcile"
	"github.com/rustyeddy/perptrader/strategies"
)

type Options struct {
	Instrument    market.Instrument
	BarInterval   string // 5m
	TrendInterval string // 1h
	KlineLimit    int

	Interval     time.Duration
	SettleBuffer time.Duration

	// RealTrading places brackets on the venue, refreshes capital from the balance
	// and reconciles. When false every entry is only announced.
	RealTrading bool
	Asset       string // balance asset, USDT
	TP1ClosePct float64

	Now func() time.Time
}

// Deps are the collaborators of a Bot. Recorder and Notifier may be nil.
type Deps struct {
	Exchange   exchange.Exchange
	Controller *engine.Controller
	Strategy   strategies.SignalSource
	Params     strategies.Params
	Reconciler *reconcile.Adapter
	Recorder   *journal.Recorder
	Notifier   *notify.Notifier
	Log        *zap.Logger
}

type Bot struct {
	Deps
	opts    Options
	lastBar time.Time
}

// Cycle is what one RunCycle saw and did.
type Cycle struct {
	Bar     pricing.Candle
	Signal  market.Signal
	Outcome engine.Outcome
	Report  *reconcile.Report
	Stale   bool // the last closed bar was already processed
}

func New(d Deps, opts Options) (*Bot, error) {
	if d.Exchange == nil {
		return nil, fmt.Errorf("live: Exchange is required")
	}
	if d.Controller == nil {
		return nil, fmt.Errorf("live: Controller is required")
	}
	if d.Strategy == nil {
		return nil, fmt.Errorf("live: Strategy is required")
	}
	if opts.RealTrading && d.Reconciler == nil {
		return nil, fmt.Errorf("live: Reconciler is required for real trading")
	}
	// The venue nets every entry into one position with one closing stop, so
	// brackets and reconciliation only stay in step with a single local position.
	if n := d.Controller.Config().Limits.MaxOpenPositions; opts.RealTrading && n > 1 {
		return nil, fmt.Errorf("live: real trading needs max open positions of 1, got %d", n)
	}
	if opts.Instrument.Symbol == "" {
		return nil, fmt.Errorf("live: Instrument.Symbol is required")
	}
	if opts.KlineLimit <= 0 {
		opts.KlineLimit = 200
	}
	if opts.BarInterval == "" {
		opts.BarInterval = "5m"
	}
	if opts.TrendInterval == "" {
		opts.TrendInterval = "1h"
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Asset == "" {
		opts.Asset = "USDT"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.Log = d.Log.With(zap.String("symbol", opts.Instrument.Symbol))
	return &Bot{Deps: d, opts: opts}, nil
}

// Start checks connectivity and announces the bot. A failed ping is reported but
// does not stop the loop; the next cycle will surface persistent failures.
func (b *Bot) Start(ctx context.Context) error {
	err := b.Exchange.Ping(ctx)
	if err != nil {
		b.Log.Error("venue unreachable", zap.Error(err))
		metrics.CycleError("ping")
	}

	mode := "signal only"
	if b.opts.RealTrading {
		mode = "real trading"
	}
	msg := fmt.Sprintf("%s %s, capital %.2f, strategy %s", b.opts.Instrument.Symbol, mode, b.Controller.Capital(), b.Strategy.Name())
	b.Log.Info("bot started", zap.String("mode", mode), zap.Float64("capital", b.Controller.Capital()), zap.String("strategy", b.Strategy.Name()))
	b.notify(ctx, notify.EventStartup, "perptrader started", msg)
	return err
}

// Run loops until ctx is cancelled. Cycle errors and panics are logged and
// counted; they never end the loop.
func (b *Bot) Run(ctx context.Context) error {
	_ = b.Start(ctx)

	for {
		next := NextRun(b.opts.Now(), b.opts.Interval, b.opts.SettleBuffer)
		wait := next.Sub(b.opts.Now())
		b.Log.Debug("sleeping until next bar", zap.Time("next", next), zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.Log.Info("bot stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := b.safeCycle(ctx); err != nil {
			b.Log.Error("cycle failed", zap.Error(err))
		}
	}
}

func (b *Bot) safeCycle(ctx context.Context) (c Cycle, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CycleError("panic")
			err = fmt.Errorf("live: cycle panic: %v", r)
		}
	}()
	return b.RunCycle(ctx)
}

// RunCycle reconciles, refreshes capital, evaluates the last closed bar and acts on
// the outcome.
func (b *Bot) RunCycle(ctx context.Context) (Cycle, error) {
	var cycle Cycle
	symbol := b.opts.Instrument.Symbol

	// The balance is read after reconciling so a venue close booked locally is
	// replaced by what the venue actually settled.
	if b.opts.RealTrading {
		if r, ok := b.reconcile(ctx); ok {
			cycle.Report = &r
		}
		b.refreshCapital(ctx)
	}

	trend, err := b.closedKlines(ctx, b.opts.TrendInterval)
	if err != nil {
		metrics.CycleError("klines")
		return cycle, err
	}
	bars, err := b.closedKlines(ctx, b.opts.BarInterval)
	if err != nil {
		metrics.CycleError("klines")
		return cycle, err
	}
	if len(bars) == 0 {
		metrics.CycleError("klines")
		return cycle, fmt.Errorf("live: no closed %s bars for %s", b.opts.BarInterval, symbol)
	}

	f := strategies.NewLiveFeatures(b.Params)
	for _, c := range trend {
		f.PushTrend(c)
	}
	var snap strategies.Snapshot
	for _, c := range bars {
		snap = f.Push(c)
	}
	cycle.Bar = snap.Bar

	if !b.lastBar.IsZero() && !snap.Bar.Time.After(b.lastBar) {
		cycle.Stale = true
		b.Log.Debug("bar already processed", zap.Time("bar", snap.Bar.Time))
		return cycle, nil
	}
	b.lastBar = snap.Bar.Time

	cycle.Signal = b.Strategy.Evaluate(snap)
	b.Log.Info("bar evaluated",
		zap.Time("bar", snap.Bar.Time),
		zap.Float64("close", snap.Bar.Close),
		zap.Float64("rsi", snap.RSI),
		zap.Float64("atr", snap.ATR),
		zap.Float64("trend_close", snap.TrendClose),
		zap.Float64("trend_ema", snap.TrendEMA),
		zap.Bool("ready", snap.Ready),
		zap.String("signal", string(cycle.Signal.Side)))

	tick := engine.Tick{Time: snap.Bar.Time, Open: snap.Bar.Open, High: snap.Bar.High, Low: snap.Bar.Low, Close: snap.Bar.Close}
	out := b.Controller.Step(tick, cycle.Signal)
	cycle.Outcome = out

	st := b.Controller.Snapshot()
	b.Recorder.Settled(out, len(st.Open))
	metrics.ObserveOutcome(out, st)

	b.notifyClosed(ctx, out.Closed, st.Capital)
	if out.Halted {
		b.notify(ctx, notify.EventHalt, "trading halted",
			fmt.Sprintf("%s: pnl today %.4f, %d losses in a row", st.Daily.HaltReason, st.Daily.RealizedPnLToday, st.Daily.ConsecutiveLosses))
	}

	if out.Opened == nil {
		return cycle, nil
	}
	p := *out.Opened
	if !b.opts.RealTrading {
		b.announce(ctx, p, cycle.Signal)
		return cycle, nil
	}
	if err := b.placeBracket(ctx, p); err != nil {
		metrics.CycleError("bracket")
		return cycle, err
	}
	return cycle, nil
}

// closedKlines drops the still-forming last candle.
func (b *Bot) closedKlines(ctx context.Context, interval string) ([]pricing.Candle, error) {
	cs, err := b.Exchange.Klines(ctx, b.opts.Instrument.Symbol, interval, b.opts.KlineLimit)
	if err != nil {
		return nil, fmt.Errorf("live: fetch %s klines: %w", interval, err)
	}
	if len(cs) > 0 {
		cs = cs[:len(cs)-1]
	}
	return cs, nil
}

func (b *Bot) refreshCapital(ctx context.Context) {
	bal, err := b.Exchange.AvailableBalance(ctx, b.opts.Asset)
	if err != nil {
		metrics.CycleError("balance")
		b.Log.Warn("balance refresh failed, keeping local capital", zap.Error(err))
		return
	}
	if bal > 0 {
		b.Controller.SetCapital(bal)
	}
}

func (b *Bot) reconcile(ctx context.Context) (reconcile.Report, bool) {
	r, err := b.Reconciler.Reconcile(ctx)
	if err != nil {
		metrics.CycleError("reconcile")
		b.Log.Error("reconcile failed", zap.Error(err), zap.Strings("notes", r.Notes))
		b.Recorder.Error(b.opts.Now(), b.opts.Instrument.Symbol, "reconcile", err)
		b.notify(ctx, notify.EventError, "reconcile failed", err.Error())
		return r, false
	}
	metrics.ObserveReconcile(r)

	if r.Action() != reconcile.ActionNone || len(r.Notes) > 0 {
		b.Recorder.Operation(journal.Operation{
			Time:    b.opts.Now(),
			Kind:    journal.OpReconcile,
			Symbol:  r.Symbol,
			Side:    r.Side,
			Price:   r.StopMovedTo,
			Qty:     r.Amount,
			OrderID: r.Placed.OrderID,
			Detail:  fmt.Sprintf("%s %v", r.Action(), r.Notes),
		})
	}

	mark, err := b.Exchange.LastPrice(ctx, b.opts.Instrument.Symbol)
	if err != nil {
		b.Log.Warn("no mark price, reconciliation not applied", zap.Error(err))
		return r, true
	}
	out := b.Controller.ApplyReconciliation(r, b.opts.Now(), mark)
	b.Recorder.Settled(out, len(b.Controller.Open()))
	b.notifyClosed(ctx, out.Closed, b.Controller.Capital())
	if r.StopMovedTo > 0 {
		b.notify(ctx, notify.EventExit, "stop moved to break-even",
			fmt.Sprintf("%s %s stop %.2f", r.Side, r.Symbol, r.StopMovedTo))
	}
	return r, true
}

// placeBracket sends entry, stop and the two take-profits. A failed leg is
// reported and left for the operator and the next reconciliation; nothing is
// rolled back.
func (b *Bot) placeBracket(ctx context.Context, p position.Position) error {
	inst := b.opts.Instrument
	symbol := inst.Symbol
	entrySide := exchange.EntrySide(p.Side)
	exitSide := exchange.ExitSide(p.Side)
	qty := p.InitialSize

	op := func(kind journal.OpKind, price, q float64, orderID int64, detail string) {
		b.Recorder.Operation(journal.Operation{
			Time: p.EntryTime, Kind: kind, PositionID: p.ID, Symbol: symbol, Side: p.Side,
			Price: price, Qty: q, OrderID: orderID, Detail: detail,
		})
	}
	fail := func(leg string, err error) error {
		b.Log.Error("bracket leg failed", zap.String("position", p.ID), zap.String("leg", leg), zap.Error(err))
		op(journal.OpError, 0, 0, 0, leg+": "+err.Error())
		b.notify(ctx, notify.EventError, fmt.Sprintf("%s %s %s order failed", p.Side, symbol, leg), err.Error())
		return fmt.Errorf("live: %s: %w", leg, err)
	}

	ack, err := b.Exchange.SubmitMarket(ctx, symbol, entrySide, qty)
	if err != nil {
		return fail("entry", err)
	}
	fillPx := ack.AvgPrice
	if fillPx == 0 {
		fillPx = p.EntryPrice
	}
	op(journal.OpOpen, fillPx, qty, ack.OrderID,
		fmt.Sprintf("market entry filled stop=%.2f tp1=%.2f tp2=%.2f", p.Stop, p.Target1, p.Target2))

	var errs []error
	stop := inst.RoundPrice(p.Stop)
	if sack, err := b.Exchange.SubmitStop(ctx, symbol, exitSide, qty, true, stop); err != nil {
		errs = append(errs, fail("stop", err))
	} else {
		op(journal.OpOrder, stop, qty, sack.OrderID, "stop placed")
	}

	tp1Qty := inst.RoundQty(qty * b.opts.TP1ClosePct)
	tp2Qty := inst.RoundQty(qty - tp1Qty)
	if !inst.Tradable(tp1Qty) || !inst.Tradable(tp2Qty) {
		errs = append(errs, fail("take-profit", fmt.Errorf("size %s too small to split", inst.FormatQty(qty))))
	} else {
		for _, leg := range []struct {
			name  string
			qty   float64
			price float64
		}{
			{"tp1", tp1Qty, inst.RoundPrice(p.Target1)},
			{"tp2", tp2Qty, inst.RoundPrice(p.Target2)},
		} {
			tack, err := b.Exchange.SubmitLimitReduceOnly(ctx, symbol, exitSide, leg.qty, leg.price)
			if err != nil {
				errs = append(errs, fail(leg.name, err))
				continue
			}
			op(journal.OpOrder, leg.price, leg.qty, tack.OrderID, leg.name+" placed")
		}
	}

	b.notify(ctx, notify.EventOpen,
		fmt.Sprintf("%s %s opened", p.Side, symbol),
		fmt.Sprintf("entry %.2f\nstop %.2f\ntp1 %.2f\ntp2 %.2f\nqty %s", fillPx, p.Stop, p.Target1, p.Target2, inst.FormatQty(qty)))
	return errors.Join(errs...)
}

// announce reports an entry the engine took while real trading is off.
func (b *Bot) announce(ctx context.Context, p position.Position, sig market.Signal) {
	b.Recorder.Operation(journal.Operation{
		Time: p.EntryTime, Kind: journal.OpSignal, PositionID: p.ID, Symbol: p.Symbol, Side: p.Side,
		Price: p.EntryPrice, Qty: p.InitialSize, Detail: sig.Reason,
	})
	b.notify(ctx, notify.EventSignal,
		fmt.Sprintf("%s %s simulated signal", p.Side, p.Symbol),
		fmt.Sprintf("price %.2f\nstop %.2f\ntp1 %.2f\ntp2 %.2f\nqty %.5f\nno order placed", p.EntryPrice, p.Stop, p.Target1, p.Target2, p.InitialSize))
}

func (b *Bot) notifyClosed(ctx context.Context, closed []engine.ClosedTrade, capital float64) {
	for _, ct := range closed {
		b.notify(ctx, notify.EventExit,
			fmt.Sprintf("%s %s closed: %s", ct.Side, ct.Symbol, ct.ExitReason),
			fmt.Sprintf("exit %.2f, net %.4f USDT, capital %.2f", ct.ExitPrice, ct.NetPnL, capital))
	}
}

func (b *Bot) notify(ctx context.Context, event, title, msg string) {
	if err := b.Notifier.Notify(ctx, event, title, msg); err != nil {
		b.Log.Warn("notification failed", zap.String("event", event), zap.Error(err))
	}
}
