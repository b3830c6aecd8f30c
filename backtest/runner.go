package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/pricing"
	"github.com/rustyeddy/perptrader/strategies"
)

// RunnerOptions controls how the backtest runner behaves.
type RunnerOptions struct {
	// If true, close all open positions at the last close of the dataset.
	// Close reason will be CloseReason (or END_OF_DATA if empty).
	CloseEnd    bool
	CloseReason position.Reason
}

// Runner drives a controller bar by bar:
//  1. read next bar
//  2. features.Push(bar) and strategy.Evaluate(snapshot)
//  3. controller.Step(bar, signal)
type Runner struct {
	Controller *engine.Controller
	Feed       BarFeed
	Features   *strategies.Features
	Strategy   strategies.SignalSource
	Recorder   *journal.Recorder // optional
	Log        *zap.Logger       // optional
	Options    RunnerOptions
}

// Result summarises one run.
type Result struct {
	Stats   engine.Stats
	Start   time.Time
	End     time.Time
	Bars    int
	Signals int
	Skipped map[string]int
	Halts   int
}

func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Controller == nil {
		return Result{}, fmt.Errorf("backtest: Controller is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	if r.Features == nil {
		return Result{}, fmt.Errorf("backtest: Features is required")
	}
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}
	defer r.Feed.Close()

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	res := Result{Skipped: make(map[string]int)}
	var last pricing.Candle

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		c, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		if !last.Time.IsZero() && !c.Time.After(last.Time) {
			return Result{}, fmt.Errorf("backtest: bar %s is not after %s", c.Time.Format(time.RFC3339), last.Time.Format(time.RFC3339))
		}

		if res.Start.IsZero() {
			res.Start = c.Time
		}
		res.End = c.Time
		res.Bars++

		sig := r.Strategy.Evaluate(r.Features.Push(c))
		if sig.HasSide() {
			res.Signals++
		}

		out := r.Controller.Step(engine.Tick{Time: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}, sig)
		if out.Skipped != "" && out.Skipped != engine.SkipNoSignal {
			res.Skipped[out.Skipped]++
		}
		if out.Halted {
			res.Halts++
			log.Info("trading halted", zap.Time("at", c.Time), zap.String("reason", r.Controller.Snapshot().Daily.HaltReason))
		}
		r.Recorder.Outcome(out, len(r.Controller.Open()))
		last = c
	}

	if r.Options.CloseEnd && !last.Time.IsZero() {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = position.ReasonEndOfData
		}
		out := r.Controller.CloseAll(last.Time, last.Close, reason)
		r.Recorder.Outcome(out, 0)
	}

	res.Stats = r.Controller.Stats()
	log.Info("backtest finished",
		zap.Int("bars", res.Bars),
		zap.Int("trades", res.Stats.Trades),
		zap.Float64("net_pnl", res.Stats.NetPnL),
		zap.Float64("max_dd_pct", res.Stats.MaxDrawdownPct),
	)
	return res, nil
}
