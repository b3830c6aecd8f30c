package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/live"
	"github.com/rustyeddy/perptrader/metrics"
	"github.com/rustyeddy/perptrader/pkg/id"
	"github.com/rustyeddy/perptrader/reconcile"
	"github.com/rustyeddy/perptrader/strategies"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the bot on closed 5m bars",
	Long: `Live wakes shortly after every 5m boundary, reconciles with the venue,
evaluates the last closed bar and places a bracket (market entry, closing
stop, two reduce-only take-profits) for each entry the engine takes.

Orders are only sent when exchange.real_trading_enabled is true and API
keys are set. Otherwise entries are announced as simulated signals.
With --paper orders go to an in-memory book priced from Binance.

Examples:
  perptrader live -c perptrader.yaml
  perptrader live --paper --metrics :9108`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

var (
	livePaper   bool
	liveMetrics string
	liveOnce    bool
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().BoolVar(&livePaper, "paper", false, "trade against an in-memory order book")
	liveCmd.Flags().StringVar(&liveMetrics, "metrics", "", "Prometheus listen address (defaults to live.metrics_addr, \"off\" disables)")
	liveCmd.Flags().BoolVar(&liveOnce, "once", false, "run a single cycle and exit")
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strat, err := strategies.ByName(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	bn := buildBinance(cfg, log)
	var venue exchange.Exchange = bn
	realTrading := cfg.Exchange.RealTradingEnabled
	if livePaper {
		venue = newPaperVenue(cfg.Account.InitialCapital, bn)
		realTrading = true
	}

	ec := cfg.Engine(true)
	ec.NewID = id.At
	if realTrading && ec.Limits.MaxOpenPositions > 1 {
		log.Warn("orders go to one netted position, holding a single position",
			zap.Int("max_open_positions", ec.Limits.MaxOpenPositions))
		ec.Limits.MaxOpenPositions = 1
	}
	ctrl, err := engine.New(ec, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	db, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	runID := "live-" + id.New()

	bot, err := live.New(live.Deps{
		Exchange:   venue,
		Controller: ctrl,
		Strategy:   strat,
		Params:     cfg.Strategy.Params,
		Reconciler: reconcile.New(venue, reconcile.Config{Instrument: cfg.Instrument}, log),
		Recorder:   journal.NewRecorder(db, runID, log),
		Notifier:   buildNotifier(cfg, log),
		Log:        log,
	}, live.Options{
		Instrument:    cfg.Instrument,
		BarInterval:   cfg.Live.BarInterval,
		TrendInterval: cfg.Live.TrendInterval,
		KlineLimit:    cfg.Live.KlineLimit,
		Interval:      cfg.Live.Interval,
		SettleBuffer:  cfg.Live.SettleBuffer,
		RealTrading:   realTrading,
		TP1ClosePct:   cfg.Exits.TP1ClosePct,
	})
	if err != nil {
		return err
	}

	log.Info("starting live bot",
		zap.String("run_id", runID),
		zap.Bool("paper", livePaper),
		zap.Bool("real_trading", realTrading),
		zap.Bool("testnet", cfg.Exchange.Testnet))

	if liveOnce {
		_ = bot.Start(ctx)
		c, err := bot.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bar %s close %.2f signal %q\n%s\n",
			c.Bar.Time.Format(time.RFC3339), c.Bar.Close, c.Signal.Side, ctrl.Snapshot())
		return nil
	}

	err = runLoop(ctx, bot, firstNonEmpty(liveMetrics, cfg.Live.MetricsAddr), log)
	log.Info("live bot exited", zap.String("state", ctrl.Snapshot().String()))
	return err
}

type looper interface {
	Run(ctx context.Context) error
}

// runLoop runs bot until ctx ends, with a metrics server on addr unless addr is
// empty or "off". A metrics server that cannot listen is logged and the bot keeps
// running.
func runLoop(ctx context.Context, bot looper, addr string, l *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if addr != "" && addr != "off" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			l.Info("metrics listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metrics.CycleError("metrics")
				l.Error("metrics server failed, trading continues", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				l.Warn("metrics shutdown", zap.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}
