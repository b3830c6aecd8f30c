package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/backtest"
	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/pkg/id"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay 5m bars through the engine",
	Long: `Backtest replays closed 5m bars through the same controller the live bot uses.

The hourly trend is aggregated from the 5m bars and only completed hours are
used. Positions open at the bar close; exits are checked on the next bars
with the stop first.

Bar CSV columns: time,open,high,low,close[,volume]
(time as RFC3339 or unix milliseconds)

Example:
  perptrader backtest --data data/btcusdt-5m.csv --from 2024-01-01 --to 2024-07-01 --org runs/h1.org`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btDataPath string
	btFrom     string
	btTo       string
	btStrategy string
	btDBPath   string
	btCSVDir   string
	btOrgPath  string
	btNoDB     bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btDataPath, "data", "t", "", "path to 5m bar CSV (defaults to backtest.data_file)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first day to replay (YYYY-MM-DD, inclusive)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "last day to replay (YYYY-MM-DD, exclusive)")
	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "strategy name (defaults to strategy.name)")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "SQLite journal (defaults to journal.db_path)")
	backtestCmd.Flags().StringVar(&btCSVDir, "csv", "", "write trades.csv and equity.csv to this directory instead of SQLite")
	backtestCmd.Flags().StringVar(&btOrgPath, "org", "", "write an org-mode report to this path")
	backtestCmd.Flags().BoolVar(&btNoDB, "no-db", false, "do not record the run in SQLite")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	dataPath := firstNonEmpty(btDataPath, cfg.Backtest.DataFile)
	if dataPath == "" {
		return fmt.Errorf("no bar data: pass --data or set backtest.data_file")
	}
	from, err := parseDay(btFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(btTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	stratName := firstNonEmpty(btStrategy, cfg.Strategy.Name)
	strat, err := strategies.ByName(stratName, cfg.Strategy.Params)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	ec := cfg.Engine(false)
	ec.NewID = id.NewGenerator(cfg.Backtest.Seed).At
	ctrl, err := engine.New(ec, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	feed, err := backtest.NewCSVBarsFeed(dataPath, from, to)
	if err != nil {
		return err
	}
	defer feed.Close()

	runID := "bt-" + id.New()
	var db *journal.SQLite
	if !btNoDB {
		db, err = journal.NewSQLite(firstNonEmpty(btDBPath, cfg.Journal.DBPath))
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
	}

	var sink journal.Journal
	switch {
	case btCSVDir != "":
		if err := os.MkdirAll(btCSVDir, 0o755); err != nil {
			return err
		}
		csvj, err := journal.NewCSV(filepath.Join(btCSVDir, "trades.csv"), filepath.Join(btCSVDir, "equity.csv"))
		if err != nil {
			return err
		}
		defer csvj.Close()
		sink = csvj
	case db != nil:
		sink = db
	}

	ctx := context.Background()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running backtest with strategy: %s\n", strat.Name())
	fmt.Fprintf(out, "  Bars: %s\n", dataPath)
	fmt.Fprintf(out, "  Run: %s\n\n", runID)

	runner := &backtest.Runner{
		Controller: ctrl,
		Feed:       feed,
		Features:   strategies.NewFeatures(cfg.Strategy.Params),
		Strategy:   strat,
		Recorder:   journal.NewRecorder(sink, runID, log),
		Log:        log,
		Options: backtest.RunnerOptions{
			CloseEnd:    cfg.Backtest.CloseEnd,
			CloseReason: position.ReasonEndOfData,
		},
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	run := res.Run(runID, cfg.Instrument.Symbol, strat.Name(), filepath.Base(dataPath))
	run.Config, _ = json.Marshal(cfg)
	run.OrgPath = btOrgPath
	if db != nil {
		if err := db.RecordBacktest(ctx, run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	if btOrgPath != "" {
		if err := run.WriteBacktestOrg(); err != nil {
			return fmt.Errorf("org report: %w", err)
		}
	}

	backtest.PrintBacktestRun(out, run)
	log.Info("backtest complete",
		zap.String("run_id", runID),
		zap.Int("bars", res.Bars),
		zap.Int("trades", run.Trades),
		zap.Float64("net_pnl", run.NetPnL))
	return nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
