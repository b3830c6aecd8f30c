package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/backtest"
	"github.com/rustyeddy/perptrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display journal records from the SQLite database.

Subcommands:
  trade    - Get details of a specific trade by ID
  today    - List trades closed today
  day      - List trades closed on a specific day, with a summary
  run      - List the trades of one backtest or live run
  backtest - Show a recorded backtest run
  equity   - Show live equity snapshots
  ops      - Show recent order operations

Examples:
  perptrader journal trade <trade-id>
  perptrader journal today
  perptrader journal day 2024-01-15
  perptrader journal equity --since 24h
  perptrader journal ops -n 20`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		return runJournalDay(cmd, []string{time.Now().In(loc).Format("2006-01-02")})
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "List the trades of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalBacktestCmd = &cobra.Command{
	Use:   "backtest <run-id>",
	Short: "Show a recorded backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalBacktest,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity",
	Short: "Show live equity snapshots",
	Args:  cobra.NoArgs,
	RunE:  runJournalEquity,
}

var journalOpsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Show recent order operations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalOps,
}

var (
	journalDBPath string
	journalSince  time.Duration
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd, journalTodayCmd, journalDayCmd, journalRunCmd,
		journalBacktestCmd, journalEquityCmd, journalOpsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (defaults to journal.db_path)")
	journalEquityCmd.Flags().DurationVar(&journalSince, "since", 24*time.Hour, "how far back to look")
	journalOpsCmd.Flags().DurationVar(&journalSince, "since", 24*time.Hour, "how far back to look")
	journalOpsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "maximum rows")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(firstNonEmpty(journalDBPath, cfg.Journal.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	start, end, err := dayBounds(loc, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	sum, err := j.Summarize(start, end)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, journal.FormatTradesOrg(recs))
	printSummary(out, args[0], sum)
	return nil
}

func printSummary(w io.Writer, day string, s journal.DaySummary) {
	pf := fmt.Sprintf("%.2f", s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "inf"
	}
	fmt.Fprintf(w, "%s: %d trade(s), %d win(s), net %.4f USDT, profit factor %s\n",
		day, s.Trades, s.Wins, s.NetPnL, pf)
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesByRunID(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalBacktest(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetBacktestRun(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	backtest.PrintBacktestRun(cmd.OutOrStdout(), run)
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	end := time.Now()
	snaps, err := j.ListEquityBetween(end.Add(-journalSince), end)
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-25s %12s %12s %12s %5s\n", "time", "capital", "unrealized", "equity", "open")
	for _, s := range snaps {
		fmt.Fprintf(out, "%-25s %12.4f %12.4f %12.4f %5d\n",
			s.Time.Format(time.RFC3339), s.Capital, s.Unrealized, s.Equity, s.OpenPositions)
	}
	return nil
}

func runJournalOps(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	ops, err := j.ListOperations(time.Now().Add(-journalSince), journalLimit)
	if err != nil {
		return fmt.Errorf("query operations: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, op := range ops {
		fmt.Fprintf(out, "%s %-9s %-8s %-5s px=%-10.2f qty=%-8.3f order=%d %s\n",
			op.Time.Format(time.RFC3339), op.Kind, op.Symbol, op.Side, op.Price, op.Qty, op.OrderID, op.Detail)
	}
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
