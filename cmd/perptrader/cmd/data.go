package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/backtest"
	"github.com/rustyeddy/perptrader/pricing"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download market data for backtests",
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download closed klines from Binance futures into a bar CSV",
	Long: `Fetch pages through Binance futures klines and writes
time,open,high,low,close,volume rows that backtest --data reads.

Only closed bars are written. Public market data needs no API key.

Example:
  perptrader data fetch --interval 5m --from 2024-01-01 --to 2024-07-01 -o data/btcusdt-5m.csv`,
	Args: cobra.NoArgs,
	RunE: runDataFetch,
}

var (
	dataInterval string
	dataFrom     string
	dataTo       string
	dataOut      string
	dataPageSize int
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd)

	dataFetchCmd.Flags().StringVar(&dataInterval, "interval", "5m", "kline interval, e.g. 5m, 1h, 1d")
	dataFetchCmd.Flags().StringVar(&dataFrom, "from", "", "first day (YYYY-MM-DD, required)")
	dataFetchCmd.Flags().StringVar(&dataTo, "to", "", "end day, exclusive (YYYY-MM-DD, defaults to now)")
	dataFetchCmd.Flags().StringVarP(&dataOut, "out", "o", "bars.csv", "output CSV path")
	dataFetchCmd.Flags().IntVar(&dataPageSize, "page", 1500, "klines per request (max 1500)")
	_ = dataFetchCmd.MarkFlagRequired("from")
}

// klinesPager is the part of the Binance client the downloader needs.
type klinesPager interface {
	KlinesBetween(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]pricing.Candle, error)
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	step, err := intervalDuration(dataInterval)
	if err != nil {
		return err
	}
	from, err := parseDay(dataFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(dataTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if !from.Before(to) {
		return fmt.Errorf("--from must be before --to")
	}

	f, err := os.Create(dataOut)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w, err := backtest.NewBarWriter(f)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	err = fetchBars(cmd.Context(), buildBinance(cfg, log), w, fetchRange{
		symbol:   cfg.Instrument.Symbol,
		interval: dataInterval,
		step:     step,
		from:     from,
		to:       to,
		page:     dataPageSize,
	}, time.Now(), log)
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", w.Rows(), dataOut)
	return nil
}

type fetchRange struct {
	symbol   string
	interval string
	step     time.Duration
	from, to time.Time
	page     int
}

// fetchBars pages forward from the last written bar until to. Bars that have not
// closed by now are skipped.
func fetchBars(ctx context.Context, src klinesPager, w *backtest.BarWriter, r fetchRange, now time.Time, l *zap.Logger) error {
	page := r.page
	if page <= 0 || page > 1500 {
		page = 1500
	}
	from, to, step := r.from, r.to, r.step
	cur := from
	for cur.Before(to) {
		cs, err := src.KlinesBetween(ctx, r.symbol, r.interval, cur, to, page)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		if len(cs) == 0 {
			break
		}

		for _, c := range cs {
			if c.Time.Before(from) || !c.Time.Before(to) || c.Time.Add(step).After(now) {
				continue
			}
			if _, err := w.Write(c); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("csv flush: %w", err)
		}

		next := cs[len(cs)-1].Time.Add(step)
		if !next.After(cur) {
			break
		}
		cur = next
		l.Debug("page written", zap.Time("next", cur), zap.Int("rows", w.Rows()))
	}
	return nil
}

// intervalDuration understands the Binance interval suffixes m, h, d and w.
func intervalDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("bad interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad interval %q", s)
	}
	unit := map[string]time.Duration{
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}[strings.ToLower(s[len(s)-1:])]
	if unit == 0 || s[len(s)-1:] == "M" {
		return 0, fmt.Errorf("unsupported interval %q", s)
	}
	return time.Duration(n) * unit, nil
}
