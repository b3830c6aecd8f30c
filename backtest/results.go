package backtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/perptrader/journal"
)

// Run converts the result into a journal row.
func (r Result) Run(runID, symbol, strategy, dataset string) journal.BacktestRun {
	run := journal.NewBacktestRun(runID, symbol, strategy, r.Stats)
	run.Dataset = dataset
	run.Start = r.Start
	run.End = r.End
	if r.Halts > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("daily governor halted trading %d time(s)", r.Halts))
	}
	keys := make([]string, 0, len(r.Skipped))
	for k := range r.Skipped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		run.Notes = append(run.Notes, fmt.Sprintf("%d signal(s) skipped: %s", r.Skipped[k], k))
	}
	return run
}

func PrintBacktestRun(w io.Writer, r journal.BacktestRun) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Created:       %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)
	fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Capital: %.2f\n", r.StartCapital)
	fmt.Fprintf(w, "End Capital:   %.2f\n", r.EndCapital)
	fmt.Fprintf(w, "Net PnL:       %.4f\n", r.NetPnL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)
	fmt.Fprintf(w, "Commission:    %.4f\n", r.Commission)

	switch {
	case math.IsInf(r.ProfitFactor, 1):
		fmt.Fprintln(w, "Profit Factor: inf")
	case r.ProfitFactor > 0:
		fmt.Fprintf(w, "Profit Factor: %.2f\n", r.ProfitFactor)
	}
	if r.MaxDDPct > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDDPct)
	}

	if r.OrgPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Org Report:    %s\n", r.OrgPath)
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}

	if len(r.NextActions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Next Actions")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, action := range r.NextActions {
			fmt.Fprintf(w, "- [ ] %s\n", action)
		}
	}

	fmt.Fprintln(w)
}
