package journal

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"text/template"
	"time"

	"github.com/rustyeddy/perptrader/engine"
)

// BacktestRun mirrors the backtest_runs table.
type BacktestRun struct {
	RunID   string
	Created time.Time
	Dataset string

	Symbol   string
	Strategy string
	Config   []byte // yaml of the run's settings

	Start time.Time
	End   time.Time

	Trades int
	Wins   int
	Losses int

	StartCapital float64
	EndCapital   float64

	NetPnL       float64
	ReturnPct    float64
	WinRate      float64 // percent
	ProfitFactor float64
	Commission   float64
	MaxDDPct     float64

	OrgPath     string
	Notes       []string
	NextActions []string
}

// NewBacktestRun copies the run statistics into a journal row.
func NewBacktestRun(runID, symbol, strategy string, s engine.Stats) BacktestRun {
	return BacktestRun{
		RunID:        runID,
		Created:      time.Now().UTC(),
		Symbol:       symbol,
		Strategy:     strategy,
		Trades:       s.Trades,
		Wins:         s.Wins,
		Losses:       s.Losses,
		StartCapital: s.InitialCapital,
		EndCapital:   s.FinalCapital,
		NetPnL:       s.NetPnL,
		ReturnPct:    s.ReturnPct,
		WinRate:      s.WinRate,
		ProfitFactor: s.ProfitFactor,
		Commission:   s.Commission,
		MaxDDPct:     s.MaxDrawdownPct,
	}
}

var backtestOrgFuncs = template.FuncMap{
	"pf": func(x float64) string {
		switch {
		case math.IsInf(x, 1):
			return "inf"
		case x == 0:
			return "(profit-factor?)"
		}
		return fmt.Sprintf("%.2f", x)
	},
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var backtestOrg = template.Must(template.New("backtest").Funcs(backtestOrgFuncs).Parse(BacktestOrgTemplate))

func (v *BacktestRun) RenderOrg(w io.Writer) error {
	return backtestOrg.Execute(w, v)
}

// WriteBacktestOrg renders the run to OrgPath.
func (v *BacktestRun) WriteBacktestOrg() error {
	if v.OrgPath == "" {
		return fmt.Errorf("journal: OrgPath is empty")
	}
	buf := new(bytes.Buffer)
	if err := v.RenderOrg(buf); err != nil {
		return err
	}
	return os.WriteFile(v.OrgPath, buf.Bytes(), 0o644)
}

const BacktestOrgTemplate = `
* BACKTEST: {{.Strategy}} {{.Symbol}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:SYMBOL:      {{.Symbol}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_CAP:   {{printf "%.2f" .StartCapital}}
:END_CAP:     {{printf "%.2f" .EndCapital}}
:NET_PNL:     {{printf "%.4f" .NetPnL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:PROFIT_FAC:  {{pf .ProfitFactor}}
:COMMISSION:  {{printf "%.4f" .Commission}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Settings
#+begin_src yaml
{{printf "%s" .Config}}
#+end_src

** Performance Summary
- Net PnL:          *{{printf "%.4f" .NetPnL}} USDT*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" .WinRate}}%*
- Profit Factor:    *{{pf .ProfitFactor}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}

{{- if .NextActions }}
** Notes / Next Actions
{{- range .NextActions }}
- [ ] {{.}}
{{- end }}
{{- end }}
`
