package journal

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/engine"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	exit := time.Date(2024, 3, 15, 14, 20, 30, 0, time.UTC)
	trade := sampleTrade("01HRZ8K2ABCDEF", exit, 2.5)
	trade.RunID = "bt-1"

	result := FormatTradeOrg(trade)

	assert.Contains(t, result, "** Trade: BTCUSDT LONG (01HRZ8K2)")
	assert.Contains(t, result, ":TRADE_ID: 01HRZ8K2ABCDEF")
	assert.Contains(t, result, ":RUN_ID: bt-1")
	assert.Contains(t, result, ":ENTRY_PRICE: 42000.00")
	assert.Contains(t, result, ":INITIAL_STOP: 41370.00")
	assert.Contains(t, result, ":EXIT_TIME: 2024-03-15T14:20:30Z")
	assert.Contains(t, result, ":TP1_FILLED: true")
	assert.Contains(t, result, ":NET_PNL: 2.5000")
	assert.Contains(t, result, ":REASON: TARGET2")
	assert.Contains(t, result, ":END:")
	assert.Contains(t, result, "*** Review")

	live := FormatTradeOrg(sampleTrade("short", exit, 1))
	assert.Contains(t, live, "(short)")
	assert.NotContains(t, live, ":RUN_ID:")
}

func TestFormatTradesOrg(t *testing.T) {
	t.Parallel()

	exit := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	out := FormatTradesOrg([]TradeRecord{sampleTrade("a", exit, 1), sampleTrade("b", exit, -1)})
	assert.Equal(t, 2, strings.Count(out, ":PROPERTIES:"))
	assert.Empty(t, FormatTradesOrg(nil))
}

func TestBacktestOrg(t *testing.T) {
	t.Parallel()

	run := NewBacktestRun("run-7", "BTCUSDT", "trend-mean-reversion", engine.Stats{
		InitialCapital: 50, FinalCapital: 51.2, NetPnL: 1.2, ReturnPct: 2.4,
		Trades: 4, Wins: 4, WinRate: 100, ProfitFactor: math.Inf(1), MaxDrawdownPct: 1.5,
	})
	run.Notes = []string{"few trades"}
	run.NextActions = []string{"widen the sample"}

	var buf bytes.Buffer
	require.NoError(t, run.RenderOrg(&buf))
	out := buf.String()
	assert.Contains(t, out, "* BACKTEST: trend-mean-reversion BTCUSDT")
	assert.Contains(t, out, ":RUN_ID:      run-7")
	assert.Contains(t, out, ":PROFIT_FAC:  inf")
	assert.Contains(t, out, ":MAX_DD_PCT:  1.50")
	assert.Contains(t, out, "- few trades")
	assert.Contains(t, out, "- [ ] widen the sample")

	assert.Error(t, run.WriteBacktestOrg())

	run.OrgPath = filepath.Join(t.TempDir(), "run.org")
	require.NoError(t, run.WriteBacktestOrg())
	data, err := os.ReadFile(run.OrgPath)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}
