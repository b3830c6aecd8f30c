package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/id"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/reconcile"
	"github.com/rustyeddy/perptrader/risk"
)

var day1 = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func testConfig() Config {
	gen := id.NewGenerator(1)
	return Config{
		Symbol:         "BTCUSDT",
		InitialCapital: 100,
		RiskPct:        0.02,
		AllocationPct:  0.2,
		Leverage:       5,
		StopPct:        0.02,
		UseATRStop:     true,
		ATRMultiplier:  2,
		R1:             1.5,
		R2:             3.5,
		Ladder:         position.LadderConfig{TP1ClosePct: 0.5, MoveStopToEntry: true},
		Limits: risk.Limits{
			MaxTradesPerDay:      5,
			MaxOpenPositions:     4,
			MaxDailyLoss:         -100,
			MaxConsecutiveLosses: 3,
		},
		NewID: gen.At,
	}
}

func newController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(cfg, nil)
	require.NoError(t, err)
	return c
}

func bar(min int, high, low, close float64) Tick {
	return Tick{Time: day1.Add(time.Duration(min) * time.Minute), Open: close, High: high, Low: low, Close: close}
}

var long = market.Signal{Side: market.Long, Reason: "test"}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.R2 = 1
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.Symbol = ""
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestStepLifecycleBreakEven(t *testing.T) {
	t.Parallel()

	c := newController(t, testConfig())

	out := c.Step(bar(0, 100, 100, 100), long)
	require.NotNil(t, out.Opened)
	assert.Equal(t, 98.0, out.Opened.Stop)
	assert.InDelta(t, 1.0, out.Opened.InitialSize, 1e-12)
	assert.InDelta(t, 103.0, out.Opened.Target1, 1e-9)
	assert.InDelta(t, 107.0, out.Opened.Target2, 1e-9)
	assert.Equal(t, 100.0, out.Equity.Equity)
	assert.Equal(t, 1, c.Snapshot().Daily.TradesToday)

	out = c.Step(bar(5, 104, 99, 102), market.None)
	assert.InDelta(t, 102.0, out.Equity.Equity, 1e-9)
	require.Len(t, out.Exits, 1)
	assert.Equal(t, position.ReasonTarget1, out.Exits[0].Fill.Reason)
	assert.Empty(t, out.Closed)
	assert.Equal(t, SkipNoSignal, out.Skipped)
	assert.InDelta(t, 101.5, c.Capital(), 1e-9)

	open := c.Open()
	require.Len(t, open, 1)
	assert.Equal(t, 100.0, open[0].Stop)
	assert.True(t, open[0].Target1Filled)

	out = c.Step(bar(10, 101, 99.5, 100), market.None)
	require.Len(t, out.Closed, 1)
	ct := out.Closed[0]
	assert.Equal(t, position.ReasonStop, ct.ExitReason)
	assert.Equal(t, 100.0, ct.ExitPrice)
	assert.Equal(t, 98.0, ct.InitialStop)
	assert.InDelta(t, 1.5, ct.NetPnL, 1e-9)
	assert.Empty(t, c.Open())
	assert.InDelta(t, 101.5, c.Capital(), 1e-9)
	assert.Len(t, c.Equity(), 3)
}

func TestStepATRStop(t *testing.T) {
	t.Parallel()

	c := newController(t, testConfig())

	out := c.Step(bar(0, 100, 100, 100), market.Signal{Side: market.Short, ATR: 1.5})
	require.NotNil(t, out.Opened)
	assert.Equal(t, 103.0, out.Opened.Stop)
	assert.InDelta(t, 2.0/3.0, out.Opened.InitialSize, 1e-12)

	// NaN ATR falls back to the percentage stop
	c = newController(t, testConfig())
	out = c.Step(bar(0, 100, 100, 100), market.Signal{Side: market.Short, ATR: math.NaN()})
	require.NotNil(t, out.Opened)
	assert.Equal(t, 102.0, out.Opened.Stop)
}

func TestStepStopFirstWithCommission(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Ladder.CommissionRate = 0.0005
	c := newController(t, cfg)

	c.Step(bar(0, 100, 100, 100), long)
	out := c.Step(bar(5, 110, 97, 105), market.None)

	require.Len(t, out.Closed, 1)
	ct := out.Closed[0]
	assert.Equal(t, position.ReasonStop, ct.ExitReason)
	assert.InDelta(t, -2.0, ct.GrossPnL, 1e-9)
	assert.InDelta(t, 100*0.0005+98*0.0005, ct.Commission, 1e-12)
	assert.InDelta(t, 100+ct.NetPnL, c.Capital(), 1e-9)
	assert.Equal(t, 1, c.Snapshot().Daily.ConsecutiveLosses)
}

func TestStepHaltKeepsManagingOpenPositions(t *testing.T) {
	t.Parallel()

	c := newController(t, testConfig())

	// same entry, stops at 99, 98, 97 and 90
	for i, atr := range []float64{0.5, 1, 1.5, 5} {
		out := c.Step(bar(i*5, 100, 100, 100), market.Signal{Side: market.Long, ATR: atr})
		require.NotNil(t, out.Opened, "entry %d", i)
	}
	require.Len(t, c.Open(), 4)

	out := c.Step(bar(20, 100, 96.5, 97), market.None)
	assert.Len(t, out.Exits, 3)
	assert.Len(t, out.Closed, 3)
	assert.True(t, out.Halted)

	st := c.Snapshot().Daily
	assert.True(t, st.Halted)
	assert.Equal(t, risk.HaltConsecutiveLosses, st.HaltReason)
	assert.Equal(t, 3, st.ConsecutiveLosses)

	out = c.Step(bar(25, 98, 97, 97.5), long)
	assert.Nil(t, out.Opened)
	assert.Equal(t, SkipGovernor, out.Skipped)
	assert.True(t, out.Decision.Has(risk.CodeHalted))

	// the surviving position still takes its first target
	out = c.Step(bar(30, 116, 101, 115), market.None)
	require.Len(t, out.Exits, 1)
	assert.Equal(t, position.ReasonTarget1, out.Exits[0].Fill.Reason)
	open := c.Open()
	require.Len(t, open, 1)
	assert.Equal(t, 100.0, open[0].Stop)

	// next calendar day lifts the halt
	out = c.Step(Tick{Time: day1.Add(24 * time.Hour), Open: 100, High: 100, Low: 100, Close: 100}, long)
	assert.True(t, out.NewDay)
	assert.NotNil(t, out.Opened)
}

func TestStepCapacity(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Limits.MaxOpenPositions = 2
	c := newController(t, cfg)

	c.Step(bar(0, 100, 100, 100), long)
	c.Step(bar(5, 100, 100, 100), long)
	out := c.Step(bar(10, 100, 100, 100), long)
	assert.Nil(t, out.Opened)
	assert.True(t, out.Decision.Has(risk.CodeMaxOpenPositions))
	assert.Len(t, c.Open(), 2)
}

func TestStepInvalidTickStillManagesExits(t *testing.T) {
	t.Parallel()

	c := newController(t, testConfig())
	c.Step(bar(0, 100, 100, 100), long)

	out := c.Step(Tick{Time: day1.Add(5 * time.Minute), High: 104, Low: 99, Close: math.NaN()}, long)
	assert.Equal(t, SkipInvalidTick, out.Skipped)
	assert.Nil(t, out.Opened)
	require.Len(t, out.Exits, 1)
	assert.Equal(t, position.ReasonTarget1, out.Exits[0].Fill.Reason)
	assert.Equal(t, 100.0, out.Equity.Equity)
}

func TestStepZeroQuantityAfterRounding(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.InitialCapital = 50
	cfg.Instrument = market.BTCUSDT
	c := newController(t, cfg)

	out := c.Step(bar(0, 90000, 90000, 90000), long)
	assert.Nil(t, out.Opened)
	assert.Equal(t, SkipZeroQty, out.Skipped)

	out = c.Step(bar(5, 40000, 40000, 40000), long)
	require.NotNil(t, out.Opened)
	assert.Equal(t, 0.001, out.Opened.InitialSize)
}

func TestApplyReconciliation(t *testing.T) {
	t.Parallel()

	c := newController(t, testConfig())
	c.Step(bar(0, 100, 100, 100), long)

	out := c.ApplyReconciliation(reconcile.Report{Symbol: "BTCUSDT", Target1Filled: true}, day1.Add(5*time.Minute), 101)
	require.Len(t, out.Exits, 1)
	assert.Equal(t, position.ReasonTarget1, out.Exits[0].Fill.Reason)
	assert.Equal(t, 103.0, out.Exits[0].Fill.Price)
	assert.InDelta(t, 0.5, out.Exits[0].Fill.Qty, 1e-12)
	assert.Empty(t, out.Closed)

	open := c.Open()
	require.Len(t, open, 1)
	assert.True(t, open[0].Target1Filled)
	assert.Equal(t, 100.0, open[0].Stop)
	assert.InDelta(t, 0.5, open[0].Remaining, 1e-12)
	assert.InDelta(t, 101.5, c.Capital(), 1e-9)
	assert.InDelta(t, 1.5, c.Snapshot().Daily.RealizedPnLToday, 1e-9)

	// a repeated report books nothing
	out = c.ApplyReconciliation(reconcile.Report{Symbol: "BTCUSDT", Target1Filled: true}, day1.Add(6*time.Minute), 101)
	assert.Empty(t, out.Exits)

	// a report for another symbol is ignored
	out = c.ApplyReconciliation(reconcile.Report{Symbol: "ETHUSDT", Flat: true}, day1, 101)
	assert.Empty(t, out.Closed)

	out = c.ApplyReconciliation(reconcile.Report{Symbol: "BTCUSDT", Flat: true}, day1.Add(10*time.Minute), 101)
	require.Len(t, out.Closed, 1)
	assert.Equal(t, position.ReasonExchangeFlat, out.Closed[0].ExitReason)
	assert.InDelta(t, 2.0, out.Closed[0].NetPnL, 1e-9)
	assert.Empty(t, c.Open())
}

func TestReconciledTarget1BooksLikeLadder(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Ladder.CommissionRate = 0.0005
	cfg.Limits.MaxConsecutiveLosses = 1

	observed := newController(t, cfg)
	observed.Step(bar(0, 100, 100, 100), long)
	out := observed.Step(bar(5, 104, 99, 102), market.None)
	require.Len(t, out.Exits, 1)

	reconciled := newController(t, cfg)
	reconciled.Step(bar(0, 100, 100, 100), long)
	out = reconciled.ApplyReconciliation(reconcile.Report{Symbol: "BTCUSDT", Target1Filled: true}, day1.Add(5*time.Minute), 102)
	require.Len(t, out.Exits, 1)

	// both stop out at break-even
	for name, c := range map[string]*Controller{"observed": observed, "reconciled": reconciled} {
		out := c.Step(bar(10, 101, 99.5, 100), market.None)
		require.Len(t, out.Closed, 1, name)
		assert.False(t, out.Halted, name)

		ct := out.Closed[0]
		assert.Equal(t, position.ReasonStop, ct.ExitReason, name)
		assert.True(t, ct.Target1Filled, name)
		assert.InDelta(t, 1.5, ct.GrossPnL, 1e-9, name)
		assert.InDelta(t, 1.39925, ct.NetPnL, 1e-9, name)
		assert.InDelta(t, 100+ct.NetPnL, c.Capital(), 1e-9, name)

		st := c.Snapshot().Daily
		assert.Equal(t, 0, st.ConsecutiveLosses, name)
		assert.False(t, st.Halted, name)
		assert.InDelta(t, 1.39925, st.RealizedPnLToday, 1e-9, name)
	}
}

func TestStepUnpricedBarKeepsPosition(t *testing.T) {
	t.Parallel()

	c := newController(t, testConfig())
	c.Step(bar(0, 100, 100, 100), long)

	out := c.Step(Tick{Time: day1.Add(5 * time.Minute), High: 100.5, Low: 0, Close: 100}, market.None)
	assert.Empty(t, out.Exits)
	require.Len(t, c.Open(), 1)
	assert.Equal(t, 0, c.Snapshot().Daily.ConsecutiveLosses)
}

func TestCloseAllAndStats(t *testing.T) {
	t.Parallel()

	c := newController(t, testConfig())
	c.Step(bar(0, 100, 100, 100), long)
	c.Step(bar(5, 99, 97, 98.5), market.None) // stopped at 98
	c.Step(bar(10, 100, 100, 100), long)
	c.Step(bar(15, 102, 100, 101), market.None)

	out := c.CloseAll(day1.Add(20*time.Minute), 101, position.ReasonEndOfData)
	require.Len(t, out.Closed, 1)

	s := c.Stats()
	assert.Equal(t, 2, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.InDelta(t, c.Capital()-100, s.NetPnL, 1e-9)
	assert.Greater(t, s.MaxDrawdownPct, 0.0)
}

func TestMaxDrawdown(t *testing.T) {
	t.Parallel()

	pts := []EquityPoint{{Equity: 100}, {Equity: 120}, {Equity: 90}, {Equity: 130}, {Equity: 117}}
	assert.InDelta(t, 0.25, MaxDrawdown(pts), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}
