package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxTradesPerDay:      5,
		MaxOpenPositions:     4,
		MaxDailyLoss:         -2,
		MaxConsecutiveLosses: 3,
	}
}

func TestLimitsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, testLimits().Validate())

	l := testLimits()
	l.MaxDailyLoss = 1
	assert.Error(t, l.Validate())

	l = testLimits()
	l.MaxOpenPositions = 0
	assert.Error(t, l.Validate())
}

func TestGovernorHaltsOnConsecutiveLosses(t *testing.T) {
	t.Parallel()

	g := NewGovernor(testLimits())
	g.Advance(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 4; i++ {
		g.RecordOpen()
	}
	assert.True(t, g.CanOpen(1))

	assert.False(t, g.RecordClose(-0.1, -0.1))
	assert.False(t, g.RecordClose(-0.1, -0.1))
	assert.True(t, g.CanOpen(1))

	assert.True(t, g.RecordClose(-0.1, -0.1))

	st := g.State()
	assert.Equal(t, 3, st.ConsecutiveLosses)
	assert.True(t, st.Halted)
	assert.Equal(t, HaltConsecutiveLosses, st.HaltReason)

	d := g.Check(1)
	assert.False(t, d.Allowed)
	assert.True(t, d.Has(CodeHalted))

	// the fourth position still settles; the governor only gates entries
	assert.False(t, g.RecordClose(0.5, 0.5))
	assert.Equal(t, 0, g.State().ConsecutiveLosses)
	assert.True(t, g.State().Halted)
}

func TestGovernorStreakResetsOnZero(t *testing.T) {
	t.Parallel()

	g := NewGovernor(testLimits())
	g.Advance(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	g.RecordClose(-0.1, -0.1)
	g.RecordClose(-0.1, -0.1)
	g.RecordClose(0, 0)
	assert.Equal(t, 0, g.State().ConsecutiveLosses)
	assert.False(t, g.State().Halted)
}

func TestGovernorDailyLoss(t *testing.T) {
	t.Parallel()

	g := NewGovernor(testLimits())
	g.Advance(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	g.RecordPartial(-0.5)
	assert.False(t, g.State().Halted)

	assert.True(t, g.RecordClose(-1.5, -2.0))
	st := g.State()
	assert.InDelta(t, -2.0, st.RealizedPnLToday, 1e-12)
	assert.Equal(t, HaltDailyLoss, st.HaltReason)
}

func TestGovernorCapacity(t *testing.T) {
	t.Parallel()

	g := NewGovernor(testLimits())
	g.Advance(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	d := g.Check(4)
	assert.False(t, d.Allowed)
	require.Len(t, d.Violations, 1)
	assert.Equal(t, CodeMaxOpenPositions, d.Violations[0].Code)

	for i := 0; i < 5; i++ {
		g.RecordOpen()
	}
	d = g.Check(4)
	assert.True(t, d.Has(CodeMaxTradesPerDay))
	assert.True(t, d.Has(CodeMaxOpenPositions))
	assert.Equal(t, "MAX_TRADES_PER_DAY,MAX_OPEN_POSITIONS", d.String())
}

func TestGovernorResetsOncePerDay(t *testing.T) {
	t.Parallel()

	g := NewGovernor(testLimits())
	day1 := time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)

	assert.True(t, g.Advance(day1))
	g.RecordOpen()
	g.RecordClose(-0.1, -0.1)
	g.RecordClose(-0.1, -0.1)
	g.RecordClose(-0.1, -0.1)
	require.True(t, g.State().Halted)

	for _, ts := range []time.Time{
		day1.Add(time.Hour),
		day1.Add(23*time.Hour + 50*time.Minute),
	} {
		assert.False(t, g.Advance(ts))
		assert.True(t, g.State().Halted)
	}

	assert.True(t, g.Advance(day1.Add(24*time.Hour)))
	st := g.State()
	assert.False(t, st.Halted)
	assert.Equal(t, 0, st.TradesToday)
	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.Equal(t, 0.0, st.RealizedPnLToday)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), st.Day)
}

func TestGovernorLocation(t *testing.T) {
	t.Parallel()

	l := testLimits()
	l.Location = time.FixedZone("UTC+8", 8*3600)
	g := NewGovernor(l)

	// 2024-03-01 15:00 UTC is 23:00 local, 17:00 UTC is the next local day
	assert.True(t, g.Advance(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)))
	assert.True(t, g.Advance(time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)))
	assert.False(t, g.Advance(time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)))
}
