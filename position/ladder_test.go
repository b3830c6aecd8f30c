package position

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/market"
)

func testLadder() *Ladder {
	return NewLadder(LadderConfig{TP1ClosePct: 0.5, MoveStopToEntry: true})
}

func obs(min int, high, low float64) Observation {
	return Observation{Time: t0.Add(time.Duration(min) * time.Minute), High: high, Low: low, Close: (high + low) / 2}
}

func TestLadderBreakEvenRatchet(t *testing.T) {
	t.Parallel()

	l := testLadder()
	p := newLong(t)

	f, ok, err := l.Step(p, obs(5, 104, 99))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ReasonTarget1, f.Reason)
	assert.Equal(t, 103.0, f.Price)
	assert.InDelta(t, 0.5, f.Qty, 1e-12)
	assert.True(t, p.Target1Filled)
	assert.Equal(t, p.EntryPrice, p.Stop)

	f, ok, err = l.Step(p, obs(10, 101, 99.5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ReasonStop, f.Reason)
	assert.Equal(t, 100.0, f.Price)
	assert.True(t, f.Final)
	assert.Equal(t, Closed, p.Status)
	assert.True(t, p.Target1Filled)
	assert.InDelta(t, 1.5, p.GrossPnL, 1e-12)
}

func TestLadderStopWinsSameBar(t *testing.T) {
	t.Parallel()

	l := testLadder()

	long := newLong(t)
	d := l.Evaluate(long, obs(5, 110, 97))
	assert.Equal(t, Stop, d.Action)
	assert.Equal(t, 98.0, d.Price)
	assert.Equal(t, 1.0, d.Qty)

	short, err := New(Params{Side: market.Short, Entry: 100, Stop: 102, Size: 1, R1: 1.5, R2: 3.5})
	require.NoError(t, err)
	d = l.Evaluate(short, obs(5, 102, 90))
	assert.Equal(t, Stop, d.Action)
	assert.Equal(t, 102.0, d.Price)
}

func TestLadderTarget2NeedsPriorTarget1(t *testing.T) {
	t.Parallel()

	l := testLadder()
	p := newLong(t)

	// a bar through both targets only takes target1
	d := l.Evaluate(p, obs(5, 108, 100.5))
	assert.Equal(t, Target1, d.Action)
	_, err := l.Apply(p, d, t0)
	require.NoError(t, err)

	d = l.Evaluate(p, obs(10, 108, 100.5))
	assert.Equal(t, Target2, d.Action)
	assert.Equal(t, 107.0, d.Price)
	assert.InDelta(t, 0.5, d.Qty, 1e-12)

	f, err := l.Apply(p, d, t0)
	require.NoError(t, err)
	assert.True(t, f.Final)
	assert.Equal(t, ReasonTarget2, p.ExitReason)
}

func TestLadderShortTargets(t *testing.T) {
	t.Parallel()

	l := testLadder()
	p, err := New(Params{ID: "S", Side: market.Short, Entry: 100, Stop: 102, Size: 2, R1: 1.5, R2: 3.5})
	require.NoError(t, err)

	assert.False(t, l.Evaluate(p, obs(5, 101, 97.5)).Fires())

	_, ok, err := l.Step(p, obs(10, 101, 96.9))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.0, p.Remaining, 1e-12)
	assert.Equal(t, 100.0, p.Stop)

	f, ok, err := l.Step(p, obs(15, 99, 92))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ReasonTarget2, f.Reason)
	assert.InDelta(t, 7.0, f.Gross, 1e-12)
}

func TestLadderWithoutBreakEven(t *testing.T) {
	t.Parallel()

	l := NewLadder(LadderConfig{TP1ClosePct: 0.5})
	p := newLong(t)

	_, ok, err := l.Step(p, obs(5, 103, 99))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 98.0, p.Stop)
	assert.True(t, p.Target1Filled)
}

func TestLadderIgnoresUnpricedExtremes(t *testing.T) {
	t.Parallel()

	l := testLadder()

	tests := []struct {
		name      string
		side      market.Side
		high, low float64
	}{
		{"long zero low", market.Long, 101, 0},
		{"long negative low", market.Long, 101, -1},
		{"long nan low", market.Long, 101, math.NaN()},
		{"long inf high", market.Long, math.Inf(1), 99},
		{"short zero low", market.Short, 101, 0},
		{"short nan high", market.Short, math.NaN(), 99},
		{"short inf high", market.Short, math.Inf(1), 99},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stop := 98.0
			if tt.side == market.Short {
				stop = 102
			}
			p, err := New(Params{Side: tt.side, Entry: 100, Stop: stop, Size: 1, R1: 1.5, R2: 3.5})
			require.NoError(t, err)
			assert.False(t, l.Evaluate(p, obs(5, tt.high, tt.low)).Fires())
		})
	}

	// one bad extreme does not hide the other
	p := newLong(t)
	assert.Equal(t, Target1, l.Evaluate(p, obs(5, 104, 0)).Action)
}

func TestLadderTakeTarget1(t *testing.T) {
	t.Parallel()

	l := testLadder()
	p := newLong(t)

	d := l.TakeTarget1(p)
	assert.Equal(t, Target1, d.Action)
	assert.Equal(t, 103.0, d.Price)
	assert.InDelta(t, 0.5, d.Qty, 1e-12)

	_, err := l.Apply(p, d, t0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Stop)
	assert.False(t, l.TakeTarget1(p).Fires())
}

func TestLadderConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, LadderConfig{TP1ClosePct: 0.5}.Validate())
	assert.Error(t, LadderConfig{TP1ClosePct: 0}.Validate())
	assert.Error(t, LadderConfig{TP1ClosePct: 1.2}.Validate())
}
