package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/exchange/paper"
	"github.com/rustyeddy/perptrader/market"
)

const sym = "BTCUSDT"

func setup(t *testing.T) (*paper.Paper, *Adapter) {
	t.Helper()
	ctx := context.Background()

	p := paper.New(1000)
	p.Mark(sym, 100)
	_, err := p.SubmitMarket(ctx, sym, exchange.Buy, 1)
	require.NoError(t, err)
	_, err = p.SubmitStop(ctx, sym, exchange.Sell, 0, true, 98)
	require.NoError(t, err)
	_, err = p.SubmitLimitReduceOnly(ctx, sym, exchange.Sell, 0.5, 103)
	require.NoError(t, err)
	_, err = p.SubmitLimitReduceOnly(ctx, sym, exchange.Sell, 0.5, 107)
	require.NoError(t, err)

	return p, New(p, Config{Instrument: market.BTCUSDT}, nil)
}

func stops(t *testing.T, p *paper.Paper) []exchange.Order {
	t.Helper()
	orders, err := p.ListOpenOrders(context.Background(), sym)
	require.NoError(t, err)
	var out []exchange.Order
	for _, o := range orders {
		if o.StopLike() {
			out = append(out, o)
		}
	}
	return out
}

func TestReconcileNothingFilled(t *testing.T) {
	t.Parallel()

	_, a := setup(t)
	r, err := a.Reconcile(context.Background())
	require.NoError(t, err)

	assert.False(t, r.Flat)
	assert.False(t, r.Target1Filled)
	assert.Equal(t, 2, r.TakeProfits)
	assert.Equal(t, 1, r.Stops)
	assert.Equal(t, ActionNone, r.Action())
	assert.Equal(t, market.Long, r.Side)
}

func TestReconcileMovesStopToBreakEven(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, a := setup(t)
	p.Mark(sym, 103.2)

	r, err := a.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, r.Target1Filled)
	assert.Equal(t, 100.0, r.StopMovedTo)
	assert.Len(t, r.Cancelled, 1)
	assert.Equal(t, ActionMoveStop, r.Action())
	assert.NotEmpty(t, r.Notes)

	s := stops(t, p)
	require.Len(t, s, 1)
	assert.Equal(t, 100.0, s[0].StopPrice)
	assert.True(t, s[0].ClosePosition)
	assert.Equal(t, exchange.Sell, s[0].Side)

	// second pass is a no-op
	r, err = a.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, r.AlreadyAtBreakEven)
	assert.Empty(t, r.Cancelled)
	assert.Equal(t, 0.0, r.StopMovedTo)
	assert.Equal(t, ActionAtEntry, r.Action())
	assert.Len(t, stops(t, p), 1)
}

func TestReconcileMissingStopIsReplaced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, a := setup(t)
	p.Mark(sym, 103.2)
	for _, s := range stops(t, p) {
		require.NoError(t, p.CancelOrder(ctx, sym, s.ID))
	}

	r, err := a.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Cancelled)
	assert.Equal(t, 100.0, r.StopMovedTo)
	assert.Len(t, stops(t, p), 1)
}

func TestReconcileStopWithinTolerance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := paper.New(0)
	p.SetPosition(sym, -0.5, 40000)
	_, err := p.SubmitStop(ctx, sym, exchange.Buy, 0, true, 40030) // 0.075% away
	require.NoError(t, err)
	_, err = p.SubmitLimitReduceOnly(ctx, sym, exchange.Buy, 0.25, 38000)
	require.NoError(t, err)

	a := New(p, Config{Instrument: market.BTCUSDT}, nil)
	r, err := a.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, r.AlreadyAtBreakEven)
	assert.Equal(t, market.Short, r.Side)
	assert.Equal(t, 40030.0, stops(t, p)[0].StopPrice)
}

func TestReconcileFlat(t *testing.T) {
	t.Parallel()

	p, a := setup(t)
	p.Mark(sym, 97)

	r, err := a.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Flat)
	assert.Equal(t, ActionFlat, r.Action())
}

func TestReconcileErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("boom")

	p, a := setup(t)
	p.FailNext(paper.OpPos, boom)
	_, err := a.Reconcile(ctx)
	assert.ErrorIs(t, err, boom)

	p.Mark(sym, 103.2)
	p.FailNext(paper.OpStop, boom)
	r, err := a.Reconcile(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, r.Cancelled, 1)
	assert.Contains(t, r.Notes[len(r.Notes)-1], "unprotected")

	// the next cycle repairs it
	r, err = a.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.StopMovedTo)
}

func TestReconcileUnprotectedNote(t *testing.T) {
	t.Parallel()

	p := paper.New(0)
	p.SetPosition(sym, 1, 100)
	a := New(p, Config{Instrument: market.BTCUSDT}, nil)

	r, err := a.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Target1Filled)
	require.Len(t, r.Notes, 1)
	assert.Contains(t, r.Notes[0], "no stop")
}
