package binance

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/market"
)

type recorded struct {
	method string
	path   string
	params url.Values
}

func newTestClient(t *testing.T, routes map[string]string) (*Client, *[]recorded) {
	t.Helper()

	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		params := r.URL.Query()
		if form, err := url.ParseQuery(string(body)); err == nil {
			for k, v := range form {
				params[k] = v
			}
		}
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, params: params})

		for suffix, resp := range routes {
			if strings.HasSuffix(r.URL.Path, suffix) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, resp)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":-1,"msg":"not found"}`)
	}))
	t.Cleanup(srv.Close)

	c := New(Options{APIKey: "k", APISecret: "s", BaseURL: srv.URL, Instrument: market.BTCUSDT}, zap.NewNop())
	return c, &calls
}

func TestKlines(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/klines": `[
			[1704067200000,"42000.1","42100.0","41900.5","42050.0","12.5",1704067499999,"0",10,"0","0","0"],
			[1704067500000,"42050.0","42200.0","42000.0","42150.0","8.1",1704067799999,"0",7,"0","0","0"]
		]`,
	})

	candles, err := c.Klines(context.Background(), "BTCUSDT", "5m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Time)
	assert.Equal(t, 42000.1, candles[0].Open)
	assert.Equal(t, 41900.5, candles[0].Low)
	assert.Equal(t, 42150.0, candles[1].Close)
	assert.Equal(t, "BTCUSDT", candles[1].Instrument)
}

func TestKlinesBetween(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/klines": `[[1704067200000,"42000.1","42100.0","41900.5","42050.0","12.5",1704067499999,"0",10,"0","0","0"]]`,
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles, err := c.KlinesBetween(context.Background(), "BTCUSDT", "5m", start, start.Add(time.Hour), 1500)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, start, candles[0].Time)

	require.Len(t, *calls, 1)
	p := (*calls)[0].params
	assert.Equal(t, "1704067200000", p.Get("startTime"))
	assert.Equal(t, "1704070799999", p.Get("endTime"))
	assert.Equal(t, "1500", p.Get("limit"))
}

func TestGetPosition(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"positionRisk": `[{"symbol":"BTCUSDT","positionAmt":"-0.004","entryPrice":"42000.5","positionSide":"BOTH"}]`,
	})

	pos, err := c.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, -0.004, pos.Amount)
	assert.Equal(t, 42000.5, pos.EntryPrice)
	assert.Equal(t, market.Short, pos.Side())
}

func TestGetPositionFlat(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"positionRisk": `[{"symbol":"BTCUSDT","positionAmt":"0.000","entryPrice":"0.0","positionSide":"BOTH"}]`,
	})

	pos, err := c.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, pos.Flat())
}

func TestListOpenOrders(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/openOrders": `[
			{"orderId":11,"symbol":"BTCUSDT","clientOrderId":"a","price":"43000","origQty":"0.002","side":"SELL","type":"LIMIT","stopPrice":"0","reduceOnly":true,"closePosition":false},
			{"orderId":12,"symbol":"BTCUSDT","clientOrderId":"b","price":"0","origQty":"0","side":"SELL","type":"STOP_MARKET","stopPrice":"41000","reduceOnly":true,"closePosition":true}
		]`,
	})

	orders, err := c.ListOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.True(t, orders[0].TakeProfitLike())
	assert.Equal(t, 43000.0, orders[0].Price)
	assert.Equal(t, 0.002, orders[0].Qty)
	assert.True(t, orders[1].StopLike())
	assert.True(t, orders[1].ClosePosition)
	assert.Equal(t, exchange.Sell, orders[1].Side)
	assert.Equal(t, 41000.0, orders[1].StopPrice)
}

func TestSubmitStopClosePosition(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/order": `{"orderId":99,"clientOrderId":"x","status":"NEW","avgPrice":"0","executedQty":"0"}`,
	})

	ack, err := c.SubmitStop(context.Background(), "BTCUSDT", exchange.Sell, 0.003, true, 41234.56)
	require.NoError(t, err)
	assert.Equal(t, int64(99), ack.OrderID)
	assert.Equal(t, "NEW", ack.Status)

	require.Len(t, *calls, 1)
	p := (*calls)[0].params
	assert.Equal(t, "STOP_MARKET", p.Get("type"))
	assert.Equal(t, "41234.6", p.Get("stopPrice"))
	assert.Equal(t, "true", p.Get("closePosition"))
	assert.Empty(t, p.Get("quantity"))
	assert.Len(t, p.Get("newClientOrderId"), 34)
}

func TestSubmitLimitReduceOnlyRounds(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/order": `{"orderId":7,"clientOrderId":"y","status":"NEW","avgPrice":"0","executedQty":"0"}`,
	})

	_, err := c.SubmitLimitReduceOnly(context.Background(), "BTCUSDT", exchange.Buy, 0.0029, 40000.04)
	require.NoError(t, err)

	p := (*calls)[0].params
	assert.Equal(t, "LIMIT", p.Get("type"))
	assert.Equal(t, "0.002", p.Get("quantity"))
	assert.Equal(t, "40000.0", p.Get("price"))
	assert.Equal(t, "true", p.Get("reduceOnly"))
	assert.Equal(t, "GTC", p.Get("timeInForce"))
}

func TestErrorsAreWrapped(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{})

	_, err := c.Klines(context.Background(), "BTCUSDT", "5m", 10)
	assert.ErrorContains(t, err, "binance: klines")

	err = c.CancelOrder(context.Background(), "BTCUSDT", 5)
	assert.ErrorContains(t, err, "binance: cancel BTCUSDT #5")
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 0.0, parseFloat(""))
	assert.Equal(t, 1.25, parseFloat("1.25"))
}
