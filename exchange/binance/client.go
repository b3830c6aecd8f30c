// Package binance adapts the USD-M futures REST API to exchange.Exchange.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pricing"
)

type Options struct {
	APIKey    string
	APISecret string
	Testnet   bool
	ProxyURL  string

	// BaseURL overrides the REST endpoint. Tests point it at an httptest server.
	BaseURL string

	Instrument market.Instrument
}

// Client is safe for concurrent use; the underlying SDK client is stateless
// between calls.
type Client struct {
	api  *futures.Client
	inst market.Instrument
	log  *zap.Logger
}

var _ exchange.Exchange = (*Client)(nil)

func New(opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	// UseTestnet is read by the SDK when the client is built.
	futures.UseTestnet = opts.Testnet

	var api *futures.Client
	if opts.ProxyURL != "" {
		api = futures.NewProxiedClient(opts.APIKey, opts.APISecret, opts.ProxyURL)
	} else {
		api = futures.NewClient(opts.APIKey, opts.APISecret)
	}
	if opts.BaseURL != "" {
		api.BaseURL = opts.BaseURL
	}

	return &Client{
		api:  api,
		inst: opts.Instrument,
		log:  log.With(zap.String("venue", "binance-futures"), zap.Bool("testnet", opts.Testnet)),
	}
}

// clientOrderID is 34 characters, inside the venue's 36 limit.
func clientOrderID() string {
	return "pt" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (c *Client) SubmitMarket(ctx context.Context, symbol string, side exchange.OrderSide, qty float64) (exchange.Ack, error) {
	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(c.inst.FormatQty(qty)).
		NewClientOrderID(clientOrderID()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return exchange.Ack{}, fmt.Errorf("binance: market %s %s: %w", side, symbol, err)
	}
	c.log.Info("market order", zap.String("symbol", symbol), zap.String("side", string(side)),
		zap.Int64("order_id", res.OrderID), zap.String("avg_price", res.AvgPrice))
	return ackFrom(res), nil
}

func (c *Client) SubmitStop(ctx context.Context, symbol string, side exchange.OrderSide, qty float64, closeAll bool, stopPrice float64) (exchange.Ack, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeStopMarket).
		StopPrice(c.inst.FormatPrice(stopPrice)).
		WorkingType(futures.WorkingTypeMarkPrice).
		NewClientOrderID(clientOrderID())
	if closeAll {
		svc = svc.ClosePosition(true)
	} else {
		svc = svc.Quantity(c.inst.FormatQty(qty)).ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.Ack{}, fmt.Errorf("binance: stop %s %s @ %v: %w", side, symbol, stopPrice, err)
	}
	c.log.Info("stop order", zap.String("symbol", symbol), zap.String("side", string(side)),
		zap.Float64("stop", stopPrice), zap.Bool("close_position", closeAll), zap.Int64("order_id", res.OrderID))
	return ackFrom(res), nil
}

func (c *Client) SubmitLimitReduceOnly(ctx context.Context, symbol string, side exchange.OrderSide, qty, price float64) (exchange.Ack, error) {
	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(c.inst.FormatQty(qty)).
		Price(c.inst.FormatPrice(price)).
		ReduceOnly(true).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	if err != nil {
		return exchange.Ack{}, fmt.Errorf("binance: limit %s %s @ %v: %w", side, symbol, price, err)
	}
	c.log.Info("take profit order", zap.String("symbol", symbol), zap.String("side", string(side)),
		zap.Float64("price", price), zap.Float64("qty", qty), zap.Int64("order_id", res.OrderID))
	return ackFrom(res), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if _, err := c.api.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx); err != nil {
		return fmt.Errorf("binance: cancel %s #%d: %w", symbol, orderID, err)
	}
	return nil
}

func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	res, err := c.api.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: open orders %s: %w", symbol, err)
	}
	out := make([]exchange.Order, 0, len(res))
	for _, o := range res {
		out = append(out, exchange.Order{
			ID:            o.OrderID,
			ClientID:      o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          exchange.OrderSide(o.Side),
			Type:          exchange.OrderType(o.Type),
			Price:         parseFloat(o.Price),
			StopPrice:     parseFloat(o.StopPrice),
			Qty:           parseFloat(o.OrigQuantity),
			ReduceOnly:    o.ReduceOnly,
			ClosePosition: o.ClosePosition,
		})
	}
	return out, nil
}

// GetPosition reports the one-way net position. A missing row means flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (exchange.PositionInfo, error) {
	res, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.PositionInfo{}, fmt.Errorf("binance: position %s: %w", symbol, err)
	}
	info := exchange.PositionInfo{Symbol: symbol}
	for _, p := range res {
		if p.Symbol != symbol {
			continue
		}
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		info.Amount = amt
		info.EntryPrice = parseFloat(p.EntryPrice)
		break
	}
	return info, nil
}

// Klines returns the most recent candles, oldest first. The last one is usually
// still forming.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]pricing.Candle, error) {
	res, err := c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s %s: %w", symbol, interval, err)
	}
	return candlesFrom(symbol, res), nil
}

// KlinesBetween returns up to limit candles opening in [start, end), oldest
// first. A zero end leaves the range open.
func (c *Client) KlinesBetween(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]pricing.Candle, error) {
	svc := c.api.NewKlinesService().Symbol(symbol).Interval(interval).StartTime(start.UnixMilli()).Limit(limit)
	if !end.IsZero() {
		svc = svc.EndTime(end.UnixMilli() - 1)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s %s from %s: %w", symbol, interval, start.Format(time.RFC3339), err)
	}
	return candlesFrom(symbol, res), nil
}

func candlesFrom(symbol string, res []*futures.Kline) []pricing.Candle {
	out := make([]pricing.Candle, 0, len(res))
	for _, k := range res {
		out = append(out, pricing.Candle{
			Instrument: symbol,
			Time:       time.UnixMilli(k.OpenTime).UTC(),
			Open:       parseFloat(k.Open),
			High:       parseFloat(k.High),
			Low:        parseFloat(k.Low),
			Close:      parseFloat(k.Close),
			Volume:     parseFloat(k.Volume),
		})
	}
	return out
}

func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	res, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: price %s: %w", symbol, err)
	}
	for _, p := range res {
		if p.Symbol == symbol {
			return parseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("binance: no price for %s", symbol)
}

func (c *Client) AvailableBalance(ctx context.Context, asset string) (float64, error) {
	res, err := c.api.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: balance: %w", err)
	}
	for _, b := range res {
		if b.Asset == asset {
			return parseFloat(b.AvailableBalance), nil
		}
	}
	return 0, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("binance: ping: %w", err)
	}
	return nil
}

func ackFrom(res *futures.CreateOrderResponse) exchange.Ack {
	return exchange.Ack{
		OrderID:     res.OrderID,
		ClientID:    res.ClientOrderID,
		Status:      string(res.Status),
		AvgPrice:    parseFloat(res.AvgPrice),
		ExecutedQty: parseFloat(res.ExecutedQuantity),
	}
}

// parseFloat maps the venue's empty strings to zero.
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
