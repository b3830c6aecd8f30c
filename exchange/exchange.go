// Package exchange defines the execution boundary between the engine and a venue.
// Quantities and prices crossing it are already rounded to instrument precision.
package exchange

import (
	"context"
	"errors"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pricing"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntrySide is the order side that opens s.
func EntrySide(s market.Side) OrderSide {
	if s == market.Short {
		return Sell
	}
	return Buy
}

// ExitSide is the order side that reduces s.
func ExitSide(s market.Side) OrderSide {
	if s == market.Short {
		return Buy
	}
	return Sell
}

type OrderType string

const (
	Market           OrderType = "MARKET"
	Limit            OrderType = "LIMIT"
	Stop             OrderType = "STOP"
	StopMarket       OrderType = "STOP_MARKET"
	TakeProfit       OrderType = "TAKE_PROFIT"
	TakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// Order is a resting order as reported by the venue.
type Order struct {
	ID            int64
	ClientID      string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Price         float64
	StopPrice     float64
	Qty           float64
	ReduceOnly    bool
	ClosePosition bool
}

// TakeProfitLike reports whether the order is one of our staged limit exits.
func (o Order) TakeProfitLike() bool { return o.Type == Limit }

// StopLike reports whether the order protects the position.
func (o Order) StopLike() bool { return o.Type == Stop || o.Type == StopMarket }

// Ack is the venue's answer to a submitted order.
type Ack struct {
	OrderID     int64
	ClientID    string
	Status      string
	AvgPrice    float64
	ExecutedQty float64
}

// PositionInfo is the venue's net position. Amount is signed: negative is short.
type PositionInfo struct {
	Symbol     string
	Amount     float64
	EntryPrice float64
}

func (p PositionInfo) Flat() bool { return p.Amount == 0 }

func (p PositionInfo) Side() market.Side {
	switch {
	case p.Amount > 0:
		return market.Long
	case p.Amount < 0:
		return market.Short
	}
	return ""
}

// Transport places and inspects orders.
type Transport interface {
	SubmitMarket(ctx context.Context, symbol string, side OrderSide, qty float64) (Ack, error)
	// SubmitStop places a stop-market order. closeAll ignores qty and closes the
	// whole position when triggered.
	SubmitStop(ctx context.Context, symbol string, side OrderSide, qty float64, closeAll bool, stopPrice float64) (Ack, error)
	SubmitLimitReduceOnly(ctx context.Context, symbol string, side OrderSide, qty, price float64) (Ack, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	ListOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetPosition(ctx context.Context, symbol string) (PositionInfo, error)
}

// MarketData serves candles and last prices.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]pricing.Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

type Account interface {
	AvailableBalance(ctx context.Context, asset string) (float64, error)
	Ping(ctx context.Context) error
}

// Exchange is a complete venue.
type Exchange interface {
	Transport
	MarketData
	Account
}
