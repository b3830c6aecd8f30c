// Package paper is an in-memory venue. It keeps one net position per symbol and a
// book of resting orders that trigger when Mark moves the price through them.
package paper

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/pricing"
)

type position struct {
	amount float64
	entry  float64
}

// Paper implements exchange.Exchange.
type Paper struct {
	mu       sync.Mutex
	balance  float64
	prices   map[string]float64
	pos      map[string]*position
	orders   map[int64]*exchange.Order
	nextID   int64
	klines   map[string][]pricing.Candle // symbol/interval
	failures map[string]error
}

var _ exchange.Exchange = (*Paper)(nil)

func New(balance float64) *Paper {
	return &Paper{
		balance:  balance,
		prices:   make(map[string]float64),
		pos:      make(map[string]*position),
		orders:   make(map[int64]*exchange.Order),
		klines:   make(map[string][]pricing.Candle),
		failures: make(map[string]error),
	}
}

// Operation names accepted by FailNext.
const (
	OpMarket = "market"
	OpStop   = "stop"
	OpLimit  = "limit"
	OpCancel = "cancel"
	OpOrders = "orders"
	OpPos    = "position"
	OpKlines = "klines"
)

// FailNext makes the next call of op return err.
func (p *Paper) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = err
}

func (p *Paper) failure(op string) error {
	err, ok := p.failures[op]
	if !ok {
		return nil
	}
	delete(p.failures, op)
	return err
}

// SetKlines sets what Klines returns for symbol and interval.
func (p *Paper) SetKlines(symbol, interval string, candles []pricing.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.klines[symbol+"/"+interval] = slices.Clone(candles)
	if n := len(candles); n > 0 {
		p.prices[symbol] = candles[n-1].Close
	}
}

// SetPosition forces a position, for tests and manual setups.
func (p *Paper) SetPosition(symbol string, amount, entry float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos[symbol] = &position{amount: amount, entry: entry}
}

// Mark moves the price of symbol and fills every resting order it crosses. Stops
// are processed before limits.
func (p *Paper) Mark(symbol string, price float64) []exchange.Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[symbol] = price
	var filled []exchange.Order

	for _, stopsFirst := range []bool{true, false} {
		for _, o := range p.sortedOrders(symbol) {
			if o.StopLike() != stopsFirst {
				continue
			}
			if !triggered(*o, price) {
				continue
			}
			qty := o.Qty
			if o.ClosePosition || o.ReduceOnly {
				qty = p.reducible(symbol, o.Side, qty, o.ClosePosition)
			}
			delete(p.orders, o.ID)
			if qty <= 0 {
				continue
			}
			fillPx := price
			if o.Type == exchange.Limit {
				fillPx = o.Price
			}
			p.fill(symbol, o.Side, qty, fillPx)
			filled = append(filled, *o)
		}
	}
	p.dropOrphans(symbol)
	return filled
}

func triggered(o exchange.Order, price float64) bool {
	switch {
	case o.StopLike() && o.Side == exchange.Sell:
		return price <= o.StopPrice
	case o.StopLike() && o.Side == exchange.Buy:
		return price >= o.StopPrice
	case o.Type == exchange.Limit && o.Side == exchange.Sell:
		return price >= o.Price
	case o.Type == exchange.Limit && o.Side == exchange.Buy:
		return price <= o.Price
	}
	return false
}

func (p *Paper) sortedOrders(symbol string) []*exchange.Order {
	var out []*exchange.Order
	for _, o := range p.orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b *exchange.Order) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// reducible caps qty to what side can actually reduce.
func (p *Paper) reducible(symbol string, side exchange.OrderSide, qty float64, all bool) float64 {
	pos := p.pos[symbol]
	if pos == nil || pos.amount == 0 {
		return 0
	}
	if (side == exchange.Sell) != (pos.amount > 0) {
		return 0
	}
	have := math.Abs(pos.amount)
	if all || qty > have {
		return have
	}
	return qty
}

// dropOrphans removes reduce-only orders once the position is flat.
func (p *Paper) dropOrphans(symbol string) {
	if pos := p.pos[symbol]; pos != nil && pos.amount != 0 {
		return
	}
	for id, o := range p.orders {
		if o.Symbol == symbol && (o.ReduceOnly || o.ClosePosition) {
			delete(p.orders, id)
		}
	}
}

func (p *Paper) fill(symbol string, side exchange.OrderSide, qty, price float64) {
	signed := qty
	if side == exchange.Sell {
		signed = -qty
	}
	pos := p.pos[symbol]
	if pos == nil {
		pos = &position{}
		p.pos[symbol] = pos
	}

	if pos.amount == 0 || (pos.amount > 0) == (signed > 0) {
		total := pos.amount + signed
		pos.entry = (pos.entry*math.Abs(pos.amount) + price*qty) / math.Abs(total)
		pos.amount = total
		return
	}

	closed := math.Min(qty, math.Abs(pos.amount))
	dir := 1.0
	if pos.amount < 0 {
		dir = -1
	}
	p.balance += (price - pos.entry) * closed * dir
	pos.amount += signed
	switch {
	case math.Abs(pos.amount) < 1e-12:
		pos.amount, pos.entry = 0, 0
	case (pos.amount > 0) != (dir > 0):
		pos.entry = price
	}
}

func (p *Paper) add(o exchange.Order) exchange.Ack {
	p.nextID++
	o.ID = p.nextID
	p.orders[o.ID] = &o
	return exchange.Ack{OrderID: o.ID, ClientID: o.ClientID, Status: "NEW"}
}

func (p *Paper) SubmitMarket(ctx context.Context, symbol string, side exchange.OrderSide, qty float64) (exchange.Ack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(OpMarket); err != nil {
		return exchange.Ack{}, err
	}
	if qty <= 0 {
		return exchange.Ack{}, fmt.Errorf("paper: market order qty %v", qty)
	}
	price, ok := p.prices[symbol]
	if !ok {
		return exchange.Ack{}, fmt.Errorf("paper: no price for %s", symbol)
	}
	p.nextID++
	p.fill(symbol, side, qty, price)
	return exchange.Ack{OrderID: p.nextID, Status: "FILLED", AvgPrice: price, ExecutedQty: qty}, nil
}

func (p *Paper) SubmitStop(ctx context.Context, symbol string, side exchange.OrderSide, qty float64, closeAll bool, stopPrice float64) (exchange.Ack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(OpStop); err != nil {
		return exchange.Ack{}, err
	}
	if !closeAll && qty <= 0 {
		return exchange.Ack{}, fmt.Errorf("paper: stop qty %v", qty)
	}
	return p.add(exchange.Order{
		Symbol:        symbol,
		Side:          side,
		Type:          exchange.StopMarket,
		StopPrice:     stopPrice,
		Qty:           qty,
		ReduceOnly:    !closeAll,
		ClosePosition: closeAll,
	}), nil
}

func (p *Paper) SubmitLimitReduceOnly(ctx context.Context, symbol string, side exchange.OrderSide, qty, price float64) (exchange.Ack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(OpLimit); err != nil {
		return exchange.Ack{}, err
	}
	if qty <= 0 || price <= 0 {
		return exchange.Ack{}, fmt.Errorf("paper: limit qty %v price %v", qty, price)
	}
	return p.add(exchange.Order{
		Symbol:     symbol,
		Side:       side,
		Type:       exchange.Limit,
		Price:      price,
		Qty:        qty,
		ReduceOnly: true,
	}), nil
}

func (p *Paper) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(OpCancel); err != nil {
		return err
	}
	o, ok := p.orders[orderID]
	if !ok || o.Symbol != symbol {
		return fmt.Errorf("paper: cancel %d: %w", orderID, exchange.ErrOrderNotFound)
	}
	delete(p.orders, orderID)
	return nil
}

func (p *Paper) ListOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(OpOrders); err != nil {
		return nil, err
	}
	var out []exchange.Order
	for _, o := range p.sortedOrders(symbol) {
		out = append(out, *o)
	}
	return out, nil
}

func (p *Paper) GetPosition(ctx context.Context, symbol string) (exchange.PositionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(OpPos); err != nil {
		return exchange.PositionInfo{}, err
	}
	info := exchange.PositionInfo{Symbol: symbol}
	if pos := p.pos[symbol]; pos != nil {
		info.Amount = pos.amount
		info.EntryPrice = pos.entry
	}
	return info, nil
}

func (p *Paper) Klines(ctx context.Context, symbol, interval string, limit int) ([]pricing.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(OpKlines); err != nil {
		return nil, err
	}
	cs := p.klines[symbol+"/"+interval]
	if limit > 0 && len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	return slices.Clone(cs), nil
}

func (p *Paper) LastPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return price, nil
}

func (p *Paper) AvailableBalance(ctx context.Context, asset string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) Ping(ctx context.Context) error { return nil }
