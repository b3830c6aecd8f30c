package position

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/perptrader/market"
)

var (
	ErrClosed  = errors.New("position is closed")
	ErrInvalid = errors.New("invalid position")
)

type Status string

const (
	Open            Status = "OPEN"
	PartiallyClosed Status = "PARTIALLY_CLOSED"
	Closed          Status = "CLOSED"
)

// Reason is why a leg of a position was closed.
type Reason string

const (
	ReasonStop         Reason = "STOP"
	ReasonTarget1      Reason = "TARGET1"
	ReasonTarget2      Reason = "TARGET2"
	ReasonEndOfData    Reason = "END_OF_DATA"
	ReasonExchangeFlat Reason = "EXCHANGE_FLAT"
	ReasonManual       Reason = "MANUAL"
)

// Params open a position.
type Params struct {
	ID        string
	Symbol    string
	Side      market.Side
	EntryTime time.Time
	Entry     float64
	Stop      float64
	Size      float64
	R1        float64 // target1 distance in multiples of |entry-stop|
	R2        float64
}

// Position is one directional exposure and its staged-exit progress.
// EntryPrice, Target1 and Target2 never change after New.
type Position struct {
	ID         string
	Symbol     string
	Side       market.Side
	EntryTime  time.Time
	EntryPrice float64

	Stop    float64
	Target1 float64
	Target2 float64

	InitialSize float64
	Remaining   float64

	Target1Filled bool

	RealizedPnL float64 // net of commission, summed over every leg
	GrossPnL    float64
	Commission  float64

	Status     Status
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason Reason
}

// Fill is the result of one close, partial or final.
type Fill struct {
	PositionID string
	Time       time.Time
	Reason     Reason
	Price      float64
	Qty        float64
	Gross      float64
	Commission float64
	Net        float64
	Final      bool
}

func New(p Params) (*Position, error) {
	if !p.Side.Valid() {
		return nil, fmt.Errorf("%w: side %q", ErrInvalid, p.Side)
	}
	if !(p.Size > 0) || math.IsInf(p.Size, 0) {
		return nil, fmt.Errorf("%w: size %v", ErrInvalid, p.Size)
	}
	if !(p.Entry > 0) {
		return nil, fmt.Errorf("%w: entry %v", ErrInvalid, p.Entry)
	}
	dist := (p.Entry - p.Stop) * p.Side.Sign()
	if !(dist > 0) {
		return nil, fmt.Errorf("%w: stop %v on wrong side of %s entry %v", ErrInvalid, p.Stop, p.Side, p.Entry)
	}

	sign := p.Side.Sign()
	return &Position{
		ID:          p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		EntryTime:   p.EntryTime,
		EntryPrice:  p.Entry,
		Stop:        p.Stop,
		Target1:     p.Entry + sign*p.R1*dist,
		Target2:     p.Entry + sign*p.R2*dist,
		InitialSize: p.Size,
		Remaining:   p.Size,
		Status:      Open,
	}, nil
}

func (p *Position) IsClosed() bool { return p.Status == Closed }

// RiskPerUnit is the distance between entry and the current stop.
func (p *Position) RiskPerUnit() float64 {
	return math.Abs(p.EntryPrice - p.Stop)
}

// UnrealizedPnL marks the remaining size at mark, before commission.
func (p *Position) UnrealizedPnL(mark float64) float64 {
	if p.IsClosed() {
		return 0
	}
	return (mark - p.EntryPrice) * p.Side.Sign() * p.Remaining
}

// MarkTarget1Filled latches Target1Filled and optionally moves the stop to entry.
// Calling it again is a no-op.
func (p *Position) MarkTarget1Filled(moveStopToEntry bool) {
	if p.IsClosed() || p.Target1Filled {
		return
	}
	p.Target1Filled = true
	if moveStopToEntry {
		p.Stop = p.EntryPrice
	}
}

// Close books qty at price. qty is clamped to the remaining size. Commission is
// charged on both the entry and exit notional of the closed quantity.
func (p *Position) Close(qty, price float64, at time.Time, reason Reason, commissionRate float64) (Fill, error) {
	if p.IsClosed() {
		return Fill{}, ErrClosed
	}
	if !(qty > 0) {
		return Fill{}, fmt.Errorf("%w: close qty %v", ErrInvalid, qty)
	}
	if qty > p.Remaining {
		qty = p.Remaining
	}

	gross := (price - p.EntryPrice) * p.Side.Sign() * qty
	comm := p.EntryPrice*qty*commissionRate + price*qty*commissionRate
	f := Fill{
		PositionID: p.ID,
		Time:       at,
		Reason:     reason,
		Price:      price,
		Qty:        qty,
		Gross:      gross,
		Commission: comm,
		Net:        gross - comm,
	}

	p.Remaining -= qty
	if p.Remaining < 1e-12 {
		p.Remaining = 0
	}
	p.GrossPnL += f.Gross
	p.Commission += f.Commission
	p.RealizedPnL += f.Net

	if p.Remaining == 0 {
		p.Status = Closed
		p.ExitTime = at
		p.ExitPrice = price
		p.ExitReason = reason
		f.Final = true
	} else {
		p.Status = PartiallyClosed
	}
	return f, nil
}

// CloseAll closes whatever remains.
func (p *Position) CloseAll(price float64, at time.Time, reason Reason, commissionRate float64) (Fill, error) {
	return p.Close(p.Remaining, price, at, reason, commissionRate)
}

func (p *Position) String() string {
	return fmt.Sprintf("%s %s %s entry=%.2f stop=%.2f t1=%.2f t2=%.2f rem=%.6f %s",
		p.ID, p.Symbol, p.Side, p.EntryPrice, p.Stop, p.Target1, p.Target2, p.Remaining, p.Status)
}
