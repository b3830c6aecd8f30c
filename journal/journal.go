package journal

import (
	"time"

	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/market"
)

// TradeRecord is one fully closed position. RunID is empty for live trades.
type TradeRecord struct {
	TradeID       string
	RunID         string
	Symbol        string
	Side          market.Side
	EntryTime     time.Time
	ExitTime      time.Time
	EntryPrice    float64
	ExitPrice     float64
	InitialStop   float64
	Size          float64
	Target1Filled bool
	GrossPnL      float64
	Commission    float64
	NetPnL        float64
	Reason        string
}

// TradeFromClosed converts a controller ledger entry.
func TradeFromClosed(c engine.ClosedTrade, runID string) TradeRecord {
	return TradeRecord{
		TradeID:       c.ID,
		RunID:         runID,
		Symbol:        c.Symbol,
		Side:          c.Side,
		EntryTime:     c.EntryTime,
		ExitTime:      c.ExitTime,
		EntryPrice:    c.EntryPrice,
		ExitPrice:     c.ExitPrice,
		InitialStop:   c.InitialStop,
		Size:          c.Size,
		Target1Filled: c.Target1Filled,
		GrossPnL:      c.GrossPnL,
		Commission:    c.Commission,
		NetPnL:        c.NetPnL,
		Reason:        string(c.ExitReason),
	}
}

type EquitySnapshot struct {
	Time          time.Time
	RunID         string
	Capital       float64
	Unrealized    float64
	Equity        float64
	OpenPositions int
}

func EquityFromPoint(p engine.EquityPoint, open int, runID string) EquitySnapshot {
	return EquitySnapshot{
		Time:          p.Time,
		RunID:         runID,
		Capital:       p.Capital,
		Unrealized:    p.Unrealized,
		Equity:        p.Equity,
		OpenPositions: open,
	}
}

// OpKind labels a row in the operations log.
type OpKind string

const (
	OpOpen      OpKind = "OPEN"
	OpExit      OpKind = "EXIT"
	OpOrder     OpKind = "ORDER" // protective order resting on the venue
	OpSignal    OpKind = "SIGNAL" // seen while real trading is off
	OpReconcile OpKind = "RECONCILE"
	OpError     OpKind = "ERROR"
)

// Operation is one thing the bot did or tried to do.
type Operation struct {
	ID         int64
	Time       time.Time
	Kind       OpKind
	PositionID string
	Symbol     string
	Side       market.Side
	Price      float64
	Qty        float64
	OrderID    int64
	Detail     string
}

// Journal persists what the engine did.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordOperation(Operation) error
	Close() error
}
