package journal

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/engine"
)

// Recorder writes engine outcomes to a Journal. Write failures are logged and
// never stop trading. A nil Recorder or a nil Journal records nothing.
type Recorder struct {
	j     Journal
	runID string
	log   *zap.Logger
}

func NewRecorder(j Journal, runID string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{j: j, runID: runID, log: log}
}

func (r *Recorder) enabled() bool { return r != nil && r.j != nil }

func (r *Recorder) warn(what string, err error) {
	if err != nil {
		r.log.Warn("journal write failed", zap.String("record", what), zap.Error(err))
	}
}

// Outcome records the equity sample, every exit, every closed trade and the entry
// of one step.
func (r *Recorder) Outcome(out engine.Outcome, open int) {
	if !r.enabled() {
		return
	}
	r.Settled(out, open)
	if p := out.Opened; p != nil {
		r.Operation(Operation{
			Time:       p.EntryTime,
			Kind:       OpOpen,
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Side:       p.Side,
			Price:      p.EntryPrice,
			Qty:        p.InitialSize,
			Detail:     fmt.Sprintf("stop=%.2f tp1=%.2f tp2=%.2f", p.Stop, p.Target1, p.Target2),
		})
	}
}

// Settled records everything Outcome does except the entry. The live loop uses it
// and journals the entry itself, once, as a venue fill or a simulated signal.
func (r *Recorder) Settled(out engine.Outcome, open int) {
	if !r.enabled() {
		return
	}
	if !out.Equity.Time.IsZero() {
		r.warn("equity", r.j.RecordEquity(EquityFromPoint(out.Equity, open, r.runID)))
	}
	for _, e := range out.Exits {
		r.Operation(Operation{
			Time:       e.Fill.Time,
			Kind:       OpExit,
			PositionID: e.PositionID,
			Symbol:     e.Symbol,
			Side:       e.Side,
			Price:      e.Fill.Price,
			Qty:        e.Fill.Qty,
			Detail:     fmt.Sprintf("%s net=%.4f", e.Fill.Reason, e.Fill.Net),
		})
	}
	for _, c := range out.Closed {
		r.warn("trade", r.j.RecordTrade(TradeFromClosed(c, r.runID)))
	}
}

func (r *Recorder) Operation(op Operation) {
	if !r.enabled() {
		return
	}
	if op.Time.IsZero() {
		op.Time = time.Now()
	}
	r.warn("operation", r.j.RecordOperation(op))
}

// Error logs a failed step as an ERROR operation.
func (r *Recorder) Error(at time.Time, symbol, stage string, err error) {
	r.Operation(Operation{Time: at, Kind: OpError, Symbol: symbol, Detail: stage + ": " + err.Error()})
}
