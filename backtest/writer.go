package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/perptrader/pricing"
)

var barHeader = []string{"time", "open", "high", "low", "close", "volume"}

// BarWriter writes candles in the layout CSVBarsFeed reads. Rows with a time
// already written are dropped, so overlapping pages can be written as they come.
type BarWriter struct {
	w    *csv.Writer
	last time.Time
	rows int
}

func NewBarWriter(w io.Writer) (*BarWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(barHeader); err != nil {
		return nil, err
	}
	return &BarWriter{w: cw}, nil
}

// Write appends c unless it is not after the last written bar.
func (b *BarWriter) Write(c pricing.Candle) (bool, error) {
	if b.rows > 0 && !c.Time.After(b.last) {
		return false, nil
	}
	err := b.w.Write([]string{
		c.Time.UTC().Format(time.RFC3339),
		fmtPrice(c.Open),
		fmtPrice(c.High),
		fmtPrice(c.Low),
		fmtPrice(c.Close),
		fmtPrice(c.Volume),
	})
	if err != nil {
		return false, err
	}
	b.last = c.Time
	b.rows++
	return true, nil
}

func (b *BarWriter) Rows() int { return b.rows }

// Last is the time of the last written bar.
func (b *BarWriter) Last() time.Time { return b.last }

func (b *BarWriter) Flush() error {
	b.w.Flush()
	return b.w.Error()
}

func fmtPrice(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
