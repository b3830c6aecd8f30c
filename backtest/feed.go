package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/perptrader/pricing"
)

// BarFeed yields closed bars oldest first. Implementations return
// (ok=false, err=nil) at EOF.
type BarFeed interface {
	Next() (c pricing.Candle, ok bool, err error)
	Close() error
}

// CSVBarsFeed reads OHLC rows:
//
//	time,open,high,low,close[,volume]
//
// where time is RFC3339, RFC3339Nano or unix milliseconds.
//
// It optionally filters bars to [From, To) if provided.
// Header row ("time,..." or "timestamp,...") is allowed.
// Empty/short rows are skipped.
type CSVBarsFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
}

func NewCSVBarsFeed(path string, from, to time.Time) (*CSVBarsFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	return &CSVBarsFeed{f: f, r: r, from: from, to: to}, nil
}

func (f *CSVBarsFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVBarsFeed) Next() (pricing.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return pricing.Candle{}, false, nil
		}
		if err != nil {
			return pricing.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			h := strings.ToLower(strings.TrimSpace(row[0]))
			if h == "time" || h == "timestamp" || h == "open_time" {
				continue
			}
		}

		c, ok, err := parseBarRow(row)
		if err != nil {
			return pricing.Candle{}, false, err
		}
		if !ok {
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		return c, true, nil
	}
}

func parseBarRow(row []string) (pricing.Candle, bool, error) {
	// Need at least: time,open,high,low,close
	if len(row) < 5 {
		return pricing.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return pricing.Candle{}, false, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return pricing.Candle{}, false, err
	}

	var px [4]float64
	names := [4]string{"open", "high", "low", "close"}
	for i := range px {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return pricing.Candle{}, false, fmt.Errorf("bad %s %q: %w", names[i], row[i+1], err)
		}
		px[i] = v
	}

	c := pricing.Candle{Time: t, Open: px[0], High: px[1], Low: px[2], Close: px[3]}
	if len(row) > 5 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64); err == nil {
			c.Volume = v
		}
	}
	return c, true, nil
}

func parseTime(ts string) (time.Time, error) {
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("bad time %q: %w", ts, err)
		}
		t = t2
	}
	return t.UTC(), nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays candles already in memory, such as klines fetched from a venue.
type SliceFeed struct {
	bars []pricing.Candle
	i    int
}

func NewSliceFeed(bars []pricing.Candle) *SliceFeed {
	return &SliceFeed{bars: bars}
}

func (s *SliceFeed) Next() (pricing.Candle, bool, error) {
	if s.i >= len(s.bars) {
		return pricing.Candle{}, false, nil
	}
	c := s.bars[s.i]
	s.i++
	return c, true, nil
}

func (s *SliceFeed) Close() error { return nil }
