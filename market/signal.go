package market

import (
	"fmt"
	"math"
	"strings"
)

// Side is the direction of an exposure.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign returns +1 for Long and -1 for Short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

func (s Side) Valid() bool {
	return s == Long || s == Short
}

// ParseSide accepts LONG/SHORT and BUY/SELL in any case.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	}
	return "", fmt.Errorf("unknown side %q", v)
}

// Signal is what a signal source returns for one tick. A zero Side means no trade.
// ATR is the volatility measure used to size the stop; zero or NaN means absent.
type Signal struct {
	Side   Side
	ATR    float64
	Price  float64
	Reason string

	Indicators map[string]float64
}

// None is the empty signal.
var None = Signal{}

// HasSide reports whether the signal asks for an entry.
func (s Signal) HasSide() bool {
	return s.Side.Valid()
}

// HasATR reports whether the volatility measure is usable.
func (s Signal) HasATR() bool {
	return s.ATR > 0 && !math.IsNaN(s.ATR) && !math.IsInf(s.ATR, 0)
}
