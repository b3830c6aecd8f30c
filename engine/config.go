package engine

import (
	"fmt"
	"time"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/id"
	"github.com/rustyeddy/perptrader/position"
	"github.com/rustyeddy/perptrader/risk"
)

// Config is everything one controller needs. It is copied into the controller so
// two controllers never share mutable settings.
type Config struct {
	Symbol         string
	InitialCapital float64

	RiskPct       float64
	AllocationPct float64
	Leverage      float64

	StopPct       float64 // fallback stop distance as a fraction of entry
	UseATRStop    bool
	ATRMultiplier float64

	R1 float64
	R2 float64

	Ladder position.LadderConfig
	Limits risk.Limits

	// Instrument rounds entry quantities when QtyStep is set. Leave it zero to size
	// with unrounded floats.
	Instrument market.Instrument

	// NewID names new positions. Defaults to a random ULID at the entry time.
	NewID func(at time.Time) string
}

func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("engine: Symbol is required")
	}
	if !(c.InitialCapital > 0) {
		return fmt.Errorf("engine: InitialCapital must be positive")
	}
	if !(c.RiskPct > 0 && c.RiskPct < 1) {
		return fmt.Errorf("engine: RiskPct must be in (0, 1)")
	}
	if !(c.AllocationPct > 0 && c.AllocationPct <= 1) {
		return fmt.Errorf("engine: AllocationPct must be in (0, 1]")
	}
	if !(c.Leverage >= 1) {
		return fmt.Errorf("engine: Leverage must be at least 1")
	}
	if !(c.StopPct > 0 && c.StopPct < 1) {
		return fmt.Errorf("engine: StopPct must be in (0, 1)")
	}
	if c.UseATRStop && !(c.ATRMultiplier > 0) {
		return fmt.Errorf("engine: ATRMultiplier must be positive when UseATRStop is set")
	}
	if !(c.R1 > 0) || !(c.R2 > c.R1) {
		return fmt.Errorf("engine: targets need 0 < R1 < R2, got %v and %v", c.R1, c.R2)
	}
	if err := c.Ladder.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

func (c Config) newID(at time.Time) string {
	if c.NewID != nil {
		return c.NewID(at)
	}
	return id.At(at)
}
