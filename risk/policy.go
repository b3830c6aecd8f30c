package risk

import (
	"fmt"
	"time"
)

// Limits are the daily governor thresholds.
type Limits struct {
	MaxTradesPerDay      int     // 5
	MaxOpenPositions     int     // 4
	MaxDailyLoss         float64 // -2.0, realized quote currency, must be negative
	MaxConsecutiveLosses int     // 4

	// Location decides where a calendar day starts. Nil means UTC.
	Location *time.Location
}

func (l Limits) Validate() error {
	if l.MaxTradesPerDay <= 0 {
		return fmt.Errorf("risk.max_trades_per_day must be positive")
	}
	if l.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive")
	}
	if l.MaxDailyLoss >= 0 {
		return fmt.Errorf("risk.max_daily_loss must be negative")
	}
	if l.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("risk.max_consecutive_losses must be positive")
	}
	return nil
}

func (l Limits) location() *time.Location {
	if l.Location == nil {
		return time.UTC
	}
	return l.Location
}
