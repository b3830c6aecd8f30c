package risk

import "strings"

const (
	CodeHalted           = "HALTED"
	CodeMaxTradesPerDay  = "MAX_TRADES_PER_DAY"
	CodeMaxOpenPositions = "MAX_OPEN_POSITIONS"

	HaltDailyLoss         = "DAILY_LOSS_LIMIT"
	HaltConsecutiveLosses = "CONSECUTIVE_LOSS_LIMIT"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the governor's answer to "may a new position open now".
type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Has reports whether a violation with code is present.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	codes := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		codes = append(codes, v.Code)
	}
	return strings.Join(codes, ",")
}
