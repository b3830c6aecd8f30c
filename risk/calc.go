package risk

import "math"

// PlannedRisk is the quote-currency loss if qty is stopped out at stop.
func PlannedRisk(qty, entry, stop float64) float64 {
	return math.Abs(entry-stop) * qty
}

// RR is the reward-to-risk multiple of a target.
func RR(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

// RiskPct is planned risk as a fraction of capital.
func RiskPct(plannedRisk, capital float64) float64 {
	if capital <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / capital
}
