package engine

import "math"

// Stats summarises a finished run. Percentages are in percent, not fractions.
type Stats struct {
	InitialCapital float64
	FinalCapital   float64
	NetPnL         float64
	ReturnPct      float64

	Trades  int
	Wins    int
	Losses  int
	WinRate float64

	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
	Commission   float64

	MaxDrawdownPct float64
}

func (c *Controller) Stats() Stats {
	return ComputeStats(c.cfg.InitialCapital, c.capital, c.closed, c.equity)
}

// ComputeStats derives run statistics from the closed ledger and equity curve.
func ComputeStats(initial, final float64, closed []ClosedTrade, equity []EquityPoint) Stats {
	s := Stats{
		InitialCapital: initial,
		FinalCapital:   final,
		NetPnL:         final - initial,
		Trades:         len(closed),
	}
	if initial > 0 {
		s.ReturnPct = (final - initial) / initial * 100
	}

	for _, t := range closed {
		s.Commission += t.Commission
		if t.Win() {
			s.Wins++
			s.GrossProfit += t.NetPnL
		} else {
			s.Losses++
			s.GrossLoss += -t.NetPnL
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	}
	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	}

	s.MaxDrawdownPct = MaxDrawdown(equity) * 100
	return s
}

// MaxDrawdown is the largest peak-to-trough fall of the curve as a fraction of the
// peak.
func MaxDrawdown(equity []EquityPoint) float64 {
	var peak, dd float64
	for _, pt := range equity {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			if d := (peak - pt.Equity) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}
