package risk

import "math"

// SizeInputs are the values needed to size one entry.
type SizeInputs struct {
	Capital       float64
	Entry         float64
	Stop          float64
	RiskPct       float64 // 0.02
	AllocationPct float64 // 0.20 of capital per position, before leverage
	Leverage      float64 // 5
}

// Bound names the constraint that produced the final quantity.
type Bound string

const (
	BoundNone    Bound = ""
	BoundRisk    Bound = "risk"
	BoundCapital Bound = "capital"
)

type SizeResult struct {
	Qty          float64
	QtyByRisk    float64
	QtyByCapital float64
	RiskAmount   float64
	RiskPerUnit  float64
	Bound        Bound
}

// Size returns min(qty_by_risk, qty_by_capital). The risk bound caps the loss at
// the stop; the capital bound caps notional at capital*allocation*leverage.
// A zero quantity means no trade.
func Size(in SizeInputs) SizeResult {
	res := SizeResult{
		RiskAmount:  in.Capital * in.RiskPct,
		RiskPerUnit: math.Abs(in.Entry - in.Stop),
	}
	if res.RiskPerUnit <= 0 || in.Entry <= 0 || in.Capital <= 0 || !finite(res.RiskPerUnit) {
		return res
	}

	res.QtyByRisk = res.RiskAmount / res.RiskPerUnit
	res.QtyByCapital = in.Capital * in.AllocationPct * in.Leverage / in.Entry

	if res.QtyByRisk <= res.QtyByCapital {
		res.Qty, res.Bound = res.QtyByRisk, BoundRisk
	} else {
		res.Qty, res.Bound = res.QtyByCapital, BoundCapital
	}
	if res.Qty < 0 || !finite(res.Qty) {
		res.Qty, res.Bound = 0, BoundNone
	}
	return res
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
