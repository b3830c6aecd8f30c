package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeBothBoundsAgree(t *testing.T) {
	t.Parallel()

	res := Size(SizeInputs{
		Capital:       100,
		Entry:         100,
		Stop:          98,
		RiskPct:       0.02,
		AllocationPct: 0.20,
		Leverage:      5,
	})

	assert.InDelta(t, 2.0, res.RiskAmount, 1e-12)
	assert.InDelta(t, 2.0, res.RiskPerUnit, 1e-12)
	assert.InDelta(t, 1.0, res.QtyByRisk, 1e-12)
	assert.InDelta(t, 1.0, res.QtyByCapital, 1e-12)
	assert.InDelta(t, 1.0, res.Qty, 1e-12)
}

func TestSizeTakesMinimum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    SizeInputs
		want  float64
		bound Bound
	}{
		{
			name:  "wide stop is risk bound",
			in:    SizeInputs{Capital: 100, Entry: 100, Stop: 90, RiskPct: 0.02, AllocationPct: 0.2, Leverage: 5},
			want:  0.2,
			bound: BoundRisk,
		},
		{
			name:  "tight stop is capital bound",
			in:    SizeInputs{Capital: 100, Entry: 100, Stop: 99.9, RiskPct: 0.02, AllocationPct: 0.2, Leverage: 5},
			want:  1.0,
			bound: BoundCapital,
		},
		{
			name:  "short stop above entry",
			in:    SizeInputs{Capital: 50, Entry: 40000, Stop: 41000, RiskPct: 0.02, AllocationPct: 0.2, Leverage: 5},
			want:  0.001,
			bound: BoundRisk,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Size(tt.in)
			assert.InDelta(t, tt.want, res.Qty, 1e-12)
			assert.Equal(t, tt.bound, res.Bound)
			assert.Equal(t, math.Min(res.QtyByRisk, res.QtyByCapital), res.Qty)
		})
	}
}

func TestSizeDegenerate(t *testing.T) {
	t.Parallel()

	base := SizeInputs{Capital: 100, Entry: 100, Stop: 98, RiskPct: 0.02, AllocationPct: 0.2, Leverage: 5}

	tests := []struct {
		name string
		mut  func(*SizeInputs)
	}{
		{"entry equals stop", func(in *SizeInputs) { in.Stop = in.Entry }},
		{"zero entry", func(in *SizeInputs) { in.Entry = 0 }},
		{"no capital", func(in *SizeInputs) { in.Capital = 0 }},
		{"nan stop", func(in *SizeInputs) { in.Stop = math.NaN() }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := base
			tt.mut(&in)
			res := Size(in)
			assert.Equal(t, 0.0, res.Qty)
			assert.Equal(t, BoundNone, res.Bound)
		})
	}
}

func TestCalc(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, PlannedRisk(1, 100, 98), 1e-12)
	assert.InDelta(t, 1.5, RR(100, 98, 103), 1e-12)
	assert.InDelta(t, 3.5, RR(100, 102, 93), 1e-12)
	assert.Equal(t, 0.0, RR(100, 100, 103))
	assert.InDelta(t, 0.02, RiskPct(2, 100), 1e-12)
	assert.True(t, math.IsInf(RiskPct(2, 0), 1))
}
