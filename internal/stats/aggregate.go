package stats

import (
	"math"
	"sort"
)

// Aggregate holds distribution statistics over a Monte Carlo study's
// per-run net P&L values.
type Aggregate struct {
	Runs     int
	Failures int

	Mean   float64
	StdDev float64
	StdErr float64
	Min    float64
	Max    float64

	Median float64
	P5     float64
	P25    float64
	P75    float64
	P95    float64

	// Sharpe is annualized with sqrt(252) from per-run totals over the
	// simulated horizon.
	Sharpe float64

	// VaR is the loss at the configured confidence (positive number).
	VaR           float64
	VaRConfidence float64
}

// AggregateRuns computes distribution statistics over per-run net P&L.
// days is the simulated horizon per run; varConfidence e.g. 0.95.
func AggregateRuns(pnls []float64, failures int, days uint32, varConfidence float64) Aggregate {
	agg := Aggregate{Runs: len(pnls), Failures: failures, VaRConfidence: varConfidence}
	if len(pnls) == 0 {
		return agg
	}

	sorted := make([]float64, len(pnls))
	copy(sorted, pnls)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := float64(len(sorted))
	agg.Mean = sum / n
	agg.Min = sorted[0]
	agg.Max = sorted[len(sorted)-1]

	if len(sorted) > 1 {
		var ss float64
		for _, v := range sorted {
			d := v - agg.Mean
			ss += d * d
		}
		agg.StdDev = math.Sqrt(ss / (n - 1))
		agg.StdErr = agg.StdDev / math.Sqrt(n)
	}

	agg.Median = percentile(sorted, 0.50)
	agg.P5 = percentile(sorted, 0.05)
	agg.P25 = percentile(sorted, 0.25)
	agg.P75 = percentile(sorted, 0.75)
	agg.P95 = percentile(sorted, 0.95)

	if agg.StdDev > 0 && days > 0 {
		agg.Sharpe = agg.Mean / agg.StdDev * math.Sqrt(252.0/float64(days))
	}

	agg.VaR = -percentile(sorted, 1-varConfidence)
	return agg
}

// percentile returns the p-quantile (0..1) of sorted values with linear
// interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
