package prices

import (
	"math"
	"math/rand"
)

// MeanRevParams parameterizes the one-factor mean-reverting log-price
// model: ln S reverts to ln MeanLevel at rate Reversion.
type MeanRevParams struct {
	InitialPrice float64
	MeanLevel    float64
	Reversion    float64 // kappa, annual
	Volatility   float64 // annual sigma, realized
}

// MeanReverting implements an Ornstein-Uhlenbeck process on log price
// with exact discretization, so large dt steps stay unbiased.
type MeanReverting struct {
	params MeanRevParams
	logP   float64
	rng    *rand.Rand
}

// NewMeanReverting creates a generator at the initial price with a
// seeded PRNG.
func NewMeanReverting(params MeanRevParams, seed uint64) *MeanReverting {
	return &MeanReverting{
		params: params,
		logP:   math.Log(params.InitialPrice),
		rng:    rand.New(rand.NewSource(int64(seed))),
	}
}

// Current returns the current price.
func (m *MeanReverting) Current() float64 {
	return math.Exp(m.logP)
}

// Step advances by dt years using the exact OU transition.
func (m *MeanReverting) Step(dtYears float64) float64 {
	if dtYears <= 0 {
		return m.Current()
	}
	z := m.rng.NormFloat64()
	mean := math.Log(m.params.MeanLevel)
	decay := math.Exp(-m.params.Reversion * dtYears)
	variance := m.params.Volatility * m.params.Volatility * (1 - decay*decay) / (2 * m.params.Reversion)
	m.logP = mean + (m.logP-mean)*decay + math.Sqrt(variance)*z
	return m.Current()
}
