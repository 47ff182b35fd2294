// Package prices generates deterministic underlying price paths from a
// seed. The canonical model is Geometric Brownian Motion with exact
// discretization; a mean-reverting log-price model is available as a
// second variant. All models draw from the standard normal distribution
// of a seeded PRNG, never from uniform noise.
package prices

import (
	"math"
	"math/rand"
)

// Generator advances an underlying price process one step at a time.
// Implementations own their PRNG state; the same seed and parameters
// produce identical paths across invocations.
type Generator interface {
	// Current returns the price without advancing the process.
	Current() float64
	// Step advances the process by dt years and returns the new price.
	Step(dtYears float64) float64
}

// GBMParams parameterizes Geometric Brownian Motion.
type GBMParams struct {
	InitialPrice float64
	Drift        float64 // annual mu
	Volatility   float64 // annual sigma, realized
}

// GBM is the canonical price model:
//
//	S_{t+1} = S_t * exp((mu - sigma^2/2) dt + sigma sqrt(dt) Z)
//
// with Z drawn standard-normal from a seeded PRNG.
type GBM struct {
	params  GBMParams
	current float64
	rng     *rand.Rand
}

// NewGBM creates a generator at the initial price with a seeded PRNG.
func NewGBM(params GBMParams, seed uint64) *GBM {
	return &GBM{
		params:  params,
		current: params.InitialPrice,
		rng:     rand.New(rand.NewSource(int64(seed))),
	}
}

// Current returns the current price.
func (g *GBM) Current() float64 {
	return g.current
}

// Step advances by dt years. A zero dt leaves the price unchanged and
// consumes no randomness.
func (g *GBM) Step(dtYears float64) float64 {
	if dtYears <= 0 {
		return g.current
	}
	z := g.rng.NormFloat64()
	drift := (g.params.Drift - 0.5*g.params.Volatility*g.params.Volatility) * dtYears
	diffusion := g.params.Volatility * math.Sqrt(dtYears) * z
	g.current *= math.Exp(drift + diffusion)
	return g.current
}

// DailyPath generates a daily close path of length days+1 starting at
// the initial price, one step of dt = 1/252 per trading day.
func DailyPath(g Generator, days int) []float64 {
	const dt = 1.0 / 252.0
	path := make([]float64, 0, days+1)
	path = append(path, g.Current())
	for i := 0; i < days; i++ {
		path = append(path, g.Step(dt))
	}
	return path
}
