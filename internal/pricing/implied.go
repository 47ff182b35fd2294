package pricing

import (
	"fmt"
	"math"

	"oilsim/internal/errors"
)

const (
	ivMaxIterations = 100
	ivTolerance     = 1e-6
)

// ImpliedVolatility solves for the Black-76 volatility matching a market
// price via Newton-Raphson on vega. The Volatility field of in is used
// as the initial guess when positive, 30% otherwise.
func ImpliedVolatility(marketPrice float64, in Inputs) (float64, error) {
	vol := in.Volatility
	if vol <= 0 {
		vol = 0.3
	}

	for i := 0; i < ivMaxIterations; i++ {
		in.Volatility = vol
		price, err := Price(in)
		if err != nil {
			return 0, err
		}
		diff := price - marketPrice
		if math.Abs(diff) < ivTolerance {
			return vol, nil
		}

		g, err := ComputeGreeks(in)
		if err != nil {
			return 0, err
		}
		vega := g.Vega * 100.0 // per unit vol
		if math.Abs(vega) < 1e-10 {
			return 0, errors.NewNumericalError("black76.implied_vol", in.asMap(), fmt.Errorf("vega too small to converge"))
		}

		vol -= diff / vega
		if vol <= 0 {
			vol = 0.001
		}
	}
	return 0, errors.NewNumericalError("black76.implied_vol", in.asMap(), fmt.Errorf("no convergence after %d iterations", ivMaxIterations))
}
