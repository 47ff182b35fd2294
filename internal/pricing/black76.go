// Package pricing implements closed-form option pricing models:
// Black-76 for options on futures and Black-Scholes for spot underlyings.
// All functions are pure and hold no state.
package pricing

import (
	"fmt"
	"math"

	"oilsim/internal/errors"
	"oilsim/internal/models"
)

// TradingDaysPerYear converts trading-day DTE to year fractions.
const TradingDaysPerYear = 252.0

// Greeks holds the analytic sensitivities of an option price.
// Theta is per calendar day, Vega per volatility point.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// Inputs bundles the Black-76 pricing inputs.
type Inputs struct {
	Futures    float64 // F
	Strike     float64 // K
	TimeToExp  float64 // T in years
	RiskFree   float64 // r
	Volatility float64 // sigma, implied
	Type       models.OptionType
}

func (in Inputs) asMap() map[string]float64 {
	return map[string]float64{
		"F":     in.Futures,
		"K":     in.Strike,
		"T":     in.TimeToExp,
		"r":     in.RiskFree,
		"sigma": in.Volatility,
	}
}

// intrinsic returns the undiscounted exercise value.
func intrinsic(f, k float64, typ models.OptionType) float64 {
	if typ == models.Call {
		return math.Max(f-k, 0)
	}
	return math.Max(k-f, 0)
}

// Price returns the Black-76 value of a European futures option.
// T = 0 and sigma = 0 both price at intrinsic. T < 0, non-positive
// F or K, and non-finite output are numerical errors.
func Price(in Inputs) (float64, error) {
	if in.TimeToExp < 0 {
		return 0, errors.NewNumericalError("black76.price", in.asMap(), fmt.Errorf("negative time to expiry"))
	}
	if in.Futures <= 0 || in.Strike <= 0 {
		return 0, errors.NewNumericalError("black76.price", in.asMap(), fmt.Errorf("non-positive forward or strike"))
	}
	if in.TimeToExp == 0 || in.Volatility == 0 {
		return intrinsic(in.Futures, in.Strike, in.Type), nil
	}

	d1, d2 := d1d2(in.Futures, in.Strike, in.TimeToExp, in.Volatility)
	discount := math.Exp(-in.RiskFree * in.TimeToExp)

	var price float64
	if in.Type == models.Call {
		price = discount * (in.Futures*normCDF(d1) - in.Strike*normCDF(d2))
	} else {
		price = discount * (in.Strike*normCDF(-d2) - in.Futures*normCDF(-d1))
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, errors.NewNumericalError("black76.price", in.asMap(), nil)
	}
	return price, nil
}

// ComputeGreeks returns the analytic Greeks for a futures option.
// At expiry delta collapses to the exercise indicator and the rest to 0.
func ComputeGreeks(in Inputs) (Greeks, error) {
	if in.TimeToExp < 0 {
		return Greeks{}, errors.NewNumericalError("black76.greeks", in.asMap(), fmt.Errorf("negative time to expiry"))
	}
	if in.TimeToExp == 0 || in.Volatility == 0 {
		var delta float64
		if in.Type == models.Call {
			if in.Futures > in.Strike {
				delta = 1
			}
		} else {
			if in.Futures < in.Strike {
				delta = -1
			}
		}
		return Greeks{Delta: delta}, nil
	}

	d1, d2 := d1d2(in.Futures, in.Strike, in.TimeToExp, in.Volatility)
	discount := math.Exp(-in.RiskFree * in.TimeToExp)
	sqrtT := math.Sqrt(in.TimeToExp)

	g := Greeks{}
	if in.Type == models.Call {
		g.Delta = discount * normCDF(d1)
	} else {
		g.Delta = discount * (normCDF(d1) - 1)
	}
	g.Gamma = discount * normPDF(d1) / (in.Futures * in.Volatility * sqrtT)

	// Theta per year, reported per calendar day.
	theta := -in.Futures * discount * normPDF(d1) * in.Volatility / (2 * sqrtT)
	if in.Type == models.Call {
		theta += in.RiskFree * discount * (in.Futures*normCDF(d1) - in.Strike*normCDF(d2))
	} else {
		theta += in.RiskFree * discount * (in.Strike*normCDF(-d2) - in.Futures*normCDF(-d1))
	}
	g.Theta = theta / 365.0

	// Vega per 1 volatility point.
	g.Vega = in.Futures * discount * normPDF(d1) * sqrtT / 100.0

	if in.Type == models.Call {
		g.Rho = -in.TimeToExp * discount * (in.Futures*normCDF(d1) - in.Strike*normCDF(d2))
	} else {
		g.Rho = -in.TimeToExp * discount * (in.Strike*normCDF(-d2) - in.Futures*normCDF(-d1))
	}

	if math.IsNaN(g.Delta) || math.IsNaN(g.Gamma) || math.IsNaN(g.Vega) {
		return Greeks{}, errors.NewNumericalError("black76.greeks", in.asMap(), nil)
	}
	return g, nil
}

func d1d2(f, k, t, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(f/k) + 0.5*sigma*sigma*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// YearsFromDTE converts a trading-day DTE to a year fraction.
func YearsFromDTE(dte float64) float64 {
	return dte / TradingDaysPerYear
}
