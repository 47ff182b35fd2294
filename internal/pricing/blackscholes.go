package pricing

import (
	"fmt"
	"math"

	"oilsim/internal/errors"
	"oilsim/internal/models"
)

// SpotInputs bundles Black-Scholes pricing inputs for spot underlyings
// (equity indices and stocks), including a continuous dividend yield.
type SpotInputs struct {
	Spot       float64
	Strike     float64
	TimeToExp  float64
	RiskFree   float64
	Dividend   float64
	Volatility float64
	Type       models.OptionType
}

func (in SpotInputs) asMap() map[string]float64 {
	return map[string]float64{
		"S":     in.Spot,
		"K":     in.Strike,
		"T":     in.TimeToExp,
		"r":     in.RiskFree,
		"q":     in.Dividend,
		"sigma": in.Volatility,
	}
}

// PriceSpot returns the Black-Scholes value of a European spot option.
func PriceSpot(in SpotInputs) (float64, error) {
	if in.TimeToExp < 0 {
		return 0, errors.NewNumericalError("blackscholes.price", in.asMap(), fmt.Errorf("negative time to expiry"))
	}
	if in.Spot <= 0 || in.Strike <= 0 {
		return 0, errors.NewNumericalError("blackscholes.price", in.asMap(), fmt.Errorf("non-positive spot or strike"))
	}
	if in.TimeToExp == 0 || in.Volatility == 0 {
		return intrinsic(in.Spot, in.Strike, in.Type), nil
	}

	sqrtT := math.Sqrt(in.TimeToExp)
	d1 := (math.Log(in.Spot/in.Strike) + (in.RiskFree-in.Dividend+0.5*in.Volatility*in.Volatility)*in.TimeToExp) / (in.Volatility * sqrtT)
	d2 := d1 - in.Volatility*sqrtT

	divDiscount := math.Exp(-in.Dividend * in.TimeToExp)
	rateDiscount := math.Exp(-in.RiskFree * in.TimeToExp)

	var price float64
	if in.Type == models.Call {
		price = in.Spot*divDiscount*normCDF(d1) - in.Strike*rateDiscount*normCDF(d2)
	} else {
		price = in.Strike*rateDiscount*normCDF(-d2) - in.Spot*divDiscount*normCDF(-d1)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, errors.NewNumericalError("blackscholes.price", in.asMap(), nil)
	}
	return price, nil
}
