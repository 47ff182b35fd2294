// Package strike resolves strike selection rules against the current
// underlying, rounding to the product's strike tick. ATM and literal
// rules round to the nearest tick; OTM and ITM offsets round outward
// (away from the underlying), so an exact midpoint lands further out.
package strike

import (
	"fmt"
	"math"

	"oilsim/internal/errors"
	"oilsim/internal/models"
	"oilsim/internal/pricing"
)

// deltaSearchWindow bounds the delta-target search to this many ticks
// on each side of ATM.
const deltaSearchWindow = 40

// PricingContext carries the market inputs a delta-target search needs.
type PricingContext struct {
	TimeToExp  float64
	RiskFree   float64
	Volatility float64
}

// RoundToTick rounds to the nearest strike tick.
func RoundToTick(price, tick float64) float64 {
	return math.Round(price/tick) * tick
}

// floorToTick rounds down to a strike tick.
func floorToTick(price, tick float64) float64 {
	return math.Floor(price/tick) * tick
}

// ceilToTick rounds up to a strike tick.
func ceilToTick(price, tick float64) float64 {
	return math.Ceil(price/tick) * tick
}

// Select resolves a strike rule for one option type at underlying f.
func Select(rule models.StrikeRule, typ models.OptionType, f, tick float64, pctx PricingContext) (float64, error) {
	if tick <= 0 {
		return 0, errors.NewValidationError("tick_size", tick, "must be positive")
	}
	if f <= 0 {
		return 0, errors.NewNumericalError("strike.select", map[string]float64{"F": f}, fmt.Errorf("non-positive underlying"))
	}

	switch rule.Kind {
	case models.StrikeATM:
		return RoundToTick(f, tick), nil

	case models.StrikeOTMPoints:
		if typ == models.Put {
			return floorToTick(f-rule.Value, tick), nil
		}
		return ceilToTick(f+rule.Value, tick), nil

	case models.StrikeITMPoints:
		if typ == models.Put {
			return ceilToTick(f+rule.Value, tick), nil
		}
		return floorToTick(f-rule.Value, tick), nil

	case models.StrikePercent:
		return RoundToTick(f*rule.Value, tick), nil

	case models.StrikeFixed:
		return RoundToTick(rule.Value, tick), nil

	case models.StrikeDeltaTarget:
		return selectByDelta(rule.Value, typ, f, tick, pctx)

	default:
		return 0, errors.NewValidationError("strike_selection", rule.Kind, "unknown strike rule")
	}
}

// selectByDelta searches integer tick multiples around ATM for the
// strike whose model delta is closest to the target. The search walks
// outward from ATM so exact ties resolve to the closer-to-ATM strike.
// Put targets are interpreted as negative deltas.
func selectByDelta(target float64, typ models.OptionType, f, tick float64, pctx PricingContext) (float64, error) {
	if typ == models.Put {
		target = -math.Abs(target)
	} else {
		target = math.Abs(target)
	}

	atm := RoundToTick(f, tick)
	best := atm
	bestDiff := math.Inf(1)

	for dist := 0; dist <= deltaSearchWindow; dist++ {
		for _, sign := range []int{1, -1} {
			if dist == 0 && sign == -1 {
				continue
			}
			k := atm + float64(sign*dist)*tick
			if k <= 0 {
				continue
			}
			g, err := pricing.ComputeGreeks(pricing.Inputs{
				Futures:    f,
				Strike:     k,
				TimeToExp:  pctx.TimeToExp,
				RiskFree:   pctx.RiskFree,
				Volatility: pctx.Volatility,
				Type:       typ,
			})
			if err != nil {
				return 0, err
			}
			if diff := math.Abs(g.Delta - target); diff < bestDiff {
				bestDiff = diff
				best = k
			}
		}
	}
	return best, nil
}
