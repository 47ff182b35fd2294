package strike

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oilsim/internal/models"
)

var pctx = PricingContext{TimeToExp: 30.0 / 252, RiskFree: 0.05, Volatility: 0.30}

func sel(t *testing.T, rule models.StrikeRule, typ models.OptionType, f, tick float64) float64 {
	t.Helper()
	k, err := Select(rule, typ, f, tick, pctx)
	require.NoError(t, err)
	return k
}

func TestATMRoundsToNearestTick(t *testing.T) {
	rule := models.StrikeRule{Kind: models.StrikeATM}
	assert.Equal(t, 75.0, sel(t, rule, models.Put, 75.10, 0.25))
	assert.Equal(t, 75.25, sel(t, rule, models.Call, 75.20, 0.25))
	assert.Equal(t, 75.0, sel(t, rule, models.Call, 75.0, 0.25))
}

func TestOTMRoundsOutward(t *testing.T) {
	rule := models.StrikeRule{Kind: models.StrikeOTMPoints, Value: 3.0}

	// Put: 75.10 - 3 = 72.10 floors to 72.00 (further OTM).
	assert.Equal(t, 72.0, sel(t, rule, models.Put, 75.10, 0.25))
	// Call: 75.10 + 3 = 78.10 ceils to 78.25.
	assert.Equal(t, 78.25, sel(t, rule, models.Call, 75.10, 0.25))

	// An exact midpoint still lands further out.
	mid := models.StrikeRule{Kind: models.StrikeOTMPoints, Value: 3.125}
	assert.Equal(t, 71.75, sel(t, mid, models.Put, 75.0, 0.25))
	assert.Equal(t, 78.25, sel(t, mid, models.Call, 75.0, 0.25))
}

func TestITMRoundsAwayFromUnderlying(t *testing.T) {
	rule := models.StrikeRule{Kind: models.StrikeITMPoints, Value: 2.0}

	// Put ITM sits above the underlying.
	assert.Equal(t, 77.25, sel(t, rule, models.Put, 75.10, 0.25))
	// Call ITM sits below.
	assert.Equal(t, 73.0, sel(t, rule, models.Call, 75.10, 0.25))
}

func TestPercentAndFixed(t *testing.T) {
	pct := models.StrikeRule{Kind: models.StrikePercent, Value: 0.95}
	assert.Equal(t, 71.25, sel(t, pct, models.Put, 75.0, 0.25))

	fixed := models.StrikeRule{Kind: models.StrikeFixed, Value: 80.10}
	assert.Equal(t, 80.0, sel(t, fixed, models.Call, 75.0, 0.25))
}

func TestDeltaTargetNearATMForHalfDelta(t *testing.T) {
	// An ATM option has |delta| near 0.5, so a 0.5 target stays close
	// to the money.
	rule := models.StrikeRule{Kind: models.StrikeDeltaTarget, Value: 0.5}
	put := sel(t, rule, models.Put, 75.0, 0.25)
	call := sel(t, rule, models.Call, 75.0, 0.25)
	assert.InDelta(t, 75.0, put, 1.0)
	assert.InDelta(t, 75.0, call, 1.0)
}

func TestDeltaTargetLowerDeltaIsFurtherOTM(t *testing.T) {
	near := models.StrikeRule{Kind: models.StrikeDeltaTarget, Value: 0.45}
	far := models.StrikeRule{Kind: models.StrikeDeltaTarget, Value: 0.20}

	putNear := sel(t, near, models.Put, 75.0, 0.25)
	putFar := sel(t, far, models.Put, 75.0, 0.25)
	assert.Less(t, putFar, putNear, "lower-delta put sits below")

	callNear := sel(t, near, models.Call, 75.0, 0.25)
	callFar := sel(t, far, models.Call, 75.0, 0.25)
	assert.Greater(t, callFar, callNear, "lower-delta call sits above")
}

func TestSelectRejectsBadInputs(t *testing.T) {
	rule := models.StrikeRule{Kind: models.StrikeATM}
	_, err := Select(rule, models.Put, 75.0, 0, pctx)
	assert.Error(t, err)
	_, err = Select(rule, models.Put, -1.0, 0.25, pctx)
	assert.Error(t, err)
}
