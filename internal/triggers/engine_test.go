package triggers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oilsim/internal/calendar"
	"oilsim/internal/events"
	"oilsim/internal/models"
	"oilsim/internal/position"
)

func openShortPut(t *testing.T, premium float64, exp calendar.Day) *position.State {
	t.Helper()
	st := position.New("put")
	require.NoError(t, st.Apply(events.Event{
		ID: 1, Timestamp: calendar.NewTimestamp(0, 900), LegID: "put",
		Kind:     events.KindPositionOpened,
		Contract: models.Contract{Type: models.Put, Strike: 75, Expiration: exp, Side: models.Short},
		Premium:  premium,
	}))
	return st
}

func openLongCall(t *testing.T, premium float64, exp calendar.Day) *position.State {
	t.Helper()
	st := position.New("call")
	require.NoError(t, st.Apply(events.Event{
		ID: 1, Timestamp: calendar.NewTimestamp(0, 900), LegID: "call",
		Kind:     events.KindPositionOpened,
		Contract: models.Contract{Type: models.Call, Strike: 75, Expiration: exp, Side: models.Long},
		Premium:  premium,
	}))
	return st
}

func legCfg(id string, triggers ...models.Trigger) models.LegConfig {
	return models.LegConfig{
		ID: id, Type: models.Put, Side: models.Short,
		EntryDTE: 1, RollTriggers: triggers, RollDTE: 1,
	}
}

func baseEvent(day calendar.Day, minute calendar.TimeOfDay) MarketEvent {
	return MarketEvent{
		Timestamp:     calendar.NewTimestamp(day, minute),
		Price:         75.0,
		DailyOpen:     75.0,
		EntryPrice:    75.0,
		LastRollPrice: 75.0,
		DTE:           1,
		Mark:          0.50,
		ExpiryTime:    14*60 + 30,
	}
}

func TestDteThresholdFires(t *testing.T) {
	st := openShortPut(t, 0.50, 40)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerDteThreshold, DTE: 28})

	ev := baseEvent(1, 840)
	ev.DTE = 29
	assert.Empty(t, Decide(st, cfg, ev))

	ev.DTE = 28
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionRoll, actions[0].Type)
	assert.Equal(t, []models.Reason{models.ReasonDteThreshold}, actions[0].Reasons)
}

func TestTimeOfDayOncePerDayGuard(t *testing.T) {
	st := openShortPut(t, 0.50, 1)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerTimeOfDay, Time: 14 * 60})

	before := baseEvent(1, 13*60)
	assert.Empty(t, Decide(st, cfg, before))

	at := baseEvent(1, 14*60)
	actions := Decide(st, cfg, at)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionRoll, actions[0].Type)

	// Once the leg rolled today, the trigger holds for the rest of the day.
	require.NoError(t, st.Apply(events.Event{
		ID: 2, Timestamp: calendar.NewTimestamp(1, 14*60), LegID: "put",
		Kind:        events.KindLegRolled,
		OldContract: st.Contract,
		NewContract: models.Contract{Type: models.Put, Strike: 75, Expiration: 2, Side: models.Short},
		ExitPremium: 0.10, EntryPremium: 0.55,
	}))
	later := baseEvent(1, 15*60)
	assert.Empty(t, Decide(st, cfg, later))

	st.ResetDailyFlags()
	nextDay := baseEvent(2, 14*60)
	assert.Len(t, Decide(st, cfg, nextDay), 1)
}

func TestProfitTargetShort(t *testing.T) {
	st := openShortPut(t, 1.00, 5)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerProfitTarget, Fraction: 0.5})

	ev := baseEvent(1, 840)
	ev.Mark = 0.51 // 49% of credit captured
	assert.Empty(t, Decide(st, cfg, ev))

	ev.Mark = 0.49 // 51% captured
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Reasons, models.ReasonProfitTarget)
}

func TestProfitTargetLongSignDiscipline(t *testing.T) {
	st := openLongCall(t, 1.00, 5)
	cfg := models.LegConfig{
		ID: "call", Type: models.Call, Side: models.Long, EntryDTE: 5, RollDTE: 5,
		RollTriggers: []models.Trigger{{Kind: models.TriggerProfitTarget, Fraction: 0.5}},
	}

	// A long leg under water must never fire the profit target.
	ev := baseEvent(1, 840)
	ev.Mark = 0.40
	assert.Empty(t, Decide(st, cfg, ev))

	// It fires on gains only.
	ev.Mark = 1.60
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Reasons, models.ReasonProfitTarget)
}

func TestStopLossShort(t *testing.T) {
	st := openShortPut(t, 1.00, 5)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerStopLoss, Fraction: 1.0})

	ev := baseEvent(1, 840)
	ev.Mark = 1.90 // down 0.90, inside the 1.00 stop
	assert.Empty(t, Decide(st, cfg, ev))

	ev.Mark = 2.10 // down 1.10
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Reasons, models.ReasonStopLoss)
}

func TestPriceMoveReferences(t *testing.T) {
	st := openShortPut(t, 0.50, 5)

	for _, tc := range []struct {
		ref   models.PriceReference
		setup func(ev *MarketEvent)
	}{
		{models.RefEntry, func(ev *MarketEvent) { ev.EntryPrice = 72.0 }},
		{models.RefLastRoll, func(ev *MarketEvent) { ev.LastRollPrice = 78.5 }},
		{models.RefDailyOpen, func(ev *MarketEvent) { ev.DailyOpen = 71.9 }},
	} {
		cfg := legCfg("put", models.Trigger{Kind: models.TriggerPriceMove, Points: 3.0, Reference: tc.ref})

		quiet := baseEvent(1, 840)
		assert.Empty(t, Decide(st, cfg, quiet), "ref %s quiet", tc.ref)

		moved := baseEvent(1, 840)
		tc.setup(&moved)
		actions := Decide(st, cfg, moved)
		require.Len(t, actions, 1, "ref %s", tc.ref)
		assert.Contains(t, actions[0].Reasons, models.ReasonPriceMove)
	}
}

func TestDeltaThreshold(t *testing.T) {
	st := openShortPut(t, 0.50, 5)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerDeltaThreshold, Delta: 0.40})

	ev := baseEvent(1, 840)
	ev.Delta = -0.35
	assert.Empty(t, Decide(st, cfg, ev))

	ev.Delta = -0.45
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Reasons, models.ReasonDeltaThreshold)
}

func TestExpirationTrigger(t *testing.T) {
	st := openShortPut(t, 0.50, 1)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerExpiration})

	early := baseEvent(1, 14*60)
	early.DTE = 0
	assert.Empty(t, Decide(st, cfg, early), "before expiry wall clock")

	at := baseEvent(1, 14*60+30)
	at.DTE = 0
	actions := Decide(st, cfg, at)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Reasons, models.ReasonExpiration)
}

func TestManualNeverFires(t *testing.T) {
	st := openShortPut(t, 0.50, 1)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerManual})
	ev := baseEvent(1, 14*60+30)
	ev.DTE = 0
	assert.Empty(t, Decide(st, cfg, ev))
}

func TestClosedLegNeverActs(t *testing.T) {
	st := openShortPut(t, 0.50, 1)
	require.NoError(t, st.Apply(events.Event{
		ID: 2, Timestamp: calendar.NewTimestamp(1, 870), LegID: "put",
		Kind: events.KindPositionClosed, Contract: st.Contract, Premium: 0.10,
	}))
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerTimeOfDay, Time: 0})
	assert.Empty(t, Decide(st, cfg, baseEvent(2, 900)))
	assert.Empty(t, Decide(nil, cfg, baseEvent(2, 900)))
}

// Declaration order decides: with the profit target declared first and
// both conditions true, the action fires for the profit target and the
// reason set carries every match.
func TestDeclarationOrderAndReasonSet(t *testing.T) {
	st := openShortPut(t, 1.00, 5)
	cfg := legCfg("put",
		models.Trigger{Kind: models.TriggerProfitTarget, Fraction: 0.5},
		models.Trigger{Kind: models.TriggerTimeOfDay, Time: 14 * 60},
	)

	ev := baseEvent(1, 14*60)
	ev.Mark = 0.45 // 55% of credit captured
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionRoll, actions[0].Type)
	assert.Equal(t, models.ReasonProfitTarget, actions[0].Reasons[0])
	assert.Contains(t, actions[0].Reasons, models.ReasonTimeOfDay)
}

func TestCooldownMinInterval(t *testing.T) {
	st := openShortPut(t, 0.50, 5)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerPriceMove, Points: 0.5})
	cfg.MinRollInterval = time.Hour

	// First roll at 14:00.
	require.NoError(t, st.Apply(events.Event{
		ID: 2, Timestamp: calendar.NewTimestamp(1, 14*60), LegID: "put",
		Kind:        events.KindLegRolled,
		OldContract: st.Contract,
		NewContract: models.Contract{Type: models.Put, Strike: 75, Expiration: 6, Side: models.Short},
		ExitPremium: 0.10, EntryPremium: 0.55,
	}))

	// 30 minutes later the trigger matches again but the cooldown blocks.
	ev := baseEvent(1, 14*60+30)
	ev.Price = 76.0
	ev.LastRollPrice = 75.0
	ev.EntryPrice = 75.0
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionReject, actions[0].Type)
	assert.Contains(t, actions[0].Reasons, models.ReasonCooldown)

	// Past the interval the roll goes through.
	late := baseEvent(1, 15*60+30)
	late.Price = 76.0
	actions = Decide(st, cfg, late)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionRoll, actions[0].Type)
}

func TestCooldownMaxRollsPerDay(t *testing.T) {
	st := openShortPut(t, 0.50, 5)
	cfg := legCfg("put", models.Trigger{Kind: models.TriggerPriceMove, Points: 0.5})
	cfg.MaxRollsPerDay = 1

	require.NoError(t, st.Apply(events.Event{
		ID: 2, Timestamp: calendar.NewTimestamp(1, 14*60), LegID: "put",
		Kind:        events.KindLegRolled,
		OldContract: st.Contract,
		NewContract: models.Contract{Type: models.Put, Strike: 75, Expiration: 6, Side: models.Short},
		ExitPremium: 0.10, EntryPremium: 0.55,
	}))

	ev := baseEvent(1, 16*60)
	ev.Price = 77.0
	actions := Decide(st, cfg, ev)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionReject, actions[0].Type)
	assert.Contains(t, actions[0].Reasons, models.ReasonMaxRollsPerDay)

	// A fresh day restores the budget.
	st.ResetDailyFlags()
	nextDay := baseEvent(2, 10*60)
	nextDay.Price = 77.0
	actions = Decide(st, cfg, nextDay)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionRoll, actions[0].Type)
}

func twoLegStrategy(mode models.GroupMode, leader string, triggers ...models.Trigger) *models.Strategy {
	return &models.Strategy{
		Name:      "strangle",
		GroupMode: mode,
		Leader:    leader,
		Legs: []models.LegConfig{
			{ID: "put", Type: models.Put, Side: models.Short, EntryDTE: 5, RollDTE: 5, RollTriggers: triggers},
			{ID: "call", Type: models.Call, Side: models.Short, EntryDTE: 5, RollDTE: 5},
		},
	}
}

func openTwoLegs(t *testing.T) map[string]*position.State {
	t.Helper()
	put := openShortPut(t, 0.50, 5)
	call := position.New("call")
	require.NoError(t, call.Apply(events.Event{
		ID: 2, Timestamp: calendar.NewTimestamp(0, 900), LegID: "call",
		Kind:     events.KindPositionOpened,
		Contract: models.Contract{Type: models.Call, Strike: 78, Expiration: 5, Side: models.Short},
		Premium:  0.40,
	}))
	return map[string]*position.State{"put": put, "call": call}
}

func TestEvaluateIndependent(t *testing.T) {
	strategy := twoLegStrategy(models.Independent, "", models.Trigger{Kind: models.TriggerPriceMove, Points: 1.0})
	states := openTwoLegs(t)

	ev := baseEvent(1, 840)
	ev.Price = 73.0
	evs := map[string]MarketEvent{"put": ev, "call": ev}

	actions := Evaluate(states, strategy, evs)
	require.Len(t, actions, 1)
	assert.Equal(t, "put", actions[0].LegID)
	assert.Equal(t, ActionRoll, actions[0].Type)
}

func TestEvaluateSynchronizedCouplesSiblings(t *testing.T) {
	strategy := twoLegStrategy(models.Synchronized, "", models.Trigger{Kind: models.TriggerPriceMove, Points: 1.0})
	states := openTwoLegs(t)

	ev := baseEvent(1, 840)
	ev.Price = 73.0
	evs := map[string]MarketEvent{"put": ev, "call": ev}

	actions := Evaluate(states, strategy, evs)
	require.Len(t, actions, 2)

	byLeg := map[string]Action{}
	for _, a := range actions {
		byLeg[a.LegID] = a
	}
	assert.Equal(t, ActionRoll, byLeg["put"].Type)
	assert.Equal(t, ActionRoll, byLeg["call"].Type)
	assert.Contains(t, byLeg["call"].Reasons, models.ReasonGroupRoll)
	assert.NotContains(t, byLeg["put"].Reasons, models.ReasonGroupRoll)
}

func TestEvaluateLeaderFollower(t *testing.T) {
	// Only the put carries triggers; as follower its firing does nothing.
	strategy := twoLegStrategy(models.LeaderFollower, "call", models.Trigger{Kind: models.TriggerPriceMove, Points: 1.0})
	states := openTwoLegs(t)

	ev := baseEvent(1, 840)
	ev.Price = 73.0
	evs := map[string]MarketEvent{"put": ev, "call": ev}
	assert.Empty(t, Evaluate(states, strategy, evs))

	// With the put as leader the group rolls.
	strategy.Leader = "put"
	actions := Evaluate(states, strategy, evs)
	require.Len(t, actions, 2)
}
