// Package triggers implements the strategy decision engine: a pure,
// total function from (leg state, leg configuration, market event) to
// actions. Triggers are evaluated in declaration order; the first match
// decides, and the action carries every reason that matched at that
// instant. Cooldowns are enforced here, converting blocked rolls into
// rejections rather than errors.
package triggers

import (
	"math"

	"oilsim/internal/calendar"
	"oilsim/internal/models"
	"oilsim/internal/position"
)

// MarketEvent is the snapshot the kernel presents to the engine for one
// leg at one instant. All valuation inputs are passed as values so the
// decision function stays pure.
type MarketEvent struct {
	Timestamp calendar.Timestamp

	// Underlying prices.
	Price         float64 // F at this instant
	DailyOpen     float64 // F at the day's first instant
	EntryPrice    float64 // F at the leg's entry
	LastRollPrice float64 // F at the leg's last roll (entry price if never rolled)

	// Leg valuation at this instant.
	DTE   uint32
	Mark  float64 // current option value
	Delta float64

	// Product expiry wall clock (default 14:30 for oil).
	ExpiryTime calendar.TimeOfDay
}

// ActionType enumerates engine outcomes.
type ActionType int

const (
	// ActionRoll closes the current contract and opens a replacement.
	ActionRoll ActionType = iota
	// ActionReject records a roll blocked by cooldown.
	ActionReject
)

// Action is one decision for one leg.
type Action struct {
	LegID   string
	Type    ActionType
	Reasons []models.Reason
}

// unrealized returns the leg's unrealized P&L at the given mark:
// positive means gain for the held side.
func unrealized(st *position.State, mark float64) float64 {
	if st.Contract.Side == models.Long {
		return mark - st.EntryPremium
	}
	return st.EntryPremium - mark
}

// fires reports whether a single trigger matches, independent of
// cooldowns and siblings.
func fires(t models.Trigger, st *position.State, ev MarketEvent) bool {
	switch t.Kind {
	case models.TriggerDteThreshold:
		return ev.DTE <= t.DTE

	case models.TriggerTimeOfDay:
		// One-per-day guard: a leg that already rolled today holds.
		return ev.Timestamp.Minute >= t.Time && !st.RolledToday

	case models.TriggerProfitTarget:
		// Sign discipline: gains only, for both sides. A long leg under
		// water never fires this.
		base := st.MaxCredit
		if st.Contract.Side == models.Long {
			base = st.MaxDebit
		}
		return base > 0 && unrealized(st, ev.Mark) >= t.Fraction*base

	case models.TriggerStopLoss:
		base := st.MaxCredit
		if st.Contract.Side == models.Long {
			base = st.MaxDebit
		}
		return base > 0 && unrealized(st, ev.Mark) <= -t.Fraction*base

	case models.TriggerPriceMove:
		ref := ev.EntryPrice
		switch t.Reference {
		case models.RefLastRoll:
			ref = ev.LastRollPrice
		case models.RefDailyOpen:
			ref = ev.DailyOpen
		}
		return math.Abs(ev.Price-ref) >= t.Points

	case models.TriggerDeltaThreshold:
		return math.Abs(ev.Delta) >= t.Delta

	case models.TriggerExpiration:
		return ev.DTE == 0 && ev.Timestamp.Minute >= ev.ExpiryTime

	case models.TriggerManual:
		// Reserved for external signals; never fires autonomously.
		return false

	default:
		return false
	}
}

// Decide evaluates a leg's triggers against a market event. It returns
// at most one action: the first matching trigger in declaration order
// wins, carrying the reasons of every trigger that matched at this
// instant. Closed legs never act. Decide cannot fail.
func Decide(st *position.State, cfg models.LegConfig, ev MarketEvent) []Action {
	if st == nil || !st.Open {
		return nil
	}

	var reasons []models.Reason
	for _, t := range cfg.RollTriggers {
		if fires(t, st, ev) {
			reasons = append(reasons, models.ReasonFor(t.Kind))
		}
	}
	if len(reasons) == 0 {
		return nil
	}
	return []Action{applyCooldown(st, cfg, ev, Action{
		LegID:   cfg.ID,
		Type:    ActionRoll,
		Reasons: reasons,
	})}
}

// applyCooldown converts a proposed roll into a rejection when the leg
// is inside its cooldown window or exhausted its daily roll budget.
func applyCooldown(st *position.State, cfg models.LegConfig, ev MarketEvent, a Action) Action {
	if a.Type != ActionRoll {
		return a
	}
	if cfg.MaxRollsPerDay > 0 && st.RollsToday >= cfg.MaxRollsPerDay {
		a.Type = ActionReject
		a.Reasons = append(a.Reasons, models.ReasonMaxRollsPerDay)
		return a
	}
	if cfg.MinRollInterval > 0 && st.HasRolled {
		elapsed := ev.Timestamp.MinutesSince(st.LastRoll)
		if elapsed < uint64(cfg.MinRollInterval.Minutes()) {
			a.Type = ActionReject
			a.Reasons = append(a.Reasons, models.ReasonCooldown)
		}
	}
	return a
}

// Evaluate runs Decide for every leg, applies the group's roll-mode
// coupling and re-checks cooldowns for legs dragged in by siblings.
// Events are keyed by leg ID.
func Evaluate(states map[string]*position.State, strategy *models.Strategy, evs map[string]MarketEvent) []Action {
	byLeg := make(map[string]Action)
	var order []string

	for _, leg := range strategy.Legs {
		st := states[leg.ID]
		ev, ok := evs[leg.ID]
		if !ok {
			continue
		}
		for _, a := range Decide(st, leg, ev) {
			byLeg[leg.ID] = a
			order = append(order, leg.ID)
		}
	}

	switch strategy.GroupMode {
	case models.Synchronized:
		// Any firing leg forces a roll of every live sibling.
		if fired := firstRoll(byLeg, order); fired != "" {
			return coupleGroup(states, strategy, evs, byLeg, fired)
		}

	case models.LeaderFollower:
		// Only the leader's firing moves the group.
		if a, ok := byLeg[strategy.Leader]; ok && a.Type == ActionRoll {
			return coupleGroup(states, strategy, evs, byLeg, strategy.Leader)
		}
		// Follower firings alone do nothing; rejections still surface.
		var out []Action
		for _, id := range order {
			if a := byLeg[id]; a.Type == ActionReject {
				out = append(out, a)
			}
		}
		return out
	}

	out := make([]Action, 0, len(order))
	for _, id := range order {
		out = append(out, byLeg[id])
	}
	return out
}

// firstRoll returns the first leg in firing order whose action is an
// accepted roll.
func firstRoll(byLeg map[string]Action, order []string) string {
	for _, id := range order {
		if byLeg[id].Type == ActionRoll {
			return id
		}
	}
	return ""
}

// coupleGroup emits a roll for every live leg: the initiator keeps its
// own reasons, siblings carry the group-roll reason, and each sibling's
// cooldown is enforced independently.
func coupleGroup(states map[string]*position.State, strategy *models.Strategy, evs map[string]MarketEvent, byLeg map[string]Action, initiator string) []Action {
	var out []Action
	for _, leg := range strategy.Legs {
		st := states[leg.ID]
		if st == nil || !st.Open {
			continue
		}
		if leg.ID == initiator {
			out = append(out, byLeg[leg.ID])
			continue
		}
		ev := evs[leg.ID]
		a := Action{LegID: leg.ID, Type: ActionRoll, Reasons: []models.Reason{models.ReasonGroupRoll}}
		if own, ok := byLeg[leg.ID]; ok {
			a.Reasons = append(own.Reasons, models.ReasonGroupRoll)
			if own.Type == ActionReject {
				out = append(out, own)
				continue
			}
		}
		out = append(out, applyCooldown(st, leg, ev, a))
	}
	return out
}
