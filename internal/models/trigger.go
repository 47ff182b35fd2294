package models

import "oilsim/internal/calendar"

// TriggerKind enumerates the closed set of roll/exit trigger variants.
type TriggerKind int

const (
	TriggerDteThreshold TriggerKind = iota
	TriggerTimeOfDay
	TriggerProfitTarget
	TriggerStopLoss
	TriggerPriceMove
	TriggerDeltaThreshold
	TriggerExpiration
	TriggerManual
)

// String returns the configuration name of the trigger kind.
func (k TriggerKind) String() string {
	switch k {
	case TriggerDteThreshold:
		return "dte"
	case TriggerTimeOfDay:
		return "time"
	case TriggerProfitTarget:
		return "profit_target"
	case TriggerStopLoss:
		return "stop_loss"
	case TriggerPriceMove:
		return "price_move"
	case TriggerDeltaThreshold:
		return "delta"
	case TriggerExpiration:
		return "expiration"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// PriceReference selects the anchor price for a PriceMove trigger.
type PriceReference int

const (
	RefEntry PriceReference = iota
	RefLastRoll
	RefDailyOpen
)

// String returns the configuration name of the reference.
func (r PriceReference) String() string {
	switch r {
	case RefLastRoll:
		return "last_roll"
	case RefDailyOpen:
		return "daily_open"
	default:
		return "entry"
	}
}

// Trigger is one roll/exit condition. Only the fields relevant to Kind
// are meaningful; the rest stay zero.
type Trigger struct {
	Kind TriggerKind

	// DteThreshold: fire when DTE <= DTE.
	DTE uint32

	// TimeOfDay: fire at or after Time, at most once per day.
	Time calendar.TimeOfDay

	// ProfitTarget / StopLoss: fraction of max credit (shorts) or max
	// debit (longs), e.g. 0.5 for 50%.
	Fraction float64

	// PriceMove: fire when |F - reference| >= Points.
	Points    float64
	Reference PriceReference

	// DeltaThreshold: fire when |delta| >= Delta.
	Delta float64
}

// Reason tags why an action happened. An action carries every reason
// that matched at its instant.
type Reason string

const (
	ReasonDteThreshold   Reason = "dte_threshold"
	ReasonTimeOfDay      Reason = "time_of_day"
	ReasonProfitTarget   Reason = "profit_target"
	ReasonStopLoss       Reason = "stop_loss"
	ReasonPriceMove      Reason = "price_move"
	ReasonDeltaThreshold Reason = "delta_threshold"
	ReasonExpiration     Reason = "expiration"
	ReasonManual         Reason = "manual"
	ReasonGroupRoll      Reason = "group_roll"
	ReasonCooldown       Reason = "cooldown"
	ReasonMaxRollsPerDay Reason = "max_rolls_per_day"
	ReasonPositionTarget Reason = "position_profit_target"
	ReasonPositionStop   Reason = "position_stop_loss"
	ReasonForcedClose    Reason = "forced_close"
)

// ReasonFor maps a trigger kind to its reason tag.
func ReasonFor(k TriggerKind) Reason {
	switch k {
	case TriggerDteThreshold:
		return ReasonDteThreshold
	case TriggerTimeOfDay:
		return ReasonTimeOfDay
	case TriggerProfitTarget:
		return ReasonProfitTarget
	case TriggerStopLoss:
		return ReasonStopLoss
	case TriggerPriceMove:
		return ReasonPriceMove
	case TriggerDeltaThreshold:
		return ReasonDeltaThreshold
	case TriggerExpiration:
		return ReasonExpiration
	default:
		return ReasonManual
	}
}
