// Package position holds the live per-leg state derived from the event
// log. State is created by PositionOpened, mutated only through Apply in
// event order, and retired by PositionClosed; replaying a log from
// scratch reconstructs the same state as the live run.
package position

import (
	"oilsim/internal/calendar"
	"oilsim/internal/errors"
	"oilsim/internal/events"
	"oilsim/internal/models"
)

// State is the per-leg live record.
type State struct {
	LegID string

	// Current lifecycle.
	Open           bool
	Contract       models.Contract
	EntryTimestamp calendar.Timestamp
	EntryPremium   float64
	MaxCredit      float64 // shorts: entry premium collected
	MaxDebit       float64 // longs: entry premium paid

	// Cumulative across lifecycles.
	RealizedPnL float64
	Commissions float64
	RollCount   int

	// Cooldown bookkeeping.
	LastRoll    calendar.Timestamp
	HasRolled   bool
	RollsToday  int
	RolledToday bool

	// Valuation: updated by MarkToMarket events, reset to the entry
	// premium on open and roll and cleared on close.
	CurrentMark   float64
	UnrealizedPnL float64

	LastEventID uint64
}

// New creates an empty state for a leg.
func New(legID string) *State {
	return &State{LegID: legID}
}

// realize returns the realized P&L of closing the current contract at
// exitPremium: shorts keep entry minus exit, longs the reverse.
func (s *State) realize(exitPremium float64) float64 {
	if s.Contract.Side == models.Long {
		return exitPremium - s.EntryPremium
	}
	return s.EntryPremium - exitPremium
}

func (s *State) enter(contract models.Contract, premium float64, ts calendar.Timestamp) {
	s.Contract = contract
	s.EntryTimestamp = ts
	s.EntryPremium = premium
	s.MaxCredit = 0
	s.MaxDebit = 0
	if contract.Side == models.Short {
		s.MaxCredit = premium
	} else {
		s.MaxDebit = premium
	}
	s.CurrentMark = premium
	s.UnrealizedPnL = 0
}

// Apply mutates the state with one event. Lifecycle violations (a
// second open, a roll on a retired leg) return LifecycleError: they are
// kernel bugs, never expected at runtime.
func (s *State) Apply(e events.Event) error {
	if e.LegID != s.LegID {
		return errors.NewLifecycleError(s.LegID, e.ID, "event belongs to leg "+e.LegID)
	}

	switch e.Kind {
	case events.KindPositionOpened:
		if s.Open {
			return errors.NewLifecycleError(s.LegID, e.ID, "opened while already open")
		}
		s.Open = true
		s.enter(e.Contract, e.Premium, e.Timestamp)
		s.Commissions += e.Commission
		s.RollsToday = 0
		s.RolledToday = false

	case events.KindLegRolled:
		if !s.Open {
			return errors.NewLifecycleError(s.LegID, e.ID, "rolled while not open")
		}
		s.RealizedPnL += s.realize(e.ExitPremium)
		s.Commissions += e.Commission
		s.enter(e.NewContract, e.EntryPremium, e.Timestamp)
		s.RollCount++
		s.RollsToday++
		s.RolledToday = true
		s.LastRoll = e.Timestamp
		s.HasRolled = true

	case events.KindPositionClosed:
		if !s.Open {
			return errors.NewLifecycleError(s.LegID, e.ID, "closed while not open")
		}
		s.RealizedPnL += s.realize(e.Premium)
		s.Commissions += e.Commission
		s.Open = false
		s.CurrentMark = 0
		s.UnrealizedPnL = 0
		s.RollsToday = 0
		s.RolledToday = false

	case events.KindMarkToMarket:
		if !s.Open {
			return errors.NewLifecycleError(s.LegID, e.ID, "marked while not open")
		}
		s.CurrentMark = e.Mark
		s.UnrealizedPnL = s.realize(e.Mark)

	case events.KindRollRejected:
		// Recorded for audit; no state transition.

	default:
		return errors.NewLifecycleError(s.LegID, e.ID, "unknown event kind")
	}

	s.LastEventID = e.ID
	return nil
}

// ResetDailyFlags clears the per-day roll bookkeeping. The kernel calls
// this at each trading-day boundary, and Replay mirrors it.
func (s *State) ResetDailyFlags() {
	s.RollsToday = 0
	s.RolledToday = false
}

// Replay folds an event log from the empty initial state into per-leg
// states, resetting daily flags at day boundaries exactly as the live
// kernel does.
func Replay(log []events.Event) (map[string]*State, error) {
	states := make(map[string]*State)
	var day calendar.Day
	first := true
	for _, e := range log {
		if first {
			day = e.Timestamp.Day
			first = false
		} else if e.Timestamp.Day != day {
			for _, st := range states {
				st.ResetDailyFlags()
			}
			day = e.Timestamp.Day
		}
		st, ok := states[e.LegID]
		if !ok {
			st = New(e.LegID)
			states[e.LegID] = st
		}
		if err := st.Apply(e); err != nil {
			return nil, err
		}
	}
	return states, nil
}
