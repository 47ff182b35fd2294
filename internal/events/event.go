// Package events defines the immutable simulation events and the
// append-only stores that hold them. The event log is the single source
// of truth: every piece of position state and every analytic is derived
// from it by replay.
package events

import (
	"fmt"
	"strings"

	"oilsim/internal/calendar"
	"oilsim/internal/models"
)

// Kind tags the event variants.
type Kind int

const (
	KindPositionOpened Kind = iota
	KindPositionClosed
	KindLegRolled
	KindRollRejected
	KindMarkToMarket
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPositionOpened:
		return "position_opened"
	case KindPositionClosed:
		return "position_closed"
	case KindLegRolled:
		return "leg_rolled"
	case KindRollRejected:
		return "roll_rejected"
	case KindMarkToMarket:
		return "mark_to_market"
	default:
		return "unknown"
	}
}

// Event is one immutable record in the log. Only the payload fields
// relevant to Kind are meaningful; the rest stay zero.
//
// Premium fields are raw (unsigned) option prices; sign conventions are
// applied by the accounting fold and position state.
type Event struct {
	ID        uint64
	Timestamp calendar.Timestamp
	LegID     string
	Kind      Kind

	// Underlying price at the event instant.
	Price float64

	// PositionOpened: Contract + Premium (+ Commission).
	// PositionClosed: Contract + Premium paid/received to close.
	// RollRejected / MarkToMarket: Contract identifies the live leg.
	Contract models.Contract
	Premium  float64

	// LegRolled: atomic close of Old at ExitPremium plus open of New at
	// EntryPremium. Commission covers both sides.
	OldContract  models.Contract
	NewContract  models.Contract
	ExitPremium  float64
	EntryPremium float64

	Commission float64

	// MarkToMarket: current option value of the leg.
	Mark float64

	// Why the action happened; every reason that matched at the instant.
	Reasons []models.Reason
}

// ReasonsString joins the reason tags for display and persistence.
func (e Event) ReasonsString() string {
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// HasReason reports whether the event carries the given reason.
func (e Event) HasReason(r models.Reason) bool {
	for _, have := range e.Reasons {
		if have == r {
			return true
		}
	}
	return false
}

// String formats a one-line human-readable record.
func (e Event) String() string {
	switch e.Kind {
	case KindPositionOpened:
		return fmt.Sprintf("#%d %s %s OPEN %s premium %.4f", e.ID, e.Timestamp, e.LegID, e.Contract, e.Premium)
	case KindPositionClosed:
		return fmt.Sprintf("#%d %s %s CLOSE %s premium %.4f (%s)", e.ID, e.Timestamp, e.LegID, e.Contract, e.Premium, e.ReasonsString())
	case KindLegRolled:
		return fmt.Sprintf("#%d %s %s ROLL %s -> %s exit %.4f entry %.4f (%s)",
			e.ID, e.Timestamp, e.LegID, e.OldContract, e.NewContract, e.ExitPremium, e.EntryPremium, e.ReasonsString())
	case KindRollRejected:
		return fmt.Sprintf("#%d %s %s REJECT (%s)", e.ID, e.Timestamp, e.LegID, e.ReasonsString())
	case KindMarkToMarket:
		return fmt.Sprintf("#%d %s %s MARK %.4f @ %.2f", e.ID, e.Timestamp, e.LegID, e.Mark, e.Price)
	default:
		return fmt.Sprintf("#%d %s %s ?", e.ID, e.Timestamp, e.LegID)
	}
}
