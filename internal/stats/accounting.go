// Package stats derives all analytics from the event log: the
// accounting fold (P&L, counts, equity curve, drawdown) and the
// distribution aggregates for Monte Carlo studies. Ledger sums are
// carried in decimal so the accounting identity
// net = credits - debits - commissions holds exactly.
package stats

import (
	"github.com/shopspring/decimal"

	"oilsim/internal/calendar"
	"oilsim/internal/events"
	"oilsim/internal/models"
)

// EquityPoint is one daily sample of cumulative net P&L in dollars.
type EquityPoint struct {
	Day    calendar.Day
	Equity float64
}

// Summary is the accounting fold of one simulation's event log.
// Monetary fields are in dollars (premium times contract multiplier).
type Summary struct {
	Credits     float64
	Debits      float64
	Commissions float64
	RealizedPnL float64
	NetPnL      float64

	Opens   int
	Closes  int
	Rolls   int
	Rejects int
	Marks   int

	Wins   int
	Losses int

	EquityCurve []EquityPoint
	MaxDrawdown float64
}

// ledger accumulates signed cash flows in decimal.
type ledger struct {
	credits     decimal.Decimal
	debits      decimal.Decimal
	commissions decimal.Decimal
}

func (l *ledger) credit(premium float64) {
	l.credits = l.credits.Add(decimal.NewFromFloat(premium))
}

func (l *ledger) debit(premium float64) {
	l.debits = l.debits.Add(decimal.NewFromFloat(premium))
}

// entry books an opening cash flow: shorts collect, longs pay.
func (l *ledger) entry(c models.Contract, premium float64) {
	if c.Side == models.Short {
		l.credit(premium)
	} else {
		l.debit(premium)
	}
}

// exit books a closing cash flow: shorts pay to close, longs collect.
func (l *ledger) exit(c models.Contract, premium float64) {
	if c.Side == models.Short {
		l.debit(premium)
	} else {
		l.credit(premium)
	}
}

// legLifecycle tracks the running realized P&L of one open-to-close
// lifecycle for win counting.
type legLifecycle struct {
	side         models.Side
	entryPremium float64
	realized     decimal.Decimal
}

func (lc *legLifecycle) realize(exitPremium float64) {
	entry := decimal.NewFromFloat(lc.entryPremium)
	exit := decimal.NewFromFloat(exitPremium)
	if lc.side == models.Short {
		lc.realized = lc.realized.Add(entry.Sub(exit))
	} else {
		lc.realized = lc.realized.Add(exit.Sub(entry))
	}
}

// Fold computes the accounting summary of an event log. multiplier
// converts premium points to dollars (e.g. 1000 for /CL).
func Fold(log []events.Event, multiplier float64) Summary {
	var (
		led        ledger
		sum        Summary
		lifecycles = make(map[string]*legLifecycle)
		haveDay    bool
		day        calendar.Day
	)

	sample := func() {
		net := led.credits.Sub(led.debits).Sub(led.commissions)
		equity, _ := net.Mul(decimal.NewFromFloat(multiplier)).Float64()
		sum.EquityCurve = append(sum.EquityCurve, EquityPoint{Day: day, Equity: equity})
	}

	for _, e := range log {
		if !haveDay {
			day = e.Timestamp.Day
			haveDay = true
		} else if e.Timestamp.Day != day {
			sample()
			day = e.Timestamp.Day
		}

		switch e.Kind {
		case events.KindPositionOpened:
			sum.Opens++
			led.entry(e.Contract, e.Premium)
			led.commissions = led.commissions.Add(decimal.NewFromFloat(e.Commission))
			lifecycles[e.LegID] = &legLifecycle{side: e.Contract.Side, entryPremium: e.Premium}

		case events.KindLegRolled:
			sum.Rolls++
			led.exit(e.OldContract, e.ExitPremium)
			led.entry(e.NewContract, e.EntryPremium)
			led.commissions = led.commissions.Add(decimal.NewFromFloat(e.Commission))
			if lc := lifecycles[e.LegID]; lc != nil {
				lc.realize(e.ExitPremium)
				lc.side = e.NewContract.Side
				lc.entryPremium = e.EntryPremium
			}

		case events.KindPositionClosed:
			sum.Closes++
			led.exit(e.Contract, e.Premium)
			led.commissions = led.commissions.Add(decimal.NewFromFloat(e.Commission))
			if lc := lifecycles[e.LegID]; lc != nil {
				lc.realize(e.Premium)
				if lc.realized.IsPositive() {
					sum.Wins++
				} else {
					sum.Losses++
				}
				delete(lifecycles, e.LegID)
			}

		case events.KindRollRejected:
			sum.Rejects++

		case events.KindMarkToMarket:
			sum.Marks++
		}
	}
	if haveDay {
		sample()
	}

	mult := decimal.NewFromFloat(multiplier)
	sum.Credits, _ = led.credits.Mul(mult).Float64()
	sum.Debits, _ = led.debits.Mul(mult).Float64()
	sum.Commissions, _ = led.commissions.Mul(mult).Float64()
	realized := led.credits.Sub(led.debits)
	sum.RealizedPnL, _ = realized.Mul(mult).Float64()
	sum.NetPnL, _ = realized.Sub(led.commissions).Mul(mult).Float64()

	sum.MaxDrawdown = maxDrawdown(sum.EquityCurve)
	return sum
}

// maxDrawdown returns the largest peak-to-trough equity decline.
func maxDrawdown(curve []EquityPoint) float64 {
	var peak, worst float64
	first := true
	for _, p := range curve {
		if first || p.Equity > peak {
			peak = p.Equity
			first = false
		}
		if dd := peak - p.Equity; dd > worst {
			worst = dd
		}
	}
	return worst
}
