// Package engine contains the simulation kernel: the discrete-event
// loop that steps the synthetic calendar, advances the price process,
// marks live legs, evaluates roll triggers and appends the resulting
// events to the log. It also hosts the Monte Carlo study runner.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"oilsim/internal/calendar"
	"oilsim/internal/config"
	"oilsim/internal/errors"
	"oilsim/internal/events"
	"oilsim/internal/models"
	"oilsim/internal/position"
	"oilsim/internal/prices"
	"oilsim/internal/pricing"
	"oilsim/internal/stats"
	"oilsim/internal/strike"
	"oilsim/internal/triggers"
)

// Result is the outcome of one simulation: the event log, the final
// per-leg states and the accounting summary derived from the log.
type Result struct {
	Seed        uint64
	Fingerprint string
	Summary     stats.Summary
	Events      []events.Event
	FinalStates map[string]*position.State
}

// Options carries optional collaborators for a simulation. Zero values
// select the defaults: an in-memory store and the configured price model.
type Options struct {
	Store     events.Store
	Generator prices.Generator
}

// Simulation owns all state of one run: the PRNG, the event store and
// the per-leg position states. Nothing is shared between simulations.
type Simulation struct {
	cfg      *config.Config
	strategy *models.Strategy
	gen      prices.Generator
	store    events.Store
	states   map[string]*position.State
	logger   zerolog.Logger

	openTime   calendar.TimeOfDay
	closeTime  calendar.TimeOfDay
	entryTime  calendar.TimeOfDay
	rollTime   calendar.TimeOfDay
	expiryTime calendar.TimeOfDay

	impliedVol float64
	commission float64

	// Per-leg underlying reference prices for PriceMove triggers.
	entryPrice    map[string]float64
	lastRollPrice map[string]float64
	dailyOpen     float64

	lastInstant calendar.Timestamp
	started     bool
	entered     bool
}

// NewSimulation builds a simulation from a validated configuration.
func NewSimulation(cfg *config.Config, logger zerolog.Logger, opts Options) (*Simulation, error) {
	strategy, err := cfg.BuildStrategy()
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:           cfg,
		strategy:      strategy,
		store:         opts.Store,
		gen:           opts.Generator,
		states:        make(map[string]*position.State),
		logger:        logger.With().Str("component", "kernel").Uint64("seed", cfg.Simulation.Seed).Logger(),
		impliedVol:    cfg.Simulation.ImpliedVolatility(),
		commission:    cfg.Simulation.CommissionPerContract,
		entryPrice:    make(map[string]float64),
		lastRollPrice: make(map[string]float64),
	}
	if s.store == nil {
		s.store = events.NewMemoryStore()
	}
	if s.gen == nil {
		s.gen = newGenerator(cfg.Simulation)
	}
	for _, leg := range strategy.Legs {
		s.states[leg.ID] = position.New(leg.ID)
	}

	s.openTime, _ = calendar.ParseTimeOfDay(cfg.Product.TradingHours.Open)
	s.closeTime, _ = calendar.ParseTimeOfDay(cfg.Product.TradingHours.Close)
	s.expiryTime, _ = calendar.ParseTimeOfDay(cfg.Product.TradingHours.OptionExpiry)
	s.entryTime, _ = calendar.ParseTimeOfDay(cfg.Strategy.EntryTime)
	s.rollTime, _ = calendar.ParseTimeOfDay(cfg.Strategy.RollTime)
	return s, nil
}

// newGenerator instantiates the configured price model.
func newGenerator(sim config.SimulationConfig) prices.Generator {
	if sim.Model == "mean_reverting" {
		return prices.NewMeanReverting(prices.MeanRevParams{
			InitialPrice: sim.InitialPrice,
			MeanLevel:    sim.MeanLevel,
			Reversion:    sim.Reversion,
			Volatility:   sim.Volatility,
		}, sim.Seed)
	}
	return prices.NewGBM(prices.GBMParams{
		InitialPrice: sim.InitialPrice,
		Drift:        sim.Drift,
		Volatility:   sim.Volatility,
	}, sim.Seed)
}

// instants returns the ordered distinct wall-clock instants the kernel
// visits on each trading day.
func (s *Simulation) instants() []calendar.TimeOfDay {
	set := map[calendar.TimeOfDay]bool{
		s.openTime:   true,
		s.closeTime:  true,
		s.entryTime:  true,
		s.rollTime:   true,
		s.expiryTime: true,
	}
	out := make([]calendar.TimeOfDay, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// tradingWindow is the wall-clock span of one trading day in minutes.
func (s *Simulation) tradingWindow() float64 {
	w := float64(s.closeTime) - float64(s.openTime)
	if w <= 0 {
		w = 8 * 60
	}
	return w
}

// advance steps the price process to an instant. Each trading day
// contributes exactly 1/252 years, spread over its trading window;
// the overnight gap carries no variance.
func (s *Simulation) advance(ts calendar.Timestamp) float64 {
	if !s.started {
		s.started = true
		s.lastInstant = ts
		return s.gen.Current()
	}
	var dt float64
	if ts.Day == s.lastInstant.Day {
		dt = float64(ts.Minute-s.lastInstant.Minute) / s.tradingWindow() / pricing.TradingDaysPerYear
	}
	s.lastInstant = ts
	return s.gen.Step(dt)
}

// timeToExpiry returns the fractional trading-day time to a leg's
// expiry in years: the remainder of today plus full trading days in
// between plus the expiry-day morning.
func (s *Simulation) timeToExpiry(ts calendar.Timestamp, exp calendar.Day) float64 {
	window := s.tradingWindow()
	if ts.Day == exp {
		remaining := float64(s.expiryTime) - float64(ts.Minute)
		if remaining <= 0 {
			return 0
		}
		return remaining / window / pricing.TradingDaysPerYear
	}
	if ts.Day > exp {
		return 0
	}
	todayLeft := 0.0
	if calendar.IsTradingDay(ts.Day) && ts.Minute < s.closeTime {
		todayLeft = float64(s.closeTime-ts.Minute) / window
	}
	between := float64(calendar.DTE(calendar.NextTradingDay(ts.Day), exp))
	expiryMorning := float64(s.expiryTime-s.openTime) / window
	return (todayLeft + between + expiryMorning) / pricing.TradingDaysPerYear
}

// markLeg prices one live leg at the current underlying.
func (s *Simulation) markLeg(st *position.State, ts calendar.Timestamp, f float64) (float64, pricing.Greeks, error) {
	t := s.timeToExpiry(ts, st.Contract.Expiration)
	in := pricing.Inputs{
		Futures:    f,
		Strike:     st.Contract.Strike,
		TimeToExp:  t,
		RiskFree:   s.cfg.Simulation.RiskFreeRate,
		Volatility: s.impliedVol,
		Type:       st.Contract.Type,
	}
	mark, err := pricing.Price(in)
	if err != nil {
		return 0, pricing.Greeks{}, err
	}
	greeks, err := pricing.ComputeGreeks(in)
	if err != nil {
		return 0, pricing.Greeks{}, err
	}
	return mark, greeks, nil
}

// append writes an event to the store and applies it to the leg state,
// keeping the live state and the log in lockstep.
func (s *Simulation) append(e events.Event) error {
	id, err := s.store.Append(e)
	if err != nil {
		return err
	}
	e.ID = id
	st := s.states[e.LegID]
	if st == nil {
		return errors.NewLifecycleError(e.LegID, id, "event for unknown leg")
	}
	return st.Apply(e)
}

// selectStrike resolves a rule at the current underlying.
func (s *Simulation) selectStrike(rule models.StrikeRule, typ models.OptionType, f float64, dte uint32) (float64, error) {
	return strike.Select(rule, typ, f, s.cfg.Strike.TickSize, strike.PricingContext{
		TimeToExp:  pricing.YearsFromDTE(float64(dte)),
		RiskFree:   s.cfg.Simulation.RiskFreeRate,
		Volatility: s.impliedVol,
	})
}

// openLeg opens a leg per its entry rule at the current instant.
func (s *Simulation) openLeg(leg models.LegConfig, ts calendar.Timestamp, f float64) error {
	k, err := s.selectStrike(leg.EntryStrike, leg.Type, f, leg.EntryDTE)
	if err != nil {
		return err
	}
	contract := models.Contract{
		Type:       leg.Type,
		Strike:     k,
		Expiration: calendar.ExpirationForDTE(ts.Day, leg.EntryDTE),
		Side:       leg.Side,
	}
	premium, err := pricing.Price(pricing.Inputs{
		Futures:    f,
		Strike:     k,
		TimeToExp:  s.timeToExpiry(ts, contract.Expiration),
		RiskFree:   s.cfg.Simulation.RiskFreeRate,
		Volatility: s.impliedVol,
		Type:       leg.Type,
	})
	if err != nil {
		return err
	}

	s.entryPrice[leg.ID] = f
	s.lastRollPrice[leg.ID] = f
	s.logger.Debug().Str("leg", leg.ID).Stringer("contract", contract).Float64("premium", premium).Msg("leg opened")
	return s.append(events.Event{
		Timestamp:  ts,
		LegID:      leg.ID,
		Kind:       events.KindPositionOpened,
		Price:      f,
		Contract:   contract,
		Premium:    premium,
		Commission: s.commission,
	})
}

// closeLeg closes a live leg at the given premium.
func (s *Simulation) closeLeg(st *position.State, ts calendar.Timestamp, f, premium float64, reasons []models.Reason) error {
	s.logger.Debug().Str("leg", st.LegID).Float64("premium", premium).Strs("reasons", reasonStrings(reasons)).Msg("leg closed")
	return s.append(events.Event{
		Timestamp:  ts,
		LegID:      st.LegID,
		Kind:       events.KindPositionClosed,
		Price:      f,
		Contract:   st.Contract,
		Premium:    premium,
		Commission: s.commission,
		Reasons:    reasons,
	})
}

// rollLeg atomically closes the current contract and opens the
// replacement dictated by the leg's roll rule.
func (s *Simulation) rollLeg(leg models.LegConfig, st *position.State, ts calendar.Timestamp, f float64, reasons []models.Reason) error {
	exitPremium, _, err := s.markLeg(st, ts, f)
	if err != nil {
		return err
	}

	newStrike := st.Contract.Strike
	if leg.RollStrikeMode == models.Recenter {
		newStrike, err = s.selectStrike(leg.RollStrike, leg.Type, f, leg.RollDTE)
		if err != nil {
			return err
		}
	}
	newContract := models.Contract{
		Type:       leg.Type,
		Strike:     newStrike,
		Expiration: calendar.ExpirationForDTE(ts.Day, leg.RollDTE),
		Side:       leg.Side,
	}
	entryPremium, err := pricing.Price(pricing.Inputs{
		Futures:    f,
		Strike:     newStrike,
		TimeToExp:  s.timeToExpiry(ts, newContract.Expiration),
		RiskFree:   s.cfg.Simulation.RiskFreeRate,
		Volatility: s.impliedVol,
		Type:       leg.Type,
	})
	if err != nil {
		return err
	}

	old := st.Contract
	err = s.append(events.Event{
		Timestamp:    ts,
		LegID:        leg.ID,
		Kind:         events.KindLegRolled,
		Price:        f,
		OldContract:  old,
		NewContract:  newContract,
		ExitPremium:  exitPremium,
		EntryPremium: entryPremium,
		Commission:   2 * s.commission,
		Reasons:      reasons,
	})
	if err != nil {
		return err
	}
	s.lastRollPrice[leg.ID] = f
	s.logger.Debug().Str("leg", leg.ID).Stringer("old", old).Stringer("new", newContract).
		Float64("exit", exitPremium).Float64("entry", entryPremium).Msg("leg rolled")
	return nil
}

// liveLegs reports whether any leg is still open.
func (s *Simulation) liveLegs() bool {
	for _, st := range s.states {
		if st.Open {
			return true
		}
	}
	return false
}

func reasonStrings(rs []models.Reason) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// Run executes the simulation to completion. On a numerical failure the
// partial result, with the event log captured so far, is returned
// alongside the error for post-mortem analysis.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	instants := s.instants()
	decisionDays := s.cfg.Simulation.Days

	var (
		day         calendar.Day
		tradingDays uint32
		err         error
	)

	s.logger.Info().
		Uint32("days", decisionDays).
		Float64("initial_price", s.cfg.Simulation.InitialPrice).
		Float64("realized_vol", s.cfg.Simulation.Volatility).
		Float64("implied_vol", s.impliedVol).
		Str("strategy", s.strategy.Name).
		Msg("simulation started")

	for {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		if !calendar.IsTradingDay(day) {
			day++
			continue
		}

		// Termination: at the configured number of trading days, all
		// open legs are closed on the following trading day's expiry
		// instant, at intrinsic or current mark.
		if tradingDays >= decisionDays {
			err = s.terminate(day, instants)
			break
		}

		if err = s.runDay(day, instants); err != nil {
			break
		}
		tradingDays++
		day++
	}

	result := s.result()
	if err != nil {
		s.logger.Error().Err(err).Int("events", len(result.Events)).Msg("simulation aborted")
		return result, fmt.Errorf("%w: %v", errors.ErrSimulationFailed, err)
	}
	s.logger.Info().
		Int("events", len(result.Events)).
		Float64("net_pnl", result.Summary.NetPnL).
		Msg("simulation finished")
	return result, nil
}

// runDay processes every instant of one decision trading day.
func (s *Simulation) runDay(day calendar.Day, instants []calendar.TimeOfDay) error {
	for _, st := range s.states {
		st.ResetDailyFlags()
	}

	for i, minute := range instants {
		ts := calendar.NewTimestamp(day, minute)
		f := s.advance(ts)
		if i == 0 {
			s.dailyOpen = f
		}

		// Initial entry happens exactly once, at the entry instant of
		// the first decision day.
		if !s.entered && minute >= s.entryTime {
			for _, leg := range s.strategy.Legs {
				if err := s.openLeg(leg, ts, f); err != nil {
					return err
				}
			}
			s.entered = true
			continue
		}
		if !s.entered {
			continue
		}

		// Market open and close are sampling instants only; decisions
		// happen at the entry, roll and expiry instants.
		decision := minute == s.entryTime || minute == s.rollTime || minute == s.expiryTime
		if !decision {
			continue
		}

		evs, err := s.markAll(ts, f)
		if err != nil {
			return err
		}

		actions := triggers.Evaluate(s.states, s.strategy, evs)
		for _, a := range actions {
			if err := s.execute(a, ts, f); err != nil {
				return err
			}
		}
		if err := s.positionExit(ts, f, evs); err != nil {
			return err
		}

		// Expiration boundary: close what is still open at expiry.
		if minute >= s.expiryTime {
			for _, leg := range s.strategy.Legs {
				st := s.states[leg.ID]
				if st.Open && st.Contract.Expiration == day {
					intrinsic := st.Contract.Intrinsic(f)
					if err := s.closeLeg(st, ts, f, intrinsic, []models.Reason{models.ReasonExpiration}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// terminate closes every open leg on the trading day after the last
// decision day, at the expiry instant. A leg whose contract expires
// that day settles at intrinsic; everything else is closed at its
// current mark and explicitly flagged as a forced close.
func (s *Simulation) terminate(day calendar.Day, instants []calendar.TimeOfDay) error {
	if !s.liveLegs() {
		return nil
	}
	for _, st := range s.states {
		st.ResetDailyFlags()
	}

	for i, minute := range instants {
		if minute > s.expiryTime {
			break
		}
		ts := calendar.NewTimestamp(day, minute)
		f := s.advance(ts)
		if i == 0 {
			s.dailyOpen = f
		}
		if minute < s.expiryTime {
			continue
		}

		for _, leg := range s.strategy.Legs {
			st := s.states[leg.ID]
			if !st.Open {
				continue
			}
			if st.Contract.Expiration <= day {
				if err := s.closeLeg(st, ts, f, st.Contract.Intrinsic(f), []models.Reason{models.ReasonExpiration}); err != nil {
					return err
				}
				continue
			}
			mark, _, err := s.markLeg(st, ts, f)
			if err != nil {
				return err
			}
			if err := s.closeLeg(st, ts, f, mark, []models.Reason{models.ReasonForcedClose}); err != nil {
				return err
			}
		}
	}
	return nil
}

// markAll prices every live leg and builds its market event. When mark
// recording is on, a MarkToMarket event is appended per live leg.
func (s *Simulation) markAll(ts calendar.Timestamp, f float64) (map[string]triggers.MarketEvent, error) {
	evs := make(map[string]triggers.MarketEvent, len(s.strategy.Legs))
	for _, leg := range s.strategy.Legs {
		st := s.states[leg.ID]
		if !st.Open {
			continue
		}
		mark, greeks, err := s.markLeg(st, ts, f)
		if err != nil {
			return nil, err
		}
		if s.cfg.Simulation.RecordMarks {
			e := events.Event{
				Timestamp: ts,
				LegID:     leg.ID,
				Kind:      events.KindMarkToMarket,
				Price:     f,
				Contract:  st.Contract,
				Mark:      mark,
			}
			if err := s.append(e); err != nil {
				return nil, err
			}
		}
		evs[leg.ID] = triggers.MarketEvent{
			Timestamp:     ts,
			Price:         f,
			DailyOpen:     s.dailyOpen,
			EntryPrice:    s.entryPrice[leg.ID],
			LastRollPrice: s.lastRollPrice[leg.ID],
			DTE:           calendar.DTE(ts.Day, st.Contract.Expiration),
			Mark:          mark,
			Delta:         greeks.Delta,
			ExpiryTime:    s.expiryTime,
		}
	}
	return evs, nil
}

// execute applies one engine action: a roll becomes a LegRolled event,
// a rejection is recorded for audit.
func (s *Simulation) execute(a triggers.Action, ts calendar.Timestamp, f float64) error {
	leg, ok := s.strategy.Leg(a.LegID)
	if !ok {
		return errors.NewLifecycleError(a.LegID, 0, "action for unknown leg")
	}
	st := s.states[a.LegID]
	if !st.Open {
		return nil
	}

	switch a.Type {
	case triggers.ActionRoll:
		return s.rollLeg(leg, st, ts, f, a.Reasons)
	case triggers.ActionReject:
		s.logger.Debug().Str("leg", a.LegID).Strs("reasons", reasonStrings(a.Reasons)).Msg("roll rejected")
		return s.append(events.Event{
			Timestamp: ts,
			LegID:     a.LegID,
			Kind:      events.KindRollRejected,
			Price:     f,
			Contract:  st.Contract,
			Reasons:   a.Reasons,
		})
	default:
		return nil
	}
}

// positionExit evaluates the position-level profit target and stop on
// aggregate P&L, after all per-leg decisions. Firing closes every live
// leg at its current mark.
func (s *Simulation) positionExit(ts calendar.Timestamp, f float64, evs map[string]triggers.MarketEvent) error {
	if s.strategy.ProfitTarget == nil && s.strategy.StopLoss == nil {
		return nil
	}

	var aggregate, base float64
	any := false
	for _, leg := range s.strategy.Legs {
		st := s.states[leg.ID]
		if !st.Open {
			aggregate += st.RealizedPnL
			continue
		}
		ev, ok := evs[leg.ID]
		if !ok {
			continue
		}
		any = true
		if st.Contract.Side == models.Long {
			aggregate += st.RealizedPnL + (ev.Mark - st.EntryPremium)
			base += st.MaxDebit
		} else {
			aggregate += st.RealizedPnL + (st.EntryPremium - ev.Mark)
			base += st.MaxCredit
		}
	}
	if !any || base <= 0 {
		return nil
	}

	var reason models.Reason
	switch {
	case s.strategy.ProfitTarget != nil && aggregate >= *s.strategy.ProfitTarget*base:
		reason = models.ReasonPositionTarget
	case s.strategy.StopLoss != nil && aggregate <= -*s.strategy.StopLoss*base:
		reason = models.ReasonPositionStop
	default:
		return nil
	}

	for _, leg := range s.strategy.Legs {
		st := s.states[leg.ID]
		if !st.Open {
			continue
		}
		ev := evs[leg.ID]
		if err := s.closeLeg(st, ts, f, ev.Mark, []models.Reason{reason}); err != nil {
			return err
		}
	}
	return nil
}

// result folds the event log into the simulation result.
func (s *Simulation) result() *Result {
	log := s.store.All()
	return &Result{
		Seed:        s.cfg.Simulation.Seed,
		Fingerprint: s.cfg.Fingerprint(),
		Summary:     stats.Fold(log, s.cfg.Simulation.ContractMultiplier),
		Events:      log,
		FinalStates: s.states,
	}
}
