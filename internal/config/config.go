// Package config provides configuration loading and boundary validation
// for the simulation engine. Invalid configurations are rejected before
// the kernel starts; nothing is silently coerced.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"oilsim/internal/calendar"
	"oilsim/internal/errors"
	"oilsim/internal/models"
)

// Config holds all simulation configuration.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Strike     StrikeSettings   `mapstructure:"strike_config"`
	Product    ProductConfig    `mapstructure:"product"`
}

// SimulationConfig holds price-path and accounting parameters.
type SimulationConfig struct {
	Days                  uint32  `mapstructure:"days"`
	InitialPrice          float64 `mapstructure:"initial_price"`
	Drift                 float64 `mapstructure:"drift"`
	Volatility            float64 `mapstructure:"volatility"`
	Seed                  uint64  `mapstructure:"seed"`
	RiskFreeRate          float64 `mapstructure:"risk_free_rate"`
	VolatilityRiskPremium float64 `mapstructure:"volatility_risk_premium"`
	ContractMultiplier    float64 `mapstructure:"contract_multiplier"`
	CommissionPerContract float64 `mapstructure:"commission_per_contract"`
	RecordMarks           bool    `mapstructure:"record_marks"`

	// Price model: "gbm" (default) or "mean_reverting".
	Model     string  `mapstructure:"model"`
	MeanLevel float64 `mapstructure:"mean_level"`
	Reversion float64 `mapstructure:"reversion"`
}

// ImpliedVolatility returns realized volatility plus the volatility risk
// premium; the pricer consumes this, the price generator the realized.
func (s SimulationConfig) ImpliedVolatility() float64 {
	return s.Volatility + s.VolatilityRiskPremium
}

// TriggerConfig is one roll trigger declaration, evaluated in file order.
type TriggerConfig struct {
	Type      string  `mapstructure:"type"`
	Value     float64 `mapstructure:"value"`
	Time      string  `mapstructure:"time"`
	Reference string  `mapstructure:"reference"`
}

// LegSpec declares one leg of a custom strategy.
type LegSpec struct {
	ID              string  `mapstructure:"id"`
	Type            string  `mapstructure:"type"` // put, call
	Side            string  `mapstructure:"side"` // short, long
	StrikeSelection string  `mapstructure:"strike_selection"`
	StrikeOffset    float64 `mapstructure:"strike_offset"`
}

// StrategyConfig holds the strategy declaration.
type StrategyConfig struct {
	StrategyType         string          `mapstructure:"strategy_type"`
	EntryDTE             uint32          `mapstructure:"entry_dte"`
	EntryTime            string          `mapstructure:"entry_time"`
	RollTime             string          `mapstructure:"roll_time"`
	Side                 string          `mapstructure:"side"`
	StrikeSelection      string          `mapstructure:"strike_selection"`
	StrikeOffset         float64         `mapstructure:"strike_offset"`
	RollDTE              uint32          `mapstructure:"roll_dte"`
	RollTriggers         []TriggerConfig `mapstructure:"roll_triggers"`
	PositionProfitTarget *float64        `mapstructure:"position_profit_target"`
	PositionStop         *float64        `mapstructure:"position_stop"`
	MinRollIntervalMin   uint32          `mapstructure:"min_roll_interval_minutes"`
	MaxRollsPerDay       int             `mapstructure:"max_rolls_per_day"`
	RollMode             string          `mapstructure:"roll_mode"` // independent, synchronized, leader_follower
	Leader               string          `mapstructure:"leader"`
	Legs                 []LegSpec       `mapstructure:"legs"` // custom strategies only
}

// StrikeSettings holds strike grid and roll-strike behavior.
type StrikeSettings struct {
	TickSize float64 `mapstructure:"tick_size"`
	RollType string  `mapstructure:"roll_type"` // recenter, same_strikes
}

// TradingHoursConfig holds the product's wall-clock schedule.
type TradingHoursConfig struct {
	Open         string `mapstructure:"open"`
	Close        string `mapstructure:"close"`
	OptionExpiry string `mapstructure:"option_expiry"`
}

// ProductConfig holds product-specific settings.
type ProductConfig struct {
	Symbol       string             `mapstructure:"symbol"`
	TickSize     float64            `mapstructure:"tick_size"`
	PointValue   float64            `mapstructure:"point_value"`
	TradingHours TradingHoursConfig `mapstructure:"trading_hours"`
}

// setDefaults registers the /CL defaults on a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.drift", 0.0)
	v.SetDefault("simulation.risk_free_rate", 0.05)
	v.SetDefault("simulation.volatility_risk_premium", 0.0)
	v.SetDefault("simulation.contract_multiplier", 1000.0)
	v.SetDefault("simulation.commission_per_contract", 0.0)
	v.SetDefault("simulation.record_marks", false)
	v.SetDefault("simulation.model", "gbm")

	v.SetDefault("strategy.strategy_type", "straddle")
	v.SetDefault("strategy.entry_time", "15:00")
	v.SetDefault("strategy.roll_time", "14:00")
	v.SetDefault("strategy.side", "short")
	v.SetDefault("strategy.strike_selection", "atm")
	v.SetDefault("strategy.roll_mode", "independent")
	v.SetDefault("strategy.max_rolls_per_day", 0)

	v.SetDefault("strike_config.tick_size", 0.25)
	v.SetDefault("strike_config.roll_type", "recenter")

	v.SetDefault("product.symbol", "/CL")
	v.SetDefault("product.tick_size", 0.01)
	v.SetDefault("product.point_value", 1000.0)
	v.SetDefault("product.trading_hours.open", "09:00")
	v.SetDefault("product.trading_hours.close", "17:00")
	v.SetDefault("product.trading_hours.option_expiry", "14:30")
}

// Load reads a YAML configuration file, applies defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a 30-day 1DTE short ATM straddle configuration with a
// 14:00 time roll, built from the registered defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Simulation.Days = 30
	cfg.Simulation.InitialPrice = 75.0
	cfg.Simulation.Volatility = 0.30
	cfg.Simulation.Seed = 42
	cfg.Strategy.EntryDTE = 1
	cfg.Strategy.RollTriggers = []TriggerConfig{{Type: "time", Time: "14:00"}}
	return cfg
}

// Fingerprint returns a short stable hash of the configuration, used to
// group Monte Carlo results by parameter tuple.
func (c *Config) Fingerprint() string {
	data, err := json.Marshal(c)
	if err != nil {
		return "unknown"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

// Validate rejects invalid configurations at the boundary.
func (c *Config) Validate() error {
	s := c.Simulation
	if s.Days < 1 || s.Days > 10000 {
		return errors.NewValidationError("simulation.days", s.Days, "must be between 1 and 10000")
	}
	if s.InitialPrice <= 0 {
		return errors.NewValidationError("simulation.initial_price", s.InitialPrice, "must be positive")
	}
	if s.Volatility <= 0 {
		return errors.NewValidationError("simulation.volatility", s.Volatility, "must be positive")
	}
	if s.VolatilityRiskPremium < 0 {
		return errors.NewValidationError("simulation.volatility_risk_premium", s.VolatilityRiskPremium, "must be non-negative")
	}
	if s.ContractMultiplier <= 0 {
		return errors.NewValidationError("simulation.contract_multiplier", s.ContractMultiplier, "must be positive")
	}
	switch s.Model {
	case "", "gbm":
	case "mean_reverting":
		if s.MeanLevel <= 0 {
			return errors.NewValidationError("simulation.mean_level", s.MeanLevel, "must be positive for mean_reverting")
		}
		if s.Reversion <= 0 {
			return errors.NewValidationError("simulation.reversion", s.Reversion, "must be positive for mean_reverting")
		}
	default:
		return errors.NewValidationError("simulation.model", s.Model, "unknown price model")
	}

	st := c.Strategy
	if st.EntryDTE > 365 {
		return errors.NewValidationError("strategy.entry_dte", st.EntryDTE, "must not exceed 365")
	}
	if _, err := calendar.ParseTimeOfDay(st.EntryTime); err != nil {
		return errors.NewValidationError("strategy.entry_time", st.EntryTime, err.Error())
	}
	if _, err := calendar.ParseTimeOfDay(st.RollTime); err != nil {
		return errors.NewValidationError("strategy.roll_time", st.RollTime, err.Error())
	}
	if st.Side != "short" && st.Side != "long" {
		return errors.NewValidationError("strategy.side", st.Side, "must be short or long")
	}
	switch st.StrategyType {
	case "straddle", "strangle", "iron_condor", "custom":
	default:
		return errors.NewValidationError("strategy.strategy_type", st.StrategyType, "must be straddle, strangle, iron_condor or custom")
	}
	if st.StrategyType == "custom" && len(st.Legs) == 0 {
		return errors.NewValidationError("strategy.legs", nil, "custom strategy requires at least one leg")
	}
	seen := make(map[string]bool)
	for _, leg := range st.Legs {
		if leg.ID == "" {
			return errors.NewValidationError("strategy.legs.id", leg.ID, "leg ID must not be empty")
		}
		if seen[leg.ID] {
			return errors.NewValidationError("strategy.legs.id", leg.ID, "duplicate leg ID")
		}
		seen[leg.ID] = true
	}

	var profitTarget, stopLoss *float64
	for i, t := range st.RollTriggers {
		field := fmt.Sprintf("strategy.roll_triggers[%d]", i)
		switch t.Type {
		case "time":
			if _, err := calendar.ParseTimeOfDay(t.Time); err != nil {
				return errors.NewValidationError(field+".time", t.Time, err.Error())
			}
		case "dte":
			if uint32(t.Value) >= st.EntryDTE && st.EntryDTE > 0 {
				return errors.NewValidationError(field+".value", t.Value, "roll DTE must be before entry DTE")
			}
		case "profit_target":
			v := t.Value
			profitTarget = &v
		case "stop_loss":
			v := t.Value
			stopLoss = &v
		case "price_move":
			switch t.Reference {
			case "", "entry", "last_roll", "daily_open":
			default:
				return errors.NewValidationError(field+".reference", t.Reference, "must be entry, last_roll or daily_open")
			}
		case "delta", "expiration", "manual":
		default:
			return errors.NewValidationError(field+".type", t.Type, "unknown trigger type")
		}
	}
	if profitTarget != nil && stopLoss != nil && *stopLoss < *profitTarget {
		return errors.NewValidationError("strategy.roll_triggers", *stopLoss, "stop loss tighter than profit target")
	}
	if st.PositionProfitTarget != nil && st.PositionStop != nil && *st.PositionStop < *st.PositionProfitTarget {
		return errors.NewValidationError("strategy.position_stop", *st.PositionStop, "stop loss tighter than profit target")
	}
	switch st.RollMode {
	case "", "independent", "synchronized":
	case "leader_follower":
		if st.Leader == "" {
			return errors.NewValidationError("strategy.leader", st.Leader, "leader_follower requires a leader leg ID")
		}
	default:
		return errors.NewValidationError("strategy.roll_mode", st.RollMode, "must be independent, synchronized or leader_follower")
	}

	if c.Strike.TickSize <= 0 {
		return errors.NewValidationError("strike_config.tick_size", c.Strike.TickSize, "must be positive")
	}
	switch c.Strike.RollType {
	case "recenter", "same_strikes":
	default:
		return errors.NewValidationError("strike_config.roll_type", c.Strike.RollType, "must be recenter or same_strikes")
	}

	if c.Product.TickSize <= 0 {
		return errors.NewValidationError("product.tick_size", c.Product.TickSize, "must be positive")
	}
	for field, value := range map[string]string{
		"product.trading_hours.open":          c.Product.TradingHours.Open,
		"product.trading_hours.close":         c.Product.TradingHours.Close,
		"product.trading_hours.option_expiry": c.Product.TradingHours.OptionExpiry,
	} {
		if _, err := calendar.ParseTimeOfDay(value); err != nil {
			return errors.NewValidationError(field, value, err.Error())
		}
	}
	return nil
}

func parseSide(s string) models.Side {
	if strings.EqualFold(s, "long") {
		return models.Long
	}
	return models.Short
}

func parseStrikeRule(selection string, offset float64) (models.StrikeRule, error) {
	switch strings.ToLower(selection) {
	case "", "atm":
		return models.StrikeRule{Kind: models.StrikeATM}, nil
	case "otm", "otm_points":
		return models.StrikeRule{Kind: models.StrikeOTMPoints, Value: offset}, nil
	case "itm", "itm_points":
		return models.StrikeRule{Kind: models.StrikeITMPoints, Value: offset}, nil
	case "percent":
		return models.StrikeRule{Kind: models.StrikePercent, Value: offset}, nil
	case "fixed":
		return models.StrikeRule{Kind: models.StrikeFixed, Value: offset}, nil
	case "delta", "delta_target":
		return models.StrikeRule{Kind: models.StrikeDeltaTarget, Value: offset}, nil
	default:
		return models.StrikeRule{}, errors.NewValidationError("strike_selection", selection, "unknown strike selection")
	}
}

func parseOptionType(s string) (models.OptionType, error) {
	switch strings.ToLower(s) {
	case "put":
		return models.Put, nil
	case "call":
		return models.Call, nil
	default:
		return 0, errors.NewValidationError("type", s, "must be put or call")
	}
}

// parseTriggers converts trigger declarations preserving file order.
func (c *Config) parseTriggers() ([]models.Trigger, error) {
	out := make([]models.Trigger, 0, len(c.Strategy.RollTriggers))
	for i, t := range c.Strategy.RollTriggers {
		field := fmt.Sprintf("strategy.roll_triggers[%d]", i)
		switch t.Type {
		case "dte":
			out = append(out, models.Trigger{Kind: models.TriggerDteThreshold, DTE: uint32(t.Value)})
		case "time":
			tod, err := calendar.ParseTimeOfDay(t.Time)
			if err != nil {
				return nil, errors.NewValidationError(field+".time", t.Time, err.Error())
			}
			out = append(out, models.Trigger{Kind: models.TriggerTimeOfDay, Time: tod})
		case "profit_target":
			out = append(out, models.Trigger{Kind: models.TriggerProfitTarget, Fraction: t.Value})
		case "stop_loss":
			out = append(out, models.Trigger{Kind: models.TriggerStopLoss, Fraction: t.Value})
		case "price_move":
			ref := models.RefEntry
			switch t.Reference {
			case "last_roll":
				ref = models.RefLastRoll
			case "daily_open":
				ref = models.RefDailyOpen
			}
			out = append(out, models.Trigger{Kind: models.TriggerPriceMove, Points: t.Value, Reference: ref})
		case "delta":
			out = append(out, models.Trigger{Kind: models.TriggerDeltaThreshold, Delta: t.Value})
		case "expiration":
			out = append(out, models.Trigger{Kind: models.TriggerExpiration})
		case "manual":
			out = append(out, models.Trigger{Kind: models.TriggerManual})
		default:
			return nil, errors.NewValidationError(field+".type", t.Type, "unknown trigger type")
		}
	}
	return out, nil
}

// BuildStrategy expands the declared strategy type into concrete leg
// configurations.
func (c *Config) BuildStrategy() (*models.Strategy, error) {
	triggers, err := c.parseTriggers()
	if err != nil {
		return nil, err
	}

	st := c.Strategy
	side := parseSide(st.Side)
	rollDTE := st.RollDTE
	if rollDTE == 0 {
		rollDTE = st.EntryDTE
	}
	rollStrikeMode := models.Recenter
	if c.Strike.RollType == "same_strikes" {
		rollStrikeMode = models.SameStrikes
	}

	makeLeg := func(id string, typ models.OptionType, legSide models.Side, rule models.StrikeRule) models.LegConfig {
		return models.LegConfig{
			ID:              id,
			Type:            typ,
			Side:            legSide,
			EntryDTE:        st.EntryDTE,
			EntryStrike:     rule,
			RollTriggers:    triggers,
			RollStrikeMode:  rollStrikeMode,
			RollDTE:         rollDTE,
			RollStrike:      rule,
			MinRollInterval: time.Duration(st.MinRollIntervalMin) * time.Minute,
			MaxRollsPerDay:  st.MaxRollsPerDay,
		}
	}

	strategy := &models.Strategy{
		Name:         st.StrategyType,
		ProfitTarget: st.PositionProfitTarget,
		StopLoss:     st.PositionStop,
		Leader:       st.Leader,
	}
	switch st.RollMode {
	case "synchronized":
		strategy.GroupMode = models.Synchronized
	case "leader_follower":
		strategy.GroupMode = models.LeaderFollower
	default:
		strategy.GroupMode = models.Independent
	}

	switch st.StrategyType {
	case "straddle":
		rule, err := parseStrikeRule(st.StrikeSelection, st.StrikeOffset)
		if err != nil {
			return nil, err
		}
		strategy.Legs = []models.LegConfig{
			makeLeg("put", models.Put, side, rule),
			makeLeg("call", models.Call, side, rule),
		}

	case "strangle":
		rule := models.StrikeRule{Kind: models.StrikeOTMPoints, Value: st.StrikeOffset}
		strategy.Legs = []models.LegConfig{
			makeLeg("put", models.Put, side, rule),
			makeLeg("call", models.Call, side, rule),
		}

	case "iron_condor":
		// Body at the configured offset, wings one more offset out on
		// the opposite side.
		body := models.StrikeRule{Kind: models.StrikeOTMPoints, Value: st.StrikeOffset}
		wing := models.StrikeRule{Kind: models.StrikeOTMPoints, Value: st.StrikeOffset * 2}
		wingSide := models.Long
		if side == models.Long {
			wingSide = models.Short
		}
		strategy.Legs = []models.LegConfig{
			makeLeg("put", models.Put, side, body),
			makeLeg("call", models.Call, side, body),
			makeLeg("put_wing", models.Put, wingSide, wing),
			makeLeg("call_wing", models.Call, wingSide, wing),
		}

	case "custom":
		for _, spec := range st.Legs {
			typ, err := parseOptionType(spec.Type)
			if err != nil {
				return nil, err
			}
			rule, err := parseStrikeRule(spec.StrikeSelection, spec.StrikeOffset)
			if err != nil {
				return nil, err
			}
			legSide := side
			if spec.Side != "" {
				legSide = parseSide(spec.Side)
			}
			strategy.Legs = append(strategy.Legs, makeLeg(spec.ID, typ, legSide, rule))
		}

	default:
		return nil, errors.ErrUnknownStrategy
	}

	if strategy.GroupMode == models.LeaderFollower {
		if _, ok := strategy.Leg(strategy.Leader); !ok {
			return nil, errors.NewValidationError("strategy.leader", strategy.Leader, "leader is not a configured leg")
		}
	}
	return strategy, nil
}
