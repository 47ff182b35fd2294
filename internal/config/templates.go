package config

// Template is the annotated starter configuration written by
// `oilsim config init`.
const Template = `# oilsim simulation configuration

simulation:
  days: 30               # trading days to simulate (1-10000)
  initial_price: 75.0    # starting underlying price
  drift: 0.0             # annual drift (mu)
  volatility: 0.30       # annual realized volatility (sigma)
  volatility_risk_premium: 0.0  # implied = realized + VRP
  seed: 42               # PRNG seed; same seed -> same path
  risk_free_rate: 0.05
  contract_multiplier: 1000.0   # /CL point value per contract
  commission_per_contract: 0.0
  record_marks: false    # append MarkToMarket events at each decision instant
  model: gbm             # gbm or mean_reverting

strategy:
  strategy_type: straddle  # straddle, strangle, iron_condor, custom
  entry_dte: 1
  entry_time: "15:00"
  roll_time: "14:00"
  side: short              # short or long
  strike_selection: atm    # atm, otm_points, itm_points, percent, fixed, delta_target
  strike_offset: 0.0       # points, fraction or target delta per selection
  roll_mode: independent   # independent, synchronized, leader_follower
  min_roll_interval_minutes: 0
  max_rolls_per_day: 0     # 0 = unlimited
  roll_triggers:
    - type: time
      time: "14:00"
  # position_profit_target: 0.5
  # position_stop: 2.0

strike_config:
  tick_size: 0.25
  roll_type: recenter      # recenter or same_strikes

product:
  symbol: "/CL"
  tick_size: 0.01
  point_value: 1000.0
  trading_hours:
    open: "09:00"
    close: "17:00"
    option_expiry: "14:30"
`
