package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"oilsim/internal/config"
	"oilsim/internal/engine"
	"oilsim/internal/events"

	"oilsim/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		dbPath     string
		runID      string
		showEvents bool
	)

	cmd := &cobra.Command{
		Use:   "run <config-path>",
		Short: "Run a single simulation",
		Long: `Run executes one simulation from a YAML configuration and prints the
accounting summary. With --db the event log is persisted to SQLite for
later inspection with 'oilsim events'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			opts := engine.Options{}
			if dbPath != "" {
				if runID == "" {
					runID = fmt.Sprintf("%s-%d", cfg.Fingerprint(), cfg.Simulation.Seed)
				}
				store, err := events.NewSQLiteStore(dbPath, runID)
				if err != nil {
					return err
				}
				defer store.Close()
				opts.Store = store
			}

			sim, err := engine.NewSimulation(cfg, app.Logger, opts)
			if err != nil {
				return err
			}
			result, err := sim.Run(cmd.Context())
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, result)
			}
			printRunReport(cmd, cfg, result, showEvents)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "persist the event log to this SQLite file")
	cmd.Flags().StringVar(&runID, "run", "", "run identifier used with --db (default: fingerprint-seed)")
	cmd.Flags().BoolVar(&showEvents, "events", false, "print every event")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func printRunReport(cmd *cobra.Command, cfg *config.Config, result *engine.Result, showEvents bool) {
	s := result.Summary
	cmd.Printf("Simulation %s seed=%d\n", result.Fingerprint, result.Seed)
	cmd.Printf("  %s %s, %d trading days, S0=%.2f vol=%.0f%% VRP=%.1f%%\n",
		cfg.Strategy.Side, cfg.Strategy.StrategyType, cfg.Simulation.Days,
		cfg.Simulation.InitialPrice, cfg.Simulation.Volatility*100,
		cfg.Simulation.VolatilityRiskPremium*100)
	cmd.Println()
	cmd.Printf("  Net P&L:      %s\n", utils.FormatSigned(s.NetPnL))
	cmd.Printf("  Realized:     %s\n", utils.FormatSigned(s.RealizedPnL))
	cmd.Printf("  Commissions:  %s\n", utils.FormatMoney(s.Commissions))
	cmd.Printf("  Credits:      %s  Debits: %s\n", utils.FormatMoney(s.Credits), utils.FormatMoney(s.Debits))
	cmd.Printf("  Opens: %d  Rolls: %d  Closes: %d  Rejected: %d\n", s.Opens, s.Rolls, s.Closes, s.Rejects)
	cmd.Printf("  Wins: %d  Losses: %d\n", s.Wins, s.Losses)
	cmd.Printf("  Max drawdown: %s\n", utils.FormatMoney(s.MaxDrawdown))

	if showEvents {
		cmd.Println()
		for _, e := range result.Events {
			cmd.Printf("  %s\n", e)
		}
	}
}
