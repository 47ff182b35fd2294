package cli

import (
	"github.com/spf13/cobra"

	"oilsim/internal/config"
	"oilsim/internal/engine"
	"oilsim/internal/events"

	"oilsim/pkg/utils"
)

func newStudyCmd(app *App) *cobra.Command {
	var (
		runs          int
		workers       int
		varConfidence float64
		dbPath        string
	)

	cmd := &cobra.Command{
		Use:   "study <config-path>",
		Short: "Run a Monte Carlo study over seeds",
		Long: `Study runs the configured simulation across consecutive seeds on a
worker pool and reports distribution statistics of net P&L. Failed
seeds are recorded, not retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			result, err := engine.RunStudy(cmd.Context(), cfg, engine.StudyConfig{
				Runs:          runs,
				Workers:       workers,
				VaRConfidence: varConfidence,
			}, app.Logger)
			if err != nil {
				return err
			}

			if dbPath != "" {
				if err := persistStudy(dbPath, result); err != nil {
					return err
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, result.Aggregate)
			}
			printStudyReport(cmd, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 100, "number of simulations")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (0 = one per CPU)")
	cmd.Flags().Float64Var(&varConfidence, "var", 0.95, "VaR confidence level")
	cmd.Flags().StringVar(&dbPath, "db", "", "persist per-run results to this SQLite file")
	return cmd
}

// persistStudy writes one result row per run for later aggregation.
func persistStudy(dbPath string, result *engine.StudyResult) error {
	store, err := events.NewSQLiteStore(dbPath, result.Fingerprint)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, o := range result.Outcomes {
		rec := events.RunRecord{
			Seed:        o.Seed,
			Fingerprint: result.Fingerprint,
		}
		if o.Err != nil {
			rec.Failed = true
			rec.Error = o.Err.Error()
		} else {
			s := o.Result.Summary
			rec.NetPnL = s.NetPnL
			rec.Opens = s.Opens
			rec.Closes = s.Closes
			rec.Rolls = s.Rolls
			rec.Wins = s.Wins
			rec.MaxDrawdown = s.MaxDrawdown
		}
		if err := store.SaveRunRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

func printStudyReport(cmd *cobra.Command, result *engine.StudyResult) {
	a := result.Aggregate
	cmd.Printf("Study %s: %d runs, %d failures\n", result.Fingerprint, a.Runs, a.Failures)
	cmd.Println()
	cmd.Printf("  Mean P&L:   %s  (std err %s)\n", utils.FormatSigned(a.Mean), utils.FormatMoney(a.StdErr))
	cmd.Printf("  Std dev:    %s\n", utils.FormatMoney(a.StdDev))
	cmd.Printf("  Min/Max:    %s / %s\n", utils.FormatSigned(a.Min), utils.FormatSigned(a.Max))
	cmd.Printf("  Median:     %s\n", utils.FormatSigned(a.Median))
	cmd.Printf("  P5/P25:     %s / %s\n", utils.FormatSigned(a.P5), utils.FormatSigned(a.P25))
	cmd.Printf("  P75/P95:    %s / %s\n", utils.FormatSigned(a.P75), utils.FormatSigned(a.P95))
	cmd.Printf("  Sharpe:     %.2f\n", a.Sharpe)
	cmd.Printf("  VaR(%.0f%%):  %s\n", a.VaRConfidence*100, utils.FormatMoney(a.VaR))
}
