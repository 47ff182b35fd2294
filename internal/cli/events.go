package cli

import (
	"github.com/spf13/cobra"

	"oilsim/internal/events"
)

func newEventsCmd(app *App) *cobra.Command {
	var (
		runID string
		legID string
	)

	cmd := &cobra.Command{
		Use:   "events <db-path>",
		Short: "Inspect a persisted event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := events.NewSQLiteStore(args[0], runID)
			if err != nil {
				return err
			}
			defer store.Close()

			log := store.All()
			if legID != "" {
				log = store.Filter(func(e events.Event) bool { return e.LegID == legID })
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, log)
			}
			for _, e := range log {
				cmd.Println(e.String())
			}
			cmd.Printf("%d events\n", len(log))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run identifier to read")
	cmd.Flags().StringVar(&legID, "leg", "", "filter by leg ID")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
