// Package cli provides the command-line interface for the simulation
// engine.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"oilsim/internal/logging"
)

// Version information
const (
	Version = "0.2.0"
)

// App holds the application dependencies.
type App struct {
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "oilsim",
		Short: "Options backtesting and Monte Carlo engine for oil futures",
		Long: `oilsim is an event-sourced backtesting engine for options strategies
on /CL oil futures. It simulates synthetic price paths, prices legs with
Black-76, rolls positions on configurable triggers and aggregates
Monte Carlo studies over seeds.

Use 'oilsim config init' to write a starter configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newStudyCmd(app))
	rootCmd.AddCommand(newEventsCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("oilsim %s\n", Version)
		},
	}
}
