package main

import (
	"fmt"
	"os"

	"oilsim/internal/cli"
	"oilsim/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
