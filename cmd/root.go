package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// logLevel is the global log verbosity, applied before any subcommand runs.
var logLevel string

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "tsc-sim",
	Short: "Virtual machine time-stamp counter simulator",
	Long: `tsc-sim models how a hypervisor keeps a guest's time-stamp counter
ticking at its boot frequency while the guest runs on hosts with
different clock rates, using the fixed point scaling that AMD and
Intel hardware provides.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up global flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(calcCmd)
	rootCmd.AddCommand(simulateCmd)
}
