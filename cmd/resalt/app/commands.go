// Package app provides the entry point for the resalt command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/resalt-dev/resalt/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "resalt",
	DisableAutoGenTag: true,
	Short:             "resalt is a self-hosted control plane for a SaltStack master",
	Long: `resalt is a self-hosted control plane for a SaltStack master.

It pairs with the master's external authentication and event bus: operators
log in to resalt, resalt logs in to the master on their behalf, and the
master's event stream is captured into a queryable inventory of minions,
jobs, and events.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the resalt CLI.
func NewRootCmd() *cobra.Command {
	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
