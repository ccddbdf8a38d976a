package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hirestack/realtime/internal/app"
	"github.com/hirestack/realtime/internal/config"
	"github.com/hirestack/realtime/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "realtimectl",
	Short: "Realtime client for the HireStack platform",
	Long: `realtimectl connects to the HireStack realtime channel and exposes the
client synchronization layer from the terminal.

Available commands:
  serve          Run the full client with the local status endpoint
  tail           Print realtime frames as they arrive
  send           Send one JSON frame over the channel
  notifications  Query and update notifications over REST

Use "realtimectl [command] --help" for more information about a specific command.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.New()
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient loads configuration and wires a full client.
func newClient() (*app.Client, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}
