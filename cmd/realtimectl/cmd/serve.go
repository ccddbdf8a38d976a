package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the realtime client until interrupted",
	Long: `serve connects the realtime channel, warms the notification cache, and
keeps the local status endpoint available until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := client.Start(ctx); err != nil {
			return err
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return client.Close(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
