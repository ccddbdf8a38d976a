package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hirestack/realtime/internal/channel"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <json>",
	Short: "Send one JSON frame over the realtime channel",
	Long: `send connects the channel, waits for it to open, writes the given JSON
document as a single text frame, and disconnects.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var frame json.RawMessage
		if err := json.Unmarshal([]byte(args[0]), &frame); err != nil {
			return fmt.Errorf("argument is not valid JSON: %w", err)
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		client.Channel.Connect()
		defer client.Channel.Disconnect()

		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()
		if err := waitForOpen(ctx, client.Channel); err != nil {
			return err
		}

		return client.Channel.Send(frame)
	},
}

func waitForOpen(ctx context.Context, ch *channel.Channel) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if ch.State() == channel.StateOpen {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("channel did not open: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func init() {
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 15*time.Second, "how long to wait for the channel to open")
	rootCmd.AddCommand(sendCmd)
}
