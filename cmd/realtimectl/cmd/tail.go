package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hirestack/realtime/internal/dispatch"
	"github.com/hirestack/realtime/internal/pubsub"
)

var tailTypes []string

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print realtime frames as they arrive",
	Long: `tail connects the channel and prints every decoded frame to stdout as a
JSON line. Use --type to restrict output to specific message types.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		wanted := make(map[string]bool, len(tailTypes))
		for _, t := range tailTypes {
			wanted[t] = true
		}

		emit := func(topic string, payload []byte) {
			fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), topic, payload)
		}

		// Frames are consumed off the bus rather than via direct handlers
		// so tail observes exactly what downstream subscribers would.
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		for _, t := range allMessageTypes() {
			if len(wanted) > 0 && !wanted[string(t)] {
				continue
			}
			topic := dispatch.FrameTopic(t)
			err := client.Bus.Subscribe(ctx, topic, func(ctx context.Context, msg pubsub.Message) error {
				emit(msg.Topic, msg.Payload)
				return nil
			})
			if err != nil {
				return err
			}
		}

		if err := client.Start(ctx); err != nil {
			return err
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return client.Close(shutdownCtx)
	},
}

func allMessageTypes() []dispatch.MessageType {
	return []dispatch.MessageType{
		dispatch.TypeNewMessage,
		dispatch.TypeConversationUpdated,
		dispatch.TypeUserOnline,
		dispatch.TypeUserOffline,
		dispatch.TypeTyping,
		dispatch.TypeConnected,
		dispatch.TypePong,
		dispatch.TypeError,
		dispatch.TypeNotification,
	}
}

func init() {
	tailCmd.Flags().StringSliceVar(&tailTypes, "type", nil, "message types to include (default all)")
	rootCmd.AddCommand(tailCmd)
}
