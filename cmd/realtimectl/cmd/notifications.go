package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hirestack/realtime/internal/config"
	"github.com/hirestack/realtime/internal/credentials"
	"github.com/hirestack/realtime/internal/notifications"
)

var notificationsPage int

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Query and update notifications over REST",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, cfg, err := newNotificationsAPI()
		if err != nil {
			return err
		}

		items, err := api.List(cmd.Context(), notificationsPage, cfg.NotificationPageSize)
		if err != nil {
			return err
		}

		for _, item := range items {
			marker := " "
			if !item.IsRead {
				marker = "*"
			}
			fmt.Printf("%s %6d  %s  %s\n", marker, item.ID, item.CreatedAt.Format("2006-01-02 15:04"), item.Title)
		}
		return nil
	},
}

var notificationsUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the unread notification count",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := newNotificationsAPI()
		if err != nil {
			return err
		}

		count, err := api.UnreadCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(count)
		return nil
	},
}

var notificationsMarkReadCmd = &cobra.Command{
	Use:   "mark-read <id>...",
	Short: "Mark the given notifications read",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid notification id %q: %w", arg, err)
			}
			ids = append(ids, id)
		}

		api, _, err := newNotificationsAPI()
		if err != nil {
			return err
		}
		return api.MarkRead(cmd.Context(), ids)
	},
}

var notificationsMarkAllReadCmd = &cobra.Command{
	Use:   "mark-all-read",
	Short: "Mark every notification read",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := newNotificationsAPI()
		if err != nil {
			return err
		}
		return api.MarkAllRead(cmd.Context())
	},
}

// newNotificationsAPI builds just the REST client; subcommands here never
// open the realtime channel.
func newNotificationsAPI() (*notifications.Client, *config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	var creds credentials.Source
	if cfg.TokenFile != "" {
		fs, err := credentials.NewFileSource(cfg.TokenFile)
		if err != nil {
			return nil, nil, err
		}
		creds = fs
	} else {
		creds = credentials.Static(cfg.Token)
	}

	return notifications.NewClient(cfg.APIURL, creds), cfg, nil
}

func init() {
	notificationsListCmd.Flags().IntVar(&notificationsPage, "page", 1, "page to fetch")
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsUnreadCmd)
	notificationsCmd.AddCommand(notificationsMarkReadCmd)
	notificationsCmd.AddCommand(notificationsMarkAllReadCmd)
	rootCmd.AddCommand(notificationsCmd)
}
