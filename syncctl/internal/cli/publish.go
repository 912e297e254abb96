package cli

import (
	"fmt"

	"github.com/eaglebank/usersync/shared/events"
	"github.com/spf13/cobra"
)

func newPublishCmd(opts *options) *cobra.Command {
	var (
		eventType string
		userID    int64
		email     string
		name      string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a user lifecycle event",
		Long:  "Publish a USER_CREATED or USER_DELETED event to the topic, keyed by user id, exactly as user-service would.",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := events.ParseEventType(eventType)
			if !ok {
				return fmt.Errorf("unknown event type %q (valid: %s, %s)", eventType, events.UserCreated, events.UserDeleted)
			}
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}

			event := events.NewUserLifecycleEvent(t, userID, email, name)
			payload, err := events.Encode(event)
			if err != nil {
				return err
			}

			client := opts.redisClient()
			defer client.Close()

			pub := events.NewPublisher(client, events.PublisherConfig{Topic: opts.topic, Partitions: opts.partitions})
			if err := pub.Publish(cmd.Context(), event.Key(), t, payload); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %s for user %d to %s\n",
				t, userID, events.StreamFor(opts.topic, event.Key(), opts.partitions))
			return nil
		},
	}

	cmd.Flags().StringVar(&eventType, "type", string(events.UserCreated), "event type")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id (partition key)")
	cmd.Flags().StringVar(&email, "email", "", "recipient email")
	cmd.Flags().StringVar(&name, "name", "", "user name")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
