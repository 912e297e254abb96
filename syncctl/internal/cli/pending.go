package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/eaglebank/usersync/shared/events"
	"github.com/spf13/cobra"
)

func newPendingCmd(opts *options) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show unacknowledged entries per partition stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if group == "" {
				group = opts.cfg.Consumer.Group
			}

			client := opts.redisClient()
			defer client.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STREAM\tGROUP\tPENDING\tOLDEST")
			for _, stream := range events.StreamsFor(opts.topic, opts.partitions, nil) {
				summary, err := client.XPending(cmd.Context(), stream, group).Result()
				if err != nil {
					if strings.Contains(err.Error(), "NOGROUP") {
						fmt.Fprintf(w, "%s\t%s\t-\t-\n", stream, group)
						continue
					}
					return fmt.Errorf("%w: pending on %s: %v", events.ErrTransport, stream, err)
				}
				oldest := summary.Lower
				if oldest == "" {
					oldest = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", stream, group, summary.Count, oldest)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "consumer group (default from CONSUMER_GROUP)")
	return cmd
}
