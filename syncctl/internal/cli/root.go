package cli

import (
	"github.com/eaglebank/usersync/shared/config"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// options holds the connection settings shared by every subcommand.
type options struct {
	cfg        config.Config
	redisAddr  string
	topic      string
	partitions int
}

func (o *options) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     o.redisAddr,
		Password: o.cfg.RedisPassword,
		DB:       o.cfg.RedisDB,
	})
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the user event stream",
		Long:          "syncctl injects user lifecycle events, inspects consumer backlog and mints tokens for the notification API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("syncctl")
			if err != nil {
				return err
			}
			opts.cfg = cfg
			flags := cmd.Flags()
			if !flags.Changed("redis-addr") {
				opts.redisAddr = cfg.RedisAddr
			}
			if !flags.Changed("topic") {
				opts.topic = cfg.Events.Topic
			}
			if !flags.Changed("partitions") {
				opts.partitions = cfg.Events.Partitions
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address (default from REDIS_ADDR)")
	pf.StringVar(&opts.topic, "topic", "", "event topic (default from EVENTS_TOPIC)")
	pf.IntVar(&opts.partitions, "partitions", 0, "partition count of the topic (default from EVENTS_PARTITIONS)")

	cmd.AddCommand(newPublishCmd(opts))
	cmd.AddCommand(newPendingCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
