package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		secret  string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the notification API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = opts.cfg.JWTSecret
			}
			if secret == "" {
				return errors.New("no secret: pass --secret or set JWT_SECRET")
			}
			token, err := middleware.IssueToken([]byte(secret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "syncctl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default from JWT_SECRET)")
	return cmd
}
