package main

import (
	"net/http"
	"time"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/spf13/cobra"
)

func tokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage api tokens (staff only)",
	}

	var ttl time.Duration
	create := &cobra.Command{
		Use:   "create <username>...",
		Short: "Issue api tokens for users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, users []string) error {
			c := a.client()
			for _, user := range cli.Args(users, a.in) {
				body := cli.JMap{"user": user}
				if ttl > 0 {
					body["ttl"] = ttl.String()
				}
				token, _, err := c.Post("token", "tokens", body, http.StatusCreated)
				if err != nil {
					return err
				}
				a.print(token)
			}
			return nil
		},
	}
	create.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, zero never expires")

	cmd.AddCommand(create)
	return cmd
}
