package main

import (
	"net/http"
	"sort"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/spf13/cobra"
)

func userCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users (staff only)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List users",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				users, err := a.client().GetMany("users", "users")
				if err != nil {
					return err
				}
				sort.Sort(users)
				for _, user := range users {
					a.print(user)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create <spec>...",
			Short: "Create users",
			Long:  `Create users from json specs such as {"username":"alice","is_staff":false,"ssh_keys":["ssh-rsa ..."]}`,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, specs []string) error {
				c := a.client()
				for _, spec := range cli.Args(specs, a.in) {
					body, err := cli.ParseSpec(spec)
					if err != nil {
						return err
					}
					user, _, err := c.Post("user", "users", body, http.StatusCreated)
					if err != nil {
						return err
					}
					a.print(user)
				}
				return nil
			},
		},
	)
	return cmd
}
