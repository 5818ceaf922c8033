package main

import (
	"net/http"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/spf13/cobra"
)

func identityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage provider identities (staff only)",
	}

	var admin bool
	create := &cobra.Command{
		Use:   "create <spec>...",
		Short: "Create identities",
		Long:  `Create identities from json specs such as {"username":"alice","provider":"<id>","credentials":{"key":"alice","secret":"..."}}`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, specs []string) error {
			endpoint := "identities"
			if admin {
				endpoint += "?admin=true"
			}
			c := a.client()
			for _, spec := range cli.Args(specs, a.in) {
				body, err := cli.ParseSpec(spec)
				if err != nil {
					return err
				}
				identity, _, err := c.Post("identity", endpoint, body, http.StatusCreated)
				if err != nil {
					return err
				}
				a.print(identity)
			}
			return nil
		},
	}
	create.Flags().BoolVar(&admin, "admin", false, "make the identity its provider's admin identity")

	cmd.AddCommand(create)
	return cmd
}
