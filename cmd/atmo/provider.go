package main

import (
	"net/http"
	"sort"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/spf13/cobra"
)

func providerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage cloud providers",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List providers",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				providers, err := a.client().GetMany("providers", "providers")
				if err != nil {
					return err
				}
				sort.Sort(providers)
				for _, provider := range providers {
					a.print(provider)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create <spec>...",
			Short: "Create providers (staff only)",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, specs []string) error {
				c := a.client()
				for _, spec := range cli.Args(specs, a.in) {
					body, err := cli.ParseSpec(spec)
					if err != nil {
						return err
					}
					provider, _, err := c.Post("provider", "providers", body, http.StatusCreated)
					if err != nil {
						return err
					}
					a.print(provider)
				}
				return nil
			},
		},
	)
	return cmd
}
