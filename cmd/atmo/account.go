package main

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/spf13/cobra"
)

var errProviderRequired = errors.New("--provider is required")

// accountFlags are shared by the account commands
type accountFlags struct {
	provider  string
	adminRole bool
	maxQuota  bool
}

func accountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Provision and remove provider accounts (staff only)",
	}

	f := &accountFlags{}
	cmd.PersistentFlags().StringVarP(&f.provider, "provider", "p", "", "provider id")

	create := &cobra.Command{
		Use:   "create <username>...",
		Short: "Queue account creation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, names []string) error {
			return a.createAccounts(f, cli.Args(names, a.in))
		},
	}
	create.Flags().BoolVar(&f.adminRole, "admin-role", false, "grant the admin role on the project")
	create.Flags().BoolVar(&f.maxQuota, "max-quota", false, "give the identity the maximum quota")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "delete <username>...",
			Short: "Queue account removal",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, names []string) error {
				return a.deleteAccounts(f, cli.Args(names, a.in))
			},
		},
	)
	return cmd
}

func (a *app) createAccounts(f *accountFlags, usernames []string) error {
	if f.provider == "" {
		return errProviderRequired
	}
	c := a.client()
	for _, username := range usernames {
		body := cli.JMap{
			"username":   username,
			"provider":   f.provider,
			"admin_role": f.adminRole,
			"max_quota":  f.maxQuota,
		}
		_, job, err := c.Post("account", "accounts", body, http.StatusAccepted)
		if err != nil {
			return err
		}
		a.printJob(job)
	}
	return nil
}

func (a *app) deleteAccounts(f *accountFlags, usernames []string) error {
	if f.provider == "" {
		return errProviderRequired
	}
	c := a.client()
	for _, username := range usernames {
		endpoint := "accounts/" + url.PathEscape(username) + "?provider=" + url.QueryEscape(f.provider)
		_, job, err := c.Del("account", endpoint, http.StatusAccepted)
		if err != nil {
			return err
		}
		a.printJob(job)
	}
	return nil
}
