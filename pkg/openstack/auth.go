// Package openstack implements the account managers on top of gophercloud:
// keystone v3 for users, projects and roles and neutron for networks and
// security groups.
package openstack

import (
	"context"
	"errors"
	"sync"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/tokens"
	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/accounts"
)

// Extra credential names understood by the managers
const (
	CredDomainName = "domain_name"
	CredMemberRole = "member_role"
	CredAdminRole  = "admin_role"
)

// Defaults applied when the credentials do not name them
const (
	DefaultDomainName = "Default"
	DefaultMemberRole = "member"
	DefaultAdminRole  = "admin"
)

func credOr(creds accounts.Credentials, key, def string) string {
	if v := creds[key]; v != "" {
		return v
	}
	return def
}

// authOptions converts OpenStack credentials to gophercloud options
func authOptions(creds accounts.Credentials) (gophercloud.AuthOptions, error) {
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: creds[atmosphere.CredAuthURL],
		Username:         creds[accounts.CredUsername],
		Password:         creds[accounts.CredPassword],
		TenantName:       credOr(creds, accounts.CredTenantName, creds[accounts.CredProjectName]),
		DomainName:       credOr(creds, CredDomainName, DefaultDomainName),
		AllowReauth:      true,
	}
	if opts.IdentityEndpoint == "" {
		return opts, errors.New("auth_url credential required")
	}
	if opts.Username == "" {
		return opts, errors.New("username credential required")
	}
	return opts, nil
}

// authenticate opens a provider client for creds
func authenticate(ctx context.Context, creds accounts.Credentials) (*gophercloud.ProviderClient, error) {
	opts, err := authOptions(creds)
	if err != nil {
		return nil, err
	}
	pc, err := openstack.NewClient(opts.IdentityEndpoint)
	if err != nil {
		return nil, err
	}
	pc.Context = ctx
	if err := openstack.Authenticate(pc, opts); err != nil {
		return nil, mapError(err)
	}
	return pc, nil
}

// scopedProjectID returns the project the provider client's token is scoped to
func scopedProjectID(pc *gophercloud.ProviderClient) (string, error) {
	result, ok := pc.GetAuthResult().(tokens.CreateResult)
	if !ok {
		return "", errors.New("unexpected auth result")
	}
	project, err := result.ExtractProject()
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", errors.New("token is not project scoped")
	}
	return project.ID, nil
}

func endpointOpts(creds accounts.Credentials) gophercloud.EndpointOpts {
	return gophercloud.EndpointOpts{Region: creds[atmosphere.CredRegionName]}
}

// adminSession lazily authenticates with the manager's own credentials and
// keeps the clients built from it
type adminSession struct {
	mu       sync.Mutex
	creds    accounts.Credentials
	provider *gophercloud.ProviderClient
	identity *gophercloud.ServiceClient
	network  *gophercloud.ServiceClient
}

// providerClient authenticates on first use. a.mu must be held.
func (a *adminSession) providerClient(ctx context.Context) (*gophercloud.ProviderClient, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	pc, err := authenticate(ctx, a.creds)
	if err != nil {
		return nil, err
	}
	// the session outlives the request that opened it
	pc.Context = nil
	a.provider = pc
	return pc, nil
}

func (a *adminSession) identityClient(ctx context.Context) (*gophercloud.ServiceClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.identity != nil {
		return a.identity, nil
	}
	pc, err := a.providerClient(ctx)
	if err != nil {
		return nil, err
	}
	client, err := openstack.NewIdentityV3(pc, endpointOpts(a.creds))
	if err != nil {
		return nil, err
	}
	a.identity = client
	return client, nil
}

func (a *adminSession) networkClient(ctx context.Context) (*gophercloud.ServiceClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.network != nil {
		return a.network, nil
	}
	pc, err := a.providerClient(ctx)
	if err != nil {
		return nil, err
	}
	client, err := openstack.NewNetworkV2(pc, endpointOpts(a.creds))
	if err != nil {
		return nil, err
	}
	a.network = client
	return client, nil
}

// Factory builds gophercloud backed managers. It satisfies
// accounts.ManagerFactory.
type Factory struct{}

// UserManager builds a keystone backed user manager
func (Factory) UserManager(creds accounts.Credentials) (accounts.UserManager, error) {
	return NewUserManager(creds), nil
}

// ImageManager builds an image manager
func (Factory) ImageManager(creds accounts.Credentials) (accounts.ImageManager, error) {
	return NewImageManager(creds), nil
}

// NetworkManager builds a neutron backed network manager
func (Factory) NetworkManager(creds accounts.Credentials) (accounts.NetworkManager, error) {
	return NewNetworkManager(creds), nil
}
