// Package accounts provisions user accounts on an OpenStack provider: the
// keystone user and project, project membership, security group and project
// network, and the atmosphere Identity holding the resulting credentials.
package accounts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/hashicorp/go-multierror"
	"github.com/mistifyio/atmosphere"
	log "github.com/sirupsen/logrus"
)

// RateLimitPause is how long CreateAccount waits after being rate limited
var RateLimitPause = 60 * time.Second

// AccountDriver sequences the manager calls needed to maintain accounts on
// a single provider
type AccountDriver struct {
	context        *atmosphere.Context
	provider       *atmosphere.Provider
	providerCreds  Credentials
	userCreds      Credentials
	imageCreds     Credentials
	networkCreds   Credentials
	UserManager    UserManager
	ImageManager   ImageManager
	NetworkManager NetworkManager
	// CIDR assigns project networks. Defaults to DefaultCIDR.
	CIDR CIDRFunc
	// RateLimitPause defaults to the package RateLimitPause
	RateLimitPause time.Duration
}

// NewAccountDriver builds the managers for provider. The admin identity's
// credentials are merged under the provider credentials.
func NewAccountDriver(c *atmosphere.Context, provider *atmosphere.Provider, factory ManagerFactory) (*AccountDriver, error) {
	admin, err := provider.AdminIdentity()
	if err != nil {
		return nil, err
	}

	providerCreds := Credentials(provider.GetCredentials())
	all := merge(LibcloudToOpenStack(admin.GetCredentials()), providerCreds)

	d := &AccountDriver{
		context:        c,
		provider:       provider,
		providerCreds:  providerCreds,
		userCreds:      buildUserCreds(all),
		imageCreds:     buildImageCreds(all),
		CIDR:           DefaultCIDR,
		RateLimitPause: RateLimitPause,
	}
	if d.networkCreds, err = buildNetworkCreds(all); err != nil {
		return nil, err
	}

	if d.UserManager, err = factory.UserManager(d.userCreds); err != nil {
		return nil, err
	}
	if d.ImageManager, err = factory.ImageManager(d.imageCreds); err != nil {
		return nil, err
	}
	if d.NetworkManager, err = factory.NetworkManager(d.networkCreds); err != nil {
		return nil, err
	}
	return d, nil
}

// Provider returns the provider the driver manages
func (d *AccountDriver) Provider() *atmosphere.Provider {
	return d.provider
}

// UserCredentials returns a copy of the credentials given to the user manager
func (d *AccountDriver) UserCredentials() Credentials { return d.userCreds.Copy() }

// ImageCredentials returns a copy of the credentials given to the image manager
func (d *AccountDriver) ImageCredentials() Credentials { return d.imageCreds.Copy() }

// NetworkCredentials returns a copy of the credentials given to the network manager
func (d *AccountDriver) NetworkCredentials() Credentials { return d.networkCreds.Copy() }

// CreateAccount creates, or brings up to date, the account for username and
// returns its identity. Provider admins are left alone and get a nil
// identity. Rate limited attempts are paused and retried until ctx is done.
func (d *AccountDriver) CreateAccount(ctx context.Context, username string, adminRole, maxQuota bool) (*atmosphere.Identity, error) {
	if d.provider.IsAdmin(username) {
		return nil, nil
	}

	password := d.HashPass(username)
	for {
		err := d.provisionAccount(ctx, username, password, adminRole)
		if err == nil {
			break
		}
		if !IsOverLimit(err) {
			return nil, err
		}

		log.WithFields(log.Fields{
			"username": username,
			"pause":    d.RateLimitPause.String(),
		}).Warn("Requests are rate limited. Pausing before retrying.")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.RateLimitPause):
		}
	}

	return d.CreateIdentity(username, password, username, maxQuota, false)
}

// provisionAccount is a single pass of CreateAccount
func (d *AccountDriver) provisionAccount(ctx context.Context, username, password string, adminRole bool) error {
	user, err := d.GetOrCreateUser(ctx, username, password, true, adminRole)
	if err != nil {
		return err
	}
	log.WithField("user", user.Name).Debug("account user")

	project, err := d.GetProject(ctx, username)
	if err != nil {
		return err
	}
	log.WithField("project", project.Name).Debug("account project")

	roles, err := d.UserManager.ListRoles(ctx, user, project)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		if err := d.UserManager.AddProjectMember(ctx, username, username, adminRole); err != nil {
			return err
		}
	}

	return d.UserManager.BuildSecurityGroup(ctx, user.Name, d.HashPass(user.Name), project.Name)
}

// CreateIdentity stores the credentials for username on this provider,
// updating the identity if the user already has one.
func (d *AccountDriver) CreateIdentity(username, password, projectName string, maxQuota, accountAdmin bool) (*atmosphere.Identity, error) {
	identity, err := d.context.UserIdentity(username, d.provider.ID)
	if err != nil {
		if !d.context.IsKeyNotFound(err) {
			return nil, err
		}
		identity = d.context.NewIdentity()
		identity.Username = username
		identity.ProviderID = d.provider.ID
	}

	identity.MaxQuota = maxQuota
	identity.AccountAdmin = accountAdmin
	identity.Credentials = map[string]string{
		atmosphere.CredKey:           username,
		atmosphere.CredSecret:        password,
		atmosphere.CredExTenantName:  projectName,
		atmosphere.CredExProjectName: projectName,
	}
	if err := identity.Save(); err != nil {
		return nil, err
	}
	return identity, nil
}

// RebuildProjectNetwork deletes and recreates a project's network
func (d *AccountDriver) RebuildProjectNetwork(ctx context.Context, username, projectName string) error {
	netCreds := baseNetworkCreds(d.providerCreds)
	if err := d.NetworkManager.DeleteProjectNetwork(ctx, username, projectName, netCreds); err != nil {
		return err
	}
	cidr, err := d.CIDR(username)
	if err != nil {
		return err
	}
	return d.NetworkManager.CreateProjectNetwork(ctx, NetworkRequest{
		Username:    username,
		Password:    d.HashPass(username),
		ProjectName: projectName,
		CIDR:        cidr,
		Credentials: netCreds,
	})
}

// identityCreds pulls username, password and tenant from an identity
func identityCreds(identity *atmosphere.Identity) (string, string, string, error) {
	creds := LibcloudToOpenStack(identity.GetCredentials())
	username, password, tenant := creds[CredUsername], creds[CredPassword], creds[CredTenantName]
	if username == "" || tenant == "" {
		return "", "", "", fmt.Errorf("identity %s is missing username or tenant credentials", identity.ID)
	}
	return username, password, tenant, nil
}

// DeleteNetwork removes the project network belonging to identity
func (d *AccountDriver) DeleteNetwork(ctx context.Context, identity *atmosphere.Identity) error {
	username, _, tenant, err := identityCreds(identity)
	if err != nil {
		return err
	}
	return d.NetworkManager.DeleteProjectNetwork(ctx, username, tenant, baseNetworkCreds(d.providerCreds))
}

// CreateNetwork builds the project network belonging to identity
func (d *AccountDriver) CreateNetwork(ctx context.Context, identity *atmosphere.Identity) error {
	username, password, tenant, err := identityCreds(identity)
	if err != nil {
		return err
	}
	cidr, err := d.CIDR(username)
	if err != nil {
		return err
	}
	return d.NetworkManager.CreateProjectNetwork(ctx, NetworkRequest{
		Username:    username,
		Password:    password,
		ProjectName: tenant,
		CIDR:        cidr,
		Credentials: baseNetworkCreds(d.providerCreds),
	})
}

// GetOrCreateUser returns the existing user or creates it
func (d *AccountDriver) GetOrCreateUser(ctx context.Context, username, password string, usergroup, admin bool) (*User, error) {
	user, err := d.GetUser(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return d.CreateUser(ctx, username, password, usergroup, admin)
}

// CreateUser creates a user. With usergroup set a project of the same name
// and the membership are created too. An empty password defaults to
// HashPass(username).
func (d *AccountDriver) CreateUser(ctx context.Context, username, password string, usergroup, admin bool) (*User, error) {
	if password == "" {
		password = d.HashPass(username)
	}
	if usergroup {
		_, user, _, err := d.UserManager.AddUsergroup(ctx, username, password, admin)
		return user, err
	}
	return d.UserManager.AddUser(ctx, username, password)
}

// DeleteUser removes a user, and with usergroup set its project. The
// project network is removed first. Failures are collected so one bad step
// does not leave the rest undone.
func (d *AccountDriver) DeleteUser(ctx context.Context, username string, usergroup bool) error {
	var result *multierror.Error

	project, err := d.UserManager.GetProject(ctx, username)
	switch {
	case err == nil:
		if err := d.NetworkManager.DeleteProjectNetwork(ctx, username, project.Name, nil); err != nil {
			result = multierror.Append(result, err)
		}
	case !errors.Is(err, ErrNotFound):
		result = multierror.Append(result, err)
	}

	if usergroup {
		err = d.UserManager.DeleteUsergroup(ctx, username)
	} else {
		err = d.UserManager.DeleteUser(ctx, username)
	}
	if err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// HashPass derives the account password from a username
func (d *AccountDriver) HashPass(username string) string {
	sum := sha1.Sum([]byte(username))
	return hex.EncodeToString(sum[:])
}

// ProjectNameFor maps a user to its project. They are currently identical.
func (d *AccountDriver) ProjectNameFor(username string) string {
	return username
}

// GetProject looks up a project by name
func (d *AccountDriver) GetProject(ctx context.Context, name string) (*Project, error) {
	return d.UserManager.GetProject(ctx, name)
}

// ListProjects lists every project
func (d *AccountDriver) ListProjects(ctx context.Context) ([]Project, error) {
	return d.UserManager.ListProjects(ctx)
}

// GetUser looks up a user by name
func (d *AccountDriver) GetUser(ctx context.Context, name string) (*User, error) {
	return d.UserManager.GetUser(ctx, name)
}

// ListUsers lists every user
func (d *AccountDriver) ListUsers(ctx context.Context) ([]User, error) {
	return d.UserManager.ListUsers(ctx)
}

// ListUsergroups pairs each non-admin user with the first project, in
// project order, whose name contains the user's name.
func (d *AccountDriver) ListUsergroups(ctx context.Context) ([]Usergroup, error) {
	users, err := d.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := d.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	usergroups := []Usergroup{}
	for _, project := range projects {
		for _, user := range users {
			if d.provider.IsAdmin(user.Name) {
				continue
			}
			if strings.Contains(project.Name, user.Name) {
				usergroups = append(usergroups, Usergroup{User: user, Project: project})
				break
			}
		}
	}
	return usergroups, nil
}

// ListUsergroupNames returns the user names from ListUsergroups
func (d *AccountDriver) ListUsergroupNames(ctx context.Context) ([]string, error) {
	usergroups, err := d.ListUsergroups(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(usergroups))
	for i, ug := range usergroups {
		names[i] = ug.User.Name
	}
	return names, nil
}

// Clients are per-user service clients and the Horizon URL that switches
// the dashboard to the user's project
type Clients struct {
	*Connection
	Network *gophercloud.ServiceClient
	Horizon string
}

// OpenStackCredentials returns the credentials a user authenticates with.
// tenant defaults to ProjectNameFor(username) and password to
// HashPass(tenant).
func (d *AccountDriver) OpenStackCredentials(username, password, tenant string) Credentials {
	if tenant == "" {
		tenant = d.ProjectNameFor(username)
	}
	if password == "" {
		password = d.HashPass(tenant)
	}
	return Credentials{
		atmosphere.CredAuthURL:    d.userCreds[atmosphere.CredAuthURL],
		atmosphere.CredRegionName: d.userCreds[atmosphere.CredRegionName],
		CredUsername:              username,
		CredPassword:              password,
		CredTenantName:            tenant,
	}
}

// OpenStackClients opens a full set of service clients as username
func (d *AccountDriver) OpenStackClients(ctx context.Context, username, password, tenant string) (*Clients, error) {
	creds := d.OpenStackCredentials(username, password, tenant)

	network, err := d.NetworkManager.NewConnection(ctx, creds)
	if err != nil {
		return nil, err
	}
	conn, err := d.ImageManager.NewConnection(ctx, creds)
	if err != nil {
		return nil, err
	}
	horizon, err := d.horizonURL(conn.ProjectID)
	if err != nil {
		return nil, err
	}
	return &Clients{
		Connection: conn,
		Network:    network,
		Horizon:    horizon,
	}, nil
}

// horizonURL builds the dashboard link for a tenant
func (d *AccountDriver) horizonURL(tenantID string) (string, error) {
	u, err := url.Parse(d.providerCreds[atmosphere.CredAuthURL])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/horizon/auth/switch/%s/?next=/horizon/project/", u.Hostname(), tenantID), nil
}
