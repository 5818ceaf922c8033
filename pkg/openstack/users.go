package openstack

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/projects"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/roles"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/users"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/groups"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/rules"
	"github.com/mistifyio/atmosphere/pkg/accounts"
	log "github.com/sirupsen/logrus"
)

// UserManager manages keystone users and projects with admin credentials
type UserManager struct {
	session    *adminSession
	memberRole string
	adminRole  string
}

// NewUserManager creates a UserManager. Nothing is contacted until the
// first call.
func NewUserManager(creds accounts.Credentials) *UserManager {
	return &UserManager{
		session:    &adminSession{creds: creds.Copy()},
		memberRole: credOr(creds, CredMemberRole, DefaultMemberRole),
		adminRole:  credOr(creds, CredAdminRole, DefaultAdminRole),
	}
}

func toUser(u users.User) accounts.User {
	return accounts.User{ID: u.ID, Name: u.Name}
}

func toProject(p projects.Project) accounts.Project {
	return accounts.Project{ID: p.ID, Name: p.Name}
}

func toRole(r roles.Role) accounts.Role {
	return accounts.Role{ID: r.ID, Name: r.Name}
}

// GetUser looks up a user by name
func (m *UserManager) GetUser(ctx context.Context, name string) (*accounts.User, error) {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return nil, err
	}
	return getUser(client, name)
}

func getUser(client *gophercloud.ServiceClient, name string) (*accounts.User, error) {
	page, err := users.List(client, users.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := users.ExtractUsers(page)
	if err != nil {
		return nil, err
	}
	for _, u := range found {
		if u.Name == name {
			user := toUser(u)
			return &user, nil
		}
	}
	return nil, accounts.ErrNotFound
}

// ListUsers lists every user
func (m *UserManager) ListUsers(ctx context.Context) ([]accounts.User, error) {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := users.List(client, users.ListOpts{}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := users.ExtractUsers(page)
	if err != nil {
		return nil, err
	}
	out := make([]accounts.User, len(found))
	for i, u := range found {
		out[i] = toUser(u)
	}
	return out, nil
}

// AddUser creates a user with no project
func (m *UserManager) AddUser(ctx context.Context, name, password string) (*accounts.User, error) {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return nil, err
	}
	return createUser(client, name, password, "")
}

func createUser(client *gophercloud.ServiceClient, name, password, projectID string) (*accounts.User, error) {
	enabled := true
	u, err := users.Create(client, users.CreateOpts{
		Name:             name,
		Password:         password,
		DefaultProjectID: projectID,
		Enabled:          &enabled,
	}).Extract()
	if err != nil {
		return nil, mapError(err)
	}
	user := toUser(*u)
	return &user, nil
}

// DeleteUser removes a user
func (m *UserManager) DeleteUser(ctx context.Context, name string) error {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return err
	}
	user, err := getUser(client, name)
	if err != nil {
		return err
	}
	return mapError(users.Delete(client, user.ID).ExtractErr())
}

// AddUsergroup creates a project and a user of the same name and makes the
// user a member, or an admin, of the project
func (m *UserManager) AddUsergroup(ctx context.Context, name, password string, admin bool) (*accounts.Project, *accounts.User, *accounts.Role, error) {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	project, err := getProject(client, name)
	if err == accounts.ErrNotFound {
		enabled := true
		var p *projects.Project
		p, err = projects.Create(client, projects.CreateOpts{
			Name:        name,
			Description: fmt.Sprintf("project for %s", name),
			Enabled:     &enabled,
		}).Extract()
		if err == nil {
			created := toProject(*p)
			project = &created
		}
	}
	if err != nil {
		return nil, nil, nil, mapError(err)
	}

	user, err := getUser(client, name)
	if err == accounts.ErrNotFound {
		user, err = createUser(client, name, password, project.ID)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	role, err := m.assign(client, project, user, admin)
	if err != nil {
		return nil, nil, nil, err
	}
	return project, user, role, nil
}

// DeleteUsergroup removes the user and the project of the same name
func (m *UserManager) DeleteUsergroup(ctx context.Context, name string) error {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return err
	}
	if user, err := getUser(client, name); err == nil {
		if err := users.Delete(client, user.ID).ExtractErr(); err != nil {
			return mapError(err)
		}
	} else if err != accounts.ErrNotFound {
		return err
	}

	project, err := getProject(client, name)
	if err != nil {
		if err == accounts.ErrNotFound {
			return nil
		}
		return err
	}
	return mapError(projects.Delete(client, project.ID).ExtractErr())
}

// GetProject looks up a project by name
func (m *UserManager) GetProject(ctx context.Context, name string) (*accounts.Project, error) {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return nil, err
	}
	return getProject(client, name)
}

func getProject(client *gophercloud.ServiceClient, name string) (*accounts.Project, error) {
	page, err := projects.List(client, projects.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := projects.ExtractProjects(page)
	if err != nil {
		return nil, err
	}
	for _, p := range found {
		if p.Name == name {
			project := toProject(p)
			return &project, nil
		}
	}
	return nil, accounts.ErrNotFound
}

// ListProjects lists every project
func (m *UserManager) ListProjects(ctx context.Context) ([]accounts.Project, error) {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := projects.List(client, projects.ListOpts{}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := projects.ExtractProjects(page)
	if err != nil {
		return nil, err
	}
	out := make([]accounts.Project, len(found))
	for i, p := range found {
		out[i] = toProject(p)
	}
	return out, nil
}

// ListRoles lists the roles user holds on project
func (m *UserManager) ListRoles(ctx context.Context, user *accounts.User, project *accounts.Project) ([]accounts.Role, error) {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return nil, err
	}
	return listRoles(client, user, project)
}

func listRoles(client *gophercloud.ServiceClient, user *accounts.User, project *accounts.Project) ([]accounts.Role, error) {
	page, err := roles.ListAssignmentsOnResource(client, roles.ListAssignmentsOnResourceOpts{
		UserID:    user.ID,
		ProjectID: project.ID,
	}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := roles.ExtractRoles(page)
	if err != nil {
		return nil, err
	}
	out := make([]accounts.Role, len(found))
	for i, r := range found {
		out[i] = toRole(r)
	}
	return out, nil
}

// AddProjectMember gives username the member role, or the admin role, on
// the named project
func (m *UserManager) AddProjectMember(ctx context.Context, projectName, username string, admin bool) error {
	client, err := m.session.identityClient(ctx)
	if err != nil {
		return err
	}
	project, err := getProject(client, projectName)
	if err != nil {
		return err
	}
	user, err := getUser(client, username)
	if err != nil {
		return err
	}
	_, err = m.assign(client, project, user, admin)
	return err
}

// assign grants the member or admin role and returns it
func (m *UserManager) assign(client *gophercloud.ServiceClient, project *accounts.Project, user *accounts.User, admin bool) (*accounts.Role, error) {
	roleName := m.memberRole
	if admin {
		roleName = m.adminRole
	}
	page, err := roles.List(client, roles.ListOpts{Name: roleName}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := roles.ExtractRoles(page)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("role %s does not exist", roleName)
	}

	err = roles.Assign(client, found[0].ID, roles.AssignOpts{
		UserID:    user.ID,
		ProjectID: project.ID,
	}).ExtractErr()
	if err != nil {
		return nil, mapError(err)
	}
	role := toRole(found[0])
	return &role, nil
}

// securityGroupRules open ssh, the rest of tcp and udp, and icmp on the
// project's default group
var securityGroupRules = []rules.CreateOpts{
	{Protocol: rules.ProtocolTCP, PortRangeMin: 22, PortRangeMax: 22},
	{Protocol: rules.ProtocolTCP, PortRangeMin: 1, PortRangeMax: 65535},
	{Protocol: rules.ProtocolUDP, PortRangeMin: 1, PortRangeMax: 65535},
	{Protocol: rules.ProtocolICMP},
}

// BuildSecurityGroup adds the ingress rules to the default security group
// of the user's project. Rules that already exist are skipped.
func (m *UserManager) BuildSecurityGroup(ctx context.Context, username, password, projectName string) error {
	creds := m.session.creds.Copy()
	creds[accounts.CredUsername] = username
	creds[accounts.CredPassword] = password
	creds[accounts.CredTenantName] = projectName

	pc, err := authenticate(ctx, creds)
	if err != nil {
		return err
	}
	client, err := openstack.NewNetworkV2(pc, endpointOpts(creds))
	if err != nil {
		return err
	}
	return buildSecurityGroup(client, username)
}

func buildSecurityGroup(client *gophercloud.ServiceClient, username string) error {
	page, err := groups.List(client, groups.ListOpts{Name: "default"}).AllPages()
	if err != nil {
		return mapError(err)
	}
	found, err := groups.ExtractGroups(page)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("no default security group for %s", username)
	}

	for _, rule := range securityGroupRules {
		rule.SecGroupID = found[0].ID
		rule.Direction = rules.DirIngress
		rule.EtherType = rules.EtherType4
		rule.RemoteIPPrefix = "0.0.0.0/0"
		if _, err := rules.Create(client, rule).Extract(); err != nil {
			if isConflict(err) {
				log.WithFields(log.Fields{
					"username": username,
					"protocol": rule.Protocol,
				}).Debug("security group rule exists")
				continue
			}
			return mapError(err)
		}
	}
	return nil
}
