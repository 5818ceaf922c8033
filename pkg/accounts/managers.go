package accounts

import (
	"context"
	"errors"

	"github.com/gophercloud/gophercloud"
)

var (
	// ErrNotFound is returned by managers when a user or project does not exist
	ErrNotFound = errors.New("not found")

	// ErrOverLimit is returned by managers when the provider rate limits a
	// request. Callers may wrap it.
	ErrOverLimit = errors.New("requests are rate limited")
)

// IsOverLimit reports whether err is, or wraps, ErrOverLimit
func IsOverLimit(err error) bool {
	return errors.Is(err, ErrOverLimit)
}

type (
	// User is a keystone user
	User struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Project is a keystone project (tenant)
	Project struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Role is a keystone role
	Role struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Usergroup pairs a user with the project it owns
	Usergroup struct {
		User    User    `json:"user"`
		Project Project `json:"project"`
	}

	// NetworkRequest describes a project network to build
	NetworkRequest struct {
		Username    string
		Password    string
		ProjectName string
		CIDR        string
		// Credentials overrides the manager's own credentials when set
		Credentials Credentials
	}

	// Connection holds authenticated clients for a single user
	Connection struct {
		Identity  *gophercloud.ServiceClient
		Compute   *gophercloud.ServiceClient
		Image     *gophercloud.ServiceClient
		ProjectID string
	}
)

// UserManager administers users, projects and their memberships
type UserManager interface {
	GetUser(ctx context.Context, name string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	AddUser(ctx context.Context, name, password string) (*User, error)
	DeleteUser(ctx context.Context, name string) error
	// AddUsergroup creates a user, a project of the same name and the
	// membership between them.
	AddUsergroup(ctx context.Context, name, password string, admin bool) (*Project, *User, *Role, error)
	DeleteUsergroup(ctx context.Context, name string) error
	GetProject(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	ListRoles(ctx context.Context, user *User, project *Project) ([]Role, error)
	AddProjectMember(ctx context.Context, projectName, username string, admin bool) error
	BuildSecurityGroup(ctx context.Context, username, password, projectName string) error
}

// NetworkManager builds and tears down per-project networks
type NetworkManager interface {
	CreateProjectNetwork(ctx context.Context, req NetworkRequest) error
	DeleteProjectNetwork(ctx context.Context, username, projectName string, creds Credentials) error
	NewConnection(ctx context.Context, creds Credentials) (*gophercloud.ServiceClient, error)
}

// ImageManager opens user connections to the identity, compute and image
// services
type ImageManager interface {
	NewConnection(ctx context.Context, creds Credentials) (*Connection, error)
}

// ManagerFactory builds managers from credential sets
type ManagerFactory interface {
	UserManager(creds Credentials) (UserManager, error)
	ImageManager(creds Credentials) (ImageManager, error)
	NetworkManager(creds Credentials) (NetworkManager, error)
}
