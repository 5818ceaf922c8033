package accounts_test

import (
	"context"

	"github.com/gophercloud/gophercloud"
	"github.com/mistifyio/atmosphere/pkg/accounts"
	"github.com/stretchr/testify/mock"
)

type MockUserManager struct {
	mock.Mock
}

func (m *MockUserManager) GetUser(ctx context.Context, name string) (*accounts.User, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.User), args.Error(1)
}

func (m *MockUserManager) ListUsers(ctx context.Context) ([]accounts.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]accounts.User), args.Error(1)
}

func (m *MockUserManager) AddUser(ctx context.Context, name, password string) (*accounts.User, error) {
	args := m.Called(ctx, name, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.User), args.Error(1)
}

func (m *MockUserManager) DeleteUser(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockUserManager) AddUsergroup(ctx context.Context, name, password string, admin bool) (*accounts.Project, *accounts.User, *accounts.Role, error) {
	args := m.Called(ctx, name, password, admin)
	if args.Get(1) == nil {
		return nil, nil, nil, args.Error(3)
	}
	return args.Get(0).(*accounts.Project), args.Get(1).(*accounts.User), args.Get(2).(*accounts.Role), args.Error(3)
}

func (m *MockUserManager) DeleteUsergroup(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockUserManager) GetProject(ctx context.Context, name string) (*accounts.Project, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.Project), args.Error(1)
}

func (m *MockUserManager) ListProjects(ctx context.Context) ([]accounts.Project, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]accounts.Project), args.Error(1)
}

func (m *MockUserManager) ListRoles(ctx context.Context, user *accounts.User, project *accounts.Project) ([]accounts.Role, error) {
	args := m.Called(ctx, user, project)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]accounts.Role), args.Error(1)
}

func (m *MockUserManager) AddProjectMember(ctx context.Context, projectName, username string, admin bool) error {
	return m.Called(ctx, projectName, username, admin).Error(0)
}

func (m *MockUserManager) BuildSecurityGroup(ctx context.Context, username, password, projectName string) error {
	return m.Called(ctx, username, password, projectName).Error(0)
}

type MockNetworkManager struct {
	mock.Mock
}

func (m *MockNetworkManager) CreateProjectNetwork(ctx context.Context, req accounts.NetworkRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockNetworkManager) DeleteProjectNetwork(ctx context.Context, username, projectName string, creds accounts.Credentials) error {
	return m.Called(ctx, username, projectName, creds).Error(0)
}

func (m *MockNetworkManager) NewConnection(ctx context.Context, creds accounts.Credentials) (*gophercloud.ServiceClient, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gophercloud.ServiceClient), args.Error(1)
}

type MockImageManager struct {
	mock.Mock
}

func (m *MockImageManager) NewConnection(ctx context.Context, creds accounts.Credentials) (*accounts.Connection, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.Connection), args.Error(1)
}

// fakeFactory hands out the mocks and remembers the credentials it was given
type fakeFactory struct {
	users     *MockUserManager
	images    *MockImageManager
	networks  *MockNetworkManager
	userCreds accounts.Credentials
	imgCreds  accounts.Credentials
	netCreds  accounts.Credentials
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		users:    new(MockUserManager),
		images:   new(MockImageManager),
		networks: new(MockNetworkManager),
	}
}

func (f *fakeFactory) UserManager(creds accounts.Credentials) (accounts.UserManager, error) {
	f.userCreds = creds
	return f.users, nil
}

func (f *fakeFactory) ImageManager(creds accounts.Credentials) (accounts.ImageManager, error) {
	f.imgCreds = creds
	return f.images, nil
}

func (f *fakeFactory) NetworkManager(creds accounts.Credentials) (accounts.NetworkManager, error) {
	f.netCreds = creds
	return f.networks, nil
}
