package openstack

import (
	"context"
	"errors"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"
	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/accounts"
	log "github.com/sirupsen/logrus"
)

// NetworkManager builds project networks with neutron and plugs them into
// the provider's shared router
type NetworkManager struct {
	session *adminSession
}

// NewNetworkManager creates a NetworkManager. Nothing is contacted until the
// first call.
func NewNetworkManager(creds accounts.Credentials) *NetworkManager {
	return &NetworkManager{
		session: &adminSession{creds: creds.Copy()},
	}
}

func networkName(project string) string { return project + "-net" }
func subnetName(project string) string  { return project + "-subnet" }

// adminClient returns a client for creds, or the manager's own session when
// creds is empty, along with the credentials it was built from
func (m *NetworkManager) adminClient(ctx context.Context, creds accounts.Credentials) (*gophercloud.ServiceClient, accounts.Credentials, error) {
	if len(creds) == 0 {
		client, err := m.session.networkClient(ctx)
		return client, m.session.creds, err
	}
	client, err := m.NewConnection(ctx, creds)
	return client, creds, err
}

// NewConnection authenticates with creds and returns a networking client
func (m *NetworkManager) NewConnection(ctx context.Context, creds accounts.Credentials) (*gophercloud.ServiceClient, error) {
	pc, err := authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	return openstack.NewNetworkV2(pc, endpointOpts(creds))
}

// CreateProjectNetwork creates the project's network and subnet as the
// project's user and attaches the subnet to the shared router
func (m *NetworkManager) CreateProjectNetwork(ctx context.Context, req accounts.NetworkRequest) error {
	if req.CIDR == "" {
		return errors.New("cidr required")
	}
	admin, adminCreds, err := m.adminClient(ctx, req.Credentials)
	if err != nil {
		return err
	}

	userCreds := adminCreds.Copy()
	userCreds[accounts.CredUsername] = req.Username
	userCreds[accounts.CredPassword] = req.Password
	userCreds[accounts.CredTenantName] = req.ProjectName
	client, err := m.NewConnection(ctx, userCreds)
	if err != nil {
		return err
	}

	network, err := findNetwork(client, networkName(req.ProjectName))
	if err == accounts.ErrNotFound {
		up := true
		network, err = networks.Create(client, networks.CreateOpts{
			Name:         networkName(req.ProjectName),
			AdminStateUp: &up,
		}).Extract()
	}
	if err != nil {
		return mapError(err)
	}

	var subnet *subnets.Subnet
	if len(network.Subnets) > 0 {
		subnet, err = subnets.Get(client, network.Subnets[0]).Extract()
	} else {
		subnet, err = subnets.Create(client, subnets.CreateOpts{
			NetworkID: network.ID,
			Name:      subnetName(req.ProjectName),
			CIDR:      req.CIDR,
			IPVersion: gophercloud.IPv4,
		}).Extract()
	}
	if err != nil {
		return mapError(err)
	}

	routerName := adminCreds[atmosphere.CredRouterName]
	if routerName == "" {
		log.WithField("project", req.ProjectName).Warn("no router_name; project network left unrouted")
		return nil
	}
	router, err := findRouter(admin, routerName)
	if err != nil {
		return err
	}
	_, err = routers.AddInterface(admin, router.ID, routers.AddInterfaceOpts{SubnetID: subnet.ID}).Extract()
	if err != nil && !isConflict(err) {
		return mapError(err)
	}

	log.WithFields(log.Fields{
		"project": req.ProjectName,
		"network": network.ID,
		"subnet":  subnet.ID,
		"cidr":    subnet.CIDR,
	}).Info("project network ready")
	return nil
}

// DeleteProjectNetwork detaches and deletes the project's subnets and
// network. A project without a network is not an error.
func (m *NetworkManager) DeleteProjectNetwork(ctx context.Context, username, projectName string, creds accounts.Credentials) error {
	admin, adminCreds, err := m.adminClient(ctx, creds)
	if err != nil {
		return err
	}

	network, err := findNetwork(admin, networkName(projectName))
	if err != nil {
		if err == accounts.ErrNotFound {
			return nil
		}
		return err
	}

	var router *routers.Router
	if routerName := adminCreds[atmosphere.CredRouterName]; routerName != "" {
		if router, err = findRouter(admin, routerName); err != nil && err != accounts.ErrNotFound {
			return err
		}
	}

	for _, subnetID := range network.Subnets {
		if router != nil {
			_, err := routers.RemoveInterface(admin, router.ID, routers.RemoveInterfaceOpts{SubnetID: subnetID}).Extract()
			if err = mapError(err); err != nil && !errors.Is(err, accounts.ErrNotFound) {
				return err
			}
		}
		if err := mapError(subnets.Delete(admin, subnetID).ExtractErr()); err != nil && !errors.Is(err, accounts.ErrNotFound) {
			return err
		}
	}

	if err := mapError(networks.Delete(admin, network.ID).ExtractErr()); err != nil && !errors.Is(err, accounts.ErrNotFound) {
		return err
	}
	log.WithFields(log.Fields{
		"username": username,
		"project":  projectName,
	}).Info("project network deleted")
	return nil
}

func findNetwork(client *gophercloud.ServiceClient, name string) (*networks.Network, error) {
	page, err := networks.List(client, networks.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := networks.ExtractNetworks(page)
	if err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].Name == name {
			return &found[i], nil
		}
	}
	return nil, accounts.ErrNotFound
}

func findRouter(client *gophercloud.ServiceClient, name string) (*routers.Router, error) {
	page, err := routers.List(client, routers.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, mapError(err)
	}
	found, err := routers.ExtractRouters(page)
	if err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].Name == name {
			return &found[i], nil
		}
	}
	return nil, accounts.ErrNotFound
}
