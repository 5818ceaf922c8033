package openstack

import (
	"context"

	"github.com/gophercloud/gophercloud/openstack"
	"github.com/mistifyio/atmosphere/pkg/accounts"
)

// ImageManager opens per-user service connections
type ImageManager struct {
	creds accounts.Credentials
}

// NewImageManager creates an ImageManager
func NewImageManager(creds accounts.Credentials) *ImageManager {
	return &ImageManager{creds: creds.Copy()}
}

// NewConnection authenticates with creds and returns identity, compute and
// image clients along with the id of the project the token is scoped to.
// The region defaults to the manager's own.
func (m *ImageManager) NewConnection(ctx context.Context, creds accounts.Credentials) (*accounts.Connection, error) {
	creds = merge(m.creds, creds)
	pc, err := authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	eo := endpointOpts(creds)

	conn := &accounts.Connection{}
	if conn.Identity, err = openstack.NewIdentityV3(pc, eo); err != nil {
		return nil, err
	}
	if conn.Compute, err = openstack.NewComputeV2(pc, eo); err != nil {
		return nil, err
	}
	if conn.Image, err = openstack.NewImageServiceV2(pc, eo); err != nil {
		return nil, err
	}
	if conn.ProjectID, err = scopedProjectID(pc); err != nil {
		return nil, err
	}
	return conn, nil
}

// merge overlays override on base, skipping empty values
func merge(base, override accounts.Credentials) accounts.Credentials {
	out := base.Copy()
	for k, v := range override {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
