package atmosphere

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
)

var (
	// ProviderPath is the path in the config store
	ProviderPath = "atmosphere/providers/"
)

// Provider-wide credential names
const (
	CredAuthURL    = "auth_url"
	CredAdminURL   = "admin_url"
	CredRegionName = "region_name"
	CredRouterName = "router_name"
)

type (
	// Provider is an OpenStack cloud that accounts are provisioned on
	Provider struct {
		context         *Context
		modifiedIndex   uint64
		ID              string            `json:"id"`
		Location        string            `json:"location"`
		Credentials     map[string]string `json:"credentials"`
		AdminIdentityID string            `json:"admin_identity"`
		AdminNames      []string          `json:"admin_names"`
	}

	// Providers is an alias to a slice of *Provider
	Providers []*Provider
)

// NewProvider creates a blank provider
func (c *Context) NewProvider() *Provider {
	return &Provider{
		context:     c,
		ID:          uuid.New(),
		Credentials: make(map[string]string),
		AdminNames:  []string{},
	}
}

// Provider fetches a single provider from the config store
func (c *Context) Provider(id string) (*Provider, error) {
	var err error
	id, err = canonicalizeUUID(id)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		context: c,
		ID:      id,
	}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	return p, nil
}

// Providers fetches all providers sorted by location
func (c *Context) Providers() (Providers, error) {
	providers := Providers{}
	values, err := c.kv.GetAll(ProviderPath)
	if err != nil {
		if c.kv.IsKeyNotFound(err) {
			return providers, nil
		}
		return nil, err
	}
	for _, value := range values {
		p := &Provider{context: c}
		if err := p.fromValue(value); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Location < providers[j].Location
	})
	return providers, nil
}

// key is a helper to generate the config store key
func (p *Provider) key() string {
	return filepath.Join(ProviderPath, p.ID)
}

func (p *Provider) fromValue(value kv.Value) error {
	p.modifiedIndex = value.Index
	return json.Unmarshal(value.Data, p)
}

// Refresh reloads from the data store
func (p *Provider) Refresh() error {
	value, err := p.context.kv.Get(p.key())
	if err != nil {
		return err
	}
	return p.fromValue(value)
}

// GetCredentials returns a copy of the provider-wide credentials
func (p *Provider) GetCredentials() map[string]string {
	creds := make(map[string]string, len(p.Credentials))
	for k, v := range p.Credentials {
		creds[k] = v
	}
	return creds
}

// AdminIdentity fetches the identity used for administrative calls
func (p *Provider) AdminIdentity() (*Identity, error) {
	if p.AdminIdentityID == "" {
		return nil, errors.New("provider has no admin identity")
	}
	return p.context.Identity(p.AdminIdentityID)
}

// ListAdminNames returns the usernames that are provider administrators
func (p *Provider) ListAdminNames() []string {
	return append([]string{}, p.AdminNames...)
}

// IsAdmin reports whether username is a provider administrator
func (p *Provider) IsAdmin(username string) bool {
	for _, name := range p.AdminNames {
		if name == username {
			return true
		}
	}
	return false
}

// Validate ensures a provider has reasonable data
func (p *Provider) Validate() error {
	if p.ID == "" {
		return errors.New("provider ID required")
	}
	if uuid.Parse(p.ID) == nil {
		return errors.New("provider ID must be uuid")
	}
	if p.Location == "" {
		return errors.New("provider location required")
	}
	if p.Credentials[CredAuthURL] == "" {
		return errors.New("provider auth_url credential required")
	}
	if p.AdminIdentityID != "" && uuid.Parse(p.AdminIdentityID) == nil {
		return errors.New("provider admin identity must be uuid")
	}
	return nil
}

// Save persists a provider. It will call Validate.
func (p *Provider) Save() error {
	if err := p.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(p)
	if err != nil {
		return err
	}

	index, err := p.context.kv.Update(p.key(), kv.Value{Data: v, Index: p.modifiedIndex})
	if err != nil {
		return err
	}
	p.modifiedIndex = index
	return nil
}

// Destroy removes a provider
func (p *Provider) Destroy() error {
	return p.context.kv.Remove(p.key(), p.modifiedIndex)
}
