package atmosphere

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
)

var (
	// IdentityPath is the path in the config store
	IdentityPath = "atmosphere/identities/"
)

// Credential names as stored on an identity
const (
	CredKey           = "key"
	CredSecret        = "secret"
	CredExTenantName  = "ex_tenant_name"
	CredExProjectName = "ex_project_name"
)

type (
	// Identity is a user's set of credentials on a provider
	Identity struct {
		context       *Context
		modifiedIndex uint64
		ID            string            `json:"id"`
		Username      string            `json:"username"`
		ProviderID    string            `json:"provider"`
		Credentials   map[string]string `json:"credentials"`
		MaxQuota      bool              `json:"max_quota"`
		AccountAdmin  bool              `json:"account_admin"`
	}

	// Identities is an alias to a slice of *Identity
	Identities []*Identity
)

// NewIdentity creates a blank identity
func (c *Context) NewIdentity() *Identity {
	return &Identity{
		context:     c,
		ID:          uuid.New(),
		Credentials: make(map[string]string),
	}
}

// Identity fetches a single identity from the config store
func (c *Context) Identity(id string) (*Identity, error) {
	var err error
	id, err = canonicalizeUUID(id)
	if err != nil {
		return nil, err
	}
	i := &Identity{
		context: c,
		ID:      id,
	}
	if err := i.Refresh(); err != nil {
		return nil, err
	}
	return i, nil
}

// ForEachIdentity will run f on each identity. It will stop iteration if f returns an error.
func (c *Context) ForEachIdentity(f func(*Identity) error) error {
	values, err := c.kv.GetAll(IdentityPath)
	if err != nil {
		if c.kv.IsKeyNotFound(err) {
			return nil
		}
		return err
	}
	for _, value := range values {
		i := &Identity{context: c}
		if err := i.fromValue(value); err != nil {
			return err
		}
		if err := f(i); err != nil {
			return err
		}
	}
	return nil
}

// UserIdentity returns the identity a user holds on a provider
func (c *Context) UserIdentity(username, providerID string) (*Identity, error) {
	var found *Identity
	err := c.ForEachIdentity(func(i *Identity) error {
		if i.Username == username && i.ProviderID == providerID {
			found = i
			return errStopIteration
		}
		return nil
	})
	if err != nil && err != errStopIteration {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// key is a helper to generate the config store key
func (i *Identity) key() string {
	return filepath.Join(IdentityPath, i.ID)
}

func (i *Identity) fromValue(value kv.Value) error {
	i.modifiedIndex = value.Index
	return json.Unmarshal(value.Data, i)
}

// Refresh reloads from the data store
func (i *Identity) Refresh() error {
	value, err := i.context.kv.Get(i.key())
	if err != nil {
		return err
	}
	return i.fromValue(value)
}

// GetCredentials returns a copy of the identity's credentials
func (i *Identity) GetCredentials() map[string]string {
	creds := make(map[string]string, len(i.Credentials))
	for k, v := range i.Credentials {
		creds[k] = v
	}
	return creds
}

// Validate ensures an identity has reasonable data
func (i *Identity) Validate() error {
	if i.ID == "" {
		return errors.New("identity ID required")
	}
	if uuid.Parse(i.ID) == nil {
		return errors.New("identity ID must be uuid")
	}
	if i.Username == "" {
		return errors.New("identity username required")
	}
	if i.ProviderID == "" {
		return errors.New("identity provider required")
	}
	if i.Credentials[CredKey] == "" {
		return errors.New("identity key credential required")
	}
	return nil
}

// Save persists an identity. It will call Validate.
func (i *Identity) Save() error {
	if err := i.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(i)
	if err != nil {
		return err
	}

	index, err := i.context.kv.Update(i.key(), kv.Value{Data: v, Index: i.modifiedIndex})
	if err != nil {
		return err
	}
	i.modifiedIndex = index
	return nil
}

// Destroy removes an identity
func (i *Identity) Destroy() error {
	return i.context.kv.Remove(i.key(), i.modifiedIndex)
}
