package atmosphere

import (
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"sort"
	"time"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
)

var (
	// InstancePath is the path in the config store
	InstancePath = "atmosphere/instances/"
)

type (
	// Instance is a virtual machine launched by a user on a provider
	Instance struct {
		context       *Context
		modifiedIndex uint64
		ID            string    `json:"id"`
		ProviderAlias string    `json:"provider_alias"` // server id on the provider
		ProviderID    string    `json:"provider"`
		Name          string    `json:"name"`
		IP            net.IP    `json:"ip"`
		User          string    `json:"user"`
		Created       time.Time `json:"created"`
	}

	// Instances is an alias to a slice of *Instance
	Instances []*Instance
)

// NewInstance creates a blank instance
func (c *Context) NewInstance() *Instance {
	return &Instance{
		context: c,
		ID:      uuid.New(),
		Created: time.Now().UTC(),
	}
}

// Instance fetches a single instance from the config store
func (c *Context) Instance(id string) (*Instance, error) {
	var err error
	id, err = canonicalizeUUID(id)
	if err != nil {
		return nil, err
	}
	i := &Instance{
		context: c,
		ID:      id,
	}
	if err := i.Refresh(); err != nil {
		return nil, err
	}
	return i, nil
}

// InstanceByAlias fetches the instance with the given provider alias
func (c *Context) InstanceByAlias(alias string) (*Instance, error) {
	var found *Instance
	err := c.ForEachInstance(func(i *Instance) error {
		if i.ProviderAlias == alias {
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

// Instances returns the instances owned by user, or every instance when
// user is empty, oldest first.
func (c *Context) Instances(user string) (Instances, error) {
	instances := Instances{}
	err := c.ForEachInstance(func(i *Instance) error {
		if user == "" || i.User == user {
			instances = append(instances, i)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Created.Before(instances[j].Created)
	})
	return instances, nil
}

// ForEachInstance will run f on each instance. It will stop iteration if f returns an error.
func (c *Context) ForEachInstance(f func(*Instance) error) error {
	values, err := c.kv.GetAll(InstancePath)
	if err != nil {
		if c.kv.IsKeyNotFound(err) {
			return nil
		}
		return err
	}
	for _, value := range values {
		i := &Instance{context: c}
		if err := i.fromValue(value); err != nil {
			return err
		}
		if err := f(i); err != nil {
			return err
		}
	}
	return nil
}

// key is a helper to generate the config store key
func (i *Instance) key() string {
	return filepath.Join(InstancePath, i.ID)
}

func (i *Instance) fromValue(value kv.Value) error {
	i.modifiedIndex = value.Index
	return json.Unmarshal(value.Data, i)
}

// Refresh reloads from the data store
func (i *Instance) Refresh() error {
	value, err := i.context.kv.Get(i.key())
	if err != nil {
		return err
	}
	return i.fromValue(value)
}

// Validate ensures an instance has reasonable data
func (i *Instance) Validate() error {
	if i.ID == "" {
		return errors.New("instance ID required")
	}
	if uuid.Parse(i.ID) == nil {
		return errors.New("instance ID must be uuid")
	}
	if i.ProviderAlias == "" {
		return errors.New("instance provider alias required")
	}
	if i.User == "" {
		return errors.New("instance user required")
	}
	if i.IP != nil && i.IP.To4() == nil {
		return errors.New("instance IP must be IPv4")
	}
	return nil
}

// Save persists an instance. It will call Validate.
func (i *Instance) Save() error {
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

// Destroy removes an instance
func (i *Instance) Destroy() error {
	return i.context.kv.Remove(i.key(), i.modifiedIndex)
}
