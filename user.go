package atmosphere

import (
	"encoding/json"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/mistifyio/atmosphere/pkg/kv"
)

var (
	// UserPath is the path in the config store
	UserPath = "atmosphere/users/"
)

type (
	// AtmosphereUser is a person allowed to use the cloud
	AtmosphereUser struct {
		context       *Context
		modifiedIndex uint64
		Username      string   `json:"username"`
		Email         string   `json:"email,omitempty"`
		IsStaff       bool     `json:"is_staff"`
		UseSSHKeys    bool     `json:"use_ssh_keys"`
		SSHKeys       []string `json:"ssh_keys"`
		LoginShell    string   `json:"login_shell,omitempty"`
	}

	// AtmosphereUsers is an alias to a slice of *AtmosphereUser
	AtmosphereUsers []*AtmosphereUser
)

// NewUser creates a blank user
func (c *Context) NewUser(username string) *AtmosphereUser {
	return &AtmosphereUser{
		context:  c,
		Username: username,
		SSHKeys:  []string{},
	}
}

// User fetches a single user from the config store
func (c *Context) User(username string) (*AtmosphereUser, error) {
	if username == "" {
		return nil, errors.New("username required")
	}
	u := &AtmosphereUser{
		context:  c,
		Username: username,
	}
	if err := u.Refresh(); err != nil {
		return nil, err
	}
	return u, nil
}

// ForEachUser will run f on each user. It will stop iteration if f returns an error.
func (c *Context) ForEachUser(f func(*AtmosphereUser) error) error {
	values, err := c.kv.GetAll(UserPath)
	if err != nil {
		if c.kv.IsKeyNotFound(err) {
			return nil
		}
		return err
	}
	for _, value := range values {
		u := &AtmosphereUser{context: c}
		if err := u.fromValue(value); err != nil {
			return err
		}
		if err := f(u); err != nil {
			return err
		}
	}
	return nil
}

// key is a helper to generate the config store key
func (u *AtmosphereUser) key() string {
	return filepath.Join(UserPath, u.Username)
}

func (u *AtmosphereUser) fromValue(value kv.Value) error {
	u.modifiedIndex = value.Index
	return json.Unmarshal(value.Data, u)
}

// Refresh reloads from the data store
func (u *AtmosphereUser) Refresh() error {
	value, err := u.context.kv.Get(u.key())
	if err != nil {
		return err
	}
	return u.fromValue(value)
}

// Validate ensures a user has reasonable data
func (u *AtmosphereUser) Validate() error {
	if u.Username == "" {
		return errors.New("username required")
	}
	if path.Base(u.Username) != u.Username || strings.ContainsAny(u.Username, " \t\n") {
		return errors.New("username is invalid")
	}
	return nil
}

// Save persists a user. It will call Validate.
func (u *AtmosphereUser) Save() error {
	if err := u.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(u)
	if err != nil {
		return err
	}

	index, err := u.context.kv.Update(u.key(), kv.Value{Data: v, Index: u.modifiedIndex})
	if err != nil {
		return err
	}
	u.modifiedIndex = index
	return nil
}

// Destroy removes a user
func (u *AtmosphereUser) Destroy() error {
	return u.context.kv.Remove(u.key(), u.modifiedIndex)
}

// AuthorizedKeys returns the public keys to install on the user's
// instances, or none when the user opted out of key injection.
func (u *AtmosphereUser) AuthorizedKeys() []string {
	if !u.UseSSHKeys {
		return []string{}
	}
	return append([]string{}, u.SSHKeys...)
}

// UsesZsh reports whether the user's login shell is zsh
func (u *AtmosphereUser) UsesZsh() bool {
	return strings.Contains(u.LoginShell, "zsh")
}
