package atmosphere

import (
	"errors"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no record
	ErrNotFound = errors.New("not found")

	// ErrInvalidUUID is returned for ids that do not parse as uuids
	ErrInvalidUUID = errors.New("invalid uuid")

	// errStopIteration ends a ForEach early without reporting an error
	errStopIteration = errors.New("stop iteration")
)

// Context carries around data/structs needed for operations
type Context struct {
	kv kv.KV
}

// NewContext creates a new context
func NewContext(store kv.KV) *Context {
	return &Context{
		kv: store,
	}
}

// KV returns the store the context reads and writes
func (c *Context) KV() kv.KV {
	return c.kv
}

// IsKeyNotFound is a helper to determine if the error is a key not found error
func (c *Context) IsKeyNotFound(err error) bool {
	return err == ErrNotFound || c.kv.IsKeyNotFound(err)
}

// canonicalizeUUID lowercases and validates a uuid string
func canonicalizeUUID(id string) (string, error) {
	u := uuid.Parse(id)
	if u == nil {
		return "", ErrInvalidUUID
	}
	return u.String(), nil
}
