// Package kv abstracts the distributed key value stores atmosphere keeps its
// records in. Implementations register a URL scheme and are selected with New.
package kv

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Value is a stored value along with the store's modification index for it.
type Value struct {
	Data  []byte
	Index uint64
	// TTL, when set on Update, expires the key unless it is updated again
	// within that time
	TTL time.Duration
}

// EventType is the kind of change a watch reported.
type EventType int

// Watch event types
const (
	None EventType = iota
	Get
	Create
	Delete
	Update
)

func (t EventType) String() string {
	switch t {
	case Get:
		return "Get"
	case Create:
		return "Create"
	case Delete:
		return "Delete"
	case Update:
		return "Update"
	}
	return "None"
}

// Event is a single change seen by Watch.
type Event struct {
	Key  string
	Type EventType
	Value
}

func (e Event) GoString() string {
	return fmt.Sprintf("{Key:%s, Type:%s, Index: %d, Value: %s}", e.Key, e.Type, e.Index, string(e.Data))
}

var register = struct {
	sync.RWMutex
	kvs map[string]func(string) (KV, error)
}{
	kvs: map[string]func(string) (KV, error){},
}

// Register is called by KV implementors to register their scheme to be used
// with New
func Register(name string, fn func(string) (KV, error)) {
	register.Lock()
	defer register.Unlock()

	if _, dup := register.kvs[name]; dup {
		panic("kv: Register called twice for " + name)
	}
	register.kvs[name] = fn
}

// New will return a KV implementation according to the connection string addr.
// addr is a URL where the scheme is used to determine which kv implementation to return.
// The special `http` and `https` schemes are deemed generic, the first implementation that supports it will be returned.
func New(addr string) (KV, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	register.RLock()
	defer register.RUnlock()

	fn := register.kvs[u.Scheme]
	if fn != nil {
		return fn(addr)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unknown kv store %s (forgotten import?)", u.Scheme)
	}

	// prefer etcd for bare http(s) addresses, the map order is random
	if fn := register.kvs["etcd"]; fn != nil {
		return fn(addr)
	}
	for _, constructor := range register.kvs {
		kv, err := constructor(addr)
		if err != nil {
			return nil, err
		}
		if kv != nil {
			return kv, nil
		}
	}
	return nil, fmt.Errorf("unknown kv store")
}

// KV is the interface for distributed key value store interaction. Keys are
// slash separated paths; a leading slash is optional.
type KV interface {
	Delete(key string, recurse bool) error
	Get(key string) (Value, error)
	// GetAll returns every value below prefix, keyed by full path
	GetAll(prefix string) (map[string]Value, error)
	// Keys lists the immediate children of a directory
	Keys(key string) ([]string, error)
	Set(key, value string) error

	// Update sets key to value.Data unless the stored index differs from
	// value.Index, so newer values are never clobbered. An Index of 0 means
	// the key must not exist yet. The new index is returned.
	Update(key string, value Value) (uint64, error)
	// Remove deletes key only if it has not been modified since index
	Remove(key string, index uint64) error

	// IsKeyNotFound reports whether err means the key does not exist
	IsKeyNotFound(err error) bool

	// Watch streams changes below prefix until stop is closed
	Watch(prefix string, index uint64, stop chan struct{}) (chan Event, chan error, error)

	// Ping checks that the store is reachable
	Ping() error
}
