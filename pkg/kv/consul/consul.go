// Package consul registers the consul kv implementation.
package consul

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	consul "github.com/hashicorp/consul/api"
	"github.com/mistifyio/atmosphere/pkg/kv"
)

var err404 = errors.New("key not found")

// watchWait bounds each blocking query issued by Watch
const watchWait = 5 * time.Minute

func init() {
	kv.Register("consul", New)
}

type ckv struct {
	c      *consul.KV
	client *consul.Client
	config *consul.Config

	// sessions holds the session bound to each key updated with a TTL
	mu       sync.Mutex
	sessions map[string]string
}

// New instantiates a consul kv implementation.
// The parameter addr may be the empty string or a valid URL.
// If addr is not empty it must be a valid URL with schemes http, https or consul; consul is synonymous with http.
// If addr is the empty string the consul client will connect to the default address, which may be influenced by the environment.
func New(addr string) (kv.KV, error) {
	config := consul.DefaultConfig()
	if addr != "" {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, err
		}

		if u.Scheme != "consul" {
			config.Scheme = u.Scheme
		}
		config.Address = u.Host
	}

	client, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &ckv{
		c:        client.KV(),
		client:   client,
		config:   config,
		sessions: map[string]string{},
	}, nil
}

// consul keys are relative
func clean(key string) string {
	return strings.TrimPrefix(key, "/")
}

// dir is the cleaned form of a directory prefix without its trailing slash
func dir(prefix string) string {
	return strings.TrimSuffix(clean(prefix), "/")
}

// under reports whether key is prefix itself or lives beneath it. Consul
// prefixes match on plain strings, so "a/b" would otherwise match "a/bc".
func under(key, prefix string) bool {
	return prefix == "" || key == prefix || strings.HasPrefix(key, prefix+"/")
}

func (c *ckv) Delete(key string, recurse bool) error {
	key = dir(key)
	if _, err := c.c.Delete(key, nil); err != nil {
		return err
	}
	if !recurse {
		return nil
	}
	tree := key + "/"
	if key == "" {
		tree = ""
	}
	_, err := c.c.DeleteTree(tree, nil)
	return err
}

func (c *ckv) Get(key string) (kv.Value, error) {
	kvp, _, err := c.c.Get(clean(key), nil)
	if err != nil {
		return kv.Value{}, err
	}
	if kvp == nil || kvp.Value == nil {
		return kv.Value{}, err404
	}
	return kv.Value{Data: kvp.Value, Index: kvp.ModifyIndex}, nil
}

func (c *ckv) GetAll(prefix string) (map[string]kv.Value, error) {
	prefix = dir(prefix)
	pairs, _, err := c.c.List(prefix, nil)
	if err != nil {
		return nil, err
	}
	many := make(map[string]kv.Value, len(pairs))
	for _, kvp := range pairs {
		if !under(kvp.Key, prefix) {
			continue
		}
		many[kvp.Key] = kv.Value{Data: kvp.Value, Index: kvp.ModifyIndex}
	}
	return many, nil
}

func (c *ckv) Keys(key string) ([]string, error) {
	prefix := clean(key)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keys, _, err := c.c.Keys(prefix, "/", nil)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i] = strings.TrimSuffix(keys[i], "/")
	}
	return keys, nil
}

func (c *ckv) Set(key, value string) error {
	_, err := c.c.Put(&consul.KVPair{Key: clean(key), Value: []byte(value)}, nil)
	return err
}

func (c *ckv) cas(key string, value kv.Value) error {
	kvp := consul.KVPair{
		Key:         clean(key),
		Value:       value.Data,
		ModifyIndex: value.Index,
	}

	valid, _, err := c.c.CAS(&kvp, nil)
	if err != nil {
		return err
	}

	if !valid {
		return errors.New("CAS failed")
	}

	return nil
}

// Update is racy with other modifiers since the consul KV API does not return the new modified index.
// See https://github.com/hashicorp/consul/issues/304
// A TTL binds the key to a session with delete behavior that each Update
// renews.
func (c *ckv) Update(key string, value kv.Value) (uint64, error) {
	if err := c.cas(key, value); err != nil {
		return 0, err
	}

	if value.TTL > 0 {
		session, err := c.session(clean(key), value.TTL)
		if err != nil {
			return 0, err
		}
		ok, _, err := c.c.Acquire(&consul.KVPair{
			Key:     clean(key),
			Value:   value.Data,
			Session: session,
		}, nil)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.New("key held by another session")
		}
	}

	v, err := c.Get(key)
	return v.Index, err
}

// session renews the session bound to key, creating one when there is none
// or it has already expired
func (c *ckv) session(key string, ttl time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.sessions[key]; ok {
		entry, _, err := c.client.Session().Renew(id, nil)
		if err == nil && entry != nil {
			return id, nil
		}
		delete(c.sessions, key)
	}

	id, _, err := c.client.Session().Create(&consul.SessionEntry{
		TTL:      ttl.String(),
		Behavior: consul.SessionBehaviorDelete,
	}, nil)
	if err != nil {
		return "", err
	}
	c.sessions[key] = id
	return id, nil
}

// forget destroys the session bound to key, if any
func (c *ckv) forget(key string) {
	c.mu.Lock()
	id, ok := c.sessions[key]
	delete(c.sessions, key)
	c.mu.Unlock()
	if ok {
		_, _ = c.client.Session().Destroy(id, nil)
	}
}

func (c *ckv) Remove(key string, index uint64) error {
	ok, _, err := c.c.DeleteCAS(&consul.KVPair{Key: clean(key), ModifyIndex: index}, nil)
	if err != nil {
		return err
	}

	if !ok {
		return errors.New("failed to delete atomically")
	}

	c.forget(clean(key))
	return nil
}

func (c *ckv) IsKeyNotFound(err error) bool {
	return err == err404
}

// Watch polls prefix with blocking queries and diffs successive listings into
// events.
func (c *ckv) Watch(prefix string, index uint64, stop chan struct{}) (chan kv.Event, chan error, error) {
	events := make(chan kv.Event)
	errs := make(chan error, 1)

	prefix = dir(prefix)
	go func() {
		defer close(events)

		saved := map[string]uint64{}
		primed := false
		for {
			pairs, meta, err := c.c.List(prefix, &consul.QueryOptions{
				WaitIndex: index,
				WaitTime:  watchWait,
			})
			select {
			case <-stop:
				return
			default:
			}
			if err != nil {
				errs <- err
				return
			}
			if meta.LastIndex == index && primed {
				continue
			}
			index = meta.LastIndex

			current := map[string]uint64{}
			for _, kvp := range pairs {
				if !under(kvp.Key, prefix) {
					continue
				}
				current[kvp.Key] = kvp.ModifyIndex

				old, ok := saved[kvp.Key]
				event := kv.Event{
					Key: kvp.Key,
					Value: kv.Value{
						Data:  kvp.Value,
						Index: kvp.ModifyIndex,
					},
				}
				switch {
				case !ok:
					event.Type = kv.Create
				case old != kvp.ModifyIndex:
					event.Type = kv.Update
				default:
					continue
				}
				delete(saved, kvp.Key)
				if primed && !send(events, event, stop) {
					return
				}
			}

			// anything left over in "saved" has not been found in "current"
			// so it must have been deleted
			for key, idx := range saved {
				if _, ok := current[key]; ok {
					continue
				}
				event := kv.Event{Key: key, Type: kv.Delete, Value: kv.Value{Index: idx}}
				if !send(events, event, stop) {
					return
				}
			}

			saved = current
			primed = true
		}
	}()

	return events, errs, nil
}

func send(events chan kv.Event, event kv.Event, stop chan struct{}) bool {
	select {
	case events <- event:
		return true
	case <-stop:
		return false
	}
}

// Ping verifies communication with the cluster
func (c *ckv) Ping() error {
	_, err := c.client.Agent().NodeName()
	return err
}
