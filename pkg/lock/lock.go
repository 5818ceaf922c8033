// Package lock implements a lock in a kv store using CAS semantics.
package lock

import (
	"errors"
	"time"

	"github.com/mistifyio/atmosphere/pkg/kv"
)

var (
	// ErrKeyNotFound signifies an attempt to operate on a non-existent lock
	ErrKeyNotFound = errors.New("Key not found")
	// ErrLockNotHeld signifies an attempt to operate on a released/lost lock
	ErrLockNotHeld = errors.New("Lock not held")
	// ErrKeyRequired signifies an attempt to lock an empty key
	ErrKeyRequired = errors.New("lock key required")
)

// Lock is a lock in the kv
type Lock struct {
	kv    kv.KV
	key   string
	value string
	ttl   time.Duration
	index uint64
	held  bool
}

// Acquire will attempt to acquire the lock and return immediately if it is
// held elsewhere. The lock expires after ttl unless it is refreshed, so a
// holder that dies does not keep it forever. A zero ttl never expires.
func Acquire(store kv.KV, key, value string, ttl time.Duration) (*Lock, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	index, err := store.Update(key, kv.Value{Data: []byte(value), TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &Lock{
		kv:    store,
		key:   key,
		value: value,
		ttl:   ttl,
		index: index,
		held:  true,
	}, nil
}

// Refresh will refresh the lock and its ttl. An error is returned if the lock
// was lost, likely due ttl expiration
func (l *Lock) Refresh() error {
	if !l.held {
		return ErrLockNotHeld
	}

	index, err := l.kv.Update(l.key, kv.Value{Data: []byte(l.value), Index: l.index, TTL: l.ttl})
	if err != nil {
		if l.kv.IsKeyNotFound(err) {
			err = ErrKeyNotFound
		}
		l.held = false
		return err
	}
	l.index = index
	return nil
}

// Release will release the lock and delete the key
func (l *Lock) Release() error {
	if !l.held {
		return ErrLockNotHeld
	}
	err := l.kv.Remove(l.key, l.index)
	if err != nil && l.kv.IsKeyNotFound(err) {
		err = ErrKeyNotFound
	}
	l.held = false
	return err
}

// Held reports whether the lock is still believed to be held
func (l *Lock) Held() bool {
	return l.held
}

// TTL is how long the lock lives without a refresh
func (l *Lock) TTL() time.Duration {
	return l.ttl
}
