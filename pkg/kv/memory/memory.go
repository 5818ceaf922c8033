// Package memory registers an in-process kv implementation under the memory
// scheme. It is meant for single node development setups and for tests;
// every New call returns an independent store.
package memory

import (
	"errors"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mistifyio/atmosphere/pkg/kv"
)

var (
	// ErrKeyNotFound is returned for operations on absent keys
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned when creating a key that is already present
	ErrKeyExists = errors.New("key already exists")
	// ErrIndexMismatch is returned when a compare-and-swap index is stale
	ErrIndexMismatch = errors.New("index mismatch")
	// ErrIsDir is returned when a directory is used as a value
	ErrIsDir = errors.New("key is a directory")
)

func init() {
	kv.Register("memory", New)
}

type entry struct {
	data    []byte
	index   uint64
	expires time.Time
}

type watcher struct {
	prefix string
	mu     sync.Mutex
	queue  []kv.Event
	notify chan struct{}
}

type mkv struct {
	mu       sync.RWMutex
	index    uint64
	entries  map[string]*entry
	watchers map[*watcher]struct{}
}

// New creates an empty store. addr is ignored.
func New(addr string) (kv.KV, error) {
	return &mkv{
		entries:  map[string]*entry{},
		watchers: map[*watcher]struct{}{},
	}, nil
}

func clean(key string) string {
	return path.Clean("/" + key)
}

// isUnder reports whether key lives beneath dir
func isUnder(key, dir string) bool {
	if dir == "/" {
		return true
	}
	return strings.HasPrefix(key, dir+"/")
}

// live returns the entry for key unless it has expired. mu must be held.
func (m *mkv) live(key string) (*entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		return nil, false
	}
	return e, true
}

// isDir reports whether any live key exists beneath key. mu must be held.
func (m *mkv) isDir(key string) bool {
	for k := range m.entries {
		if isUnder(k, key) {
			if _, ok := m.live(k); ok {
				return true
			}
		}
	}
	return false
}

// put stores data under key and notifies watchers. mu must be held for writing.
func (m *mkv) put(key string, data []byte, ttl time.Duration, t kv.EventType) uint64 {
	m.index++
	e := &entry{data: data, index: m.index}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.entries[key] = e
	m.notify(kv.Event{Key: key, Type: t, Value: kv.Value{Data: data, Index: m.index}})
	return m.index
}

// remove drops key and notifies watchers. mu must be held for writing.
func (m *mkv) remove(key string) {
	m.index++
	delete(m.entries, key)
	m.notify(kv.Event{Key: key, Type: kv.Delete, Value: kv.Value{Index: m.index}})
}

func (m *mkv) notify(event kv.Event) {
	for w := range m.watchers {
		if event.Key != w.prefix && !isUnder(event.Key, w.prefix) {
			continue
		}
		w.mu.Lock()
		w.queue = append(w.queue, event)
		w.mu.Unlock()
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

func (m *mkv) Delete(key string, recurse bool) error {
	key = clean(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.live(key)
	dir := m.isDir(key)
	if !exists && !dir {
		return ErrKeyNotFound
	}
	if dir && !recurse {
		return ErrIsDir
	}
	if exists {
		m.remove(key)
	}
	if recurse {
		for k := range m.entries {
			if isUnder(k, key) {
				m.remove(k)
			}
		}
	}
	return nil
}

func (m *mkv) Get(key string) (kv.Value, error) {
	key = clean(key)
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok {
		if m.isDir(key) {
			return kv.Value{}, ErrIsDir
		}
		return kv.Value{}, ErrKeyNotFound
	}
	return kv.Value{Data: e.data, Index: e.index}, nil
}

func (m *mkv) GetAll(prefix string) (map[string]kv.Value, error) {
	prefix = clean(prefix)
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.live(prefix); ok {
		return map[string]kv.Value{prefix: {Data: e.data, Index: e.index}}, nil
	}
	if !m.isDir(prefix) {
		return nil, ErrKeyNotFound
	}

	many := map[string]kv.Value{}
	for k := range m.entries {
		if !isUnder(k, prefix) {
			continue
		}
		if e, ok := m.live(k); ok {
			many[k] = kv.Value{Data: e.data, Index: e.index}
		}
	}
	return many, nil
}

// Keys returns the immediate children of key, sorted.
func (m *mkv) Keys(key string) ([]string, error) {
	key = clean(key)
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.isDir(key) {
		if _, ok := m.live(key); ok {
			return nil, errors.New("key is not a directory")
		}
		return nil, ErrKeyNotFound
	}

	children := map[string]struct{}{}
	for k := range m.entries {
		if !isUnder(k, key) {
			continue
		}
		if _, ok := m.live(k); !ok {
			continue
		}
		rest := strings.TrimPrefix(k, key)
		rest = strings.TrimPrefix(rest, "/")
		child := strings.SplitN(rest, "/", 2)[0]
		children[path.Join(key, child)] = struct{}{}
	}

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *mkv) Set(key, value string) error {
	key = clean(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isDir(key) {
		return ErrIsDir
	}
	t := kv.Create
	if _, ok := m.live(key); ok {
		t = kv.Update
	}
	m.put(key, []byte(value), 0, t)
	return nil
}

func (m *mkv) Update(key string, value kv.Value) (uint64, error) {
	key = clean(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if value.Index == 0 {
		if ok || m.isDir(key) {
			return 0, ErrKeyExists
		}
		return m.put(key, value.Data, value.TTL, kv.Create), nil
	}
	if !ok {
		return 0, ErrKeyNotFound
	}
	if e.index != value.Index {
		return 0, ErrIndexMismatch
	}
	return m.put(key, value.Data, value.TTL, kv.Update), nil
}

func (m *mkv) Remove(key string, index uint64) error {
	key = clean(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return ErrKeyNotFound
	}
	if e.index != index {
		return ErrIndexMismatch
	}
	m.remove(key)
	return nil
}

func (m *mkv) IsKeyNotFound(err error) bool {
	return err == ErrKeyNotFound
}

// Watch delivers events for changes under prefix made after the call. The
// index argument is accepted for interface compatibility; history is not kept.
func (m *mkv) Watch(prefix string, index uint64, stop chan struct{}) (chan kv.Event, chan error, error) {
	w := &watcher{
		prefix: clean(prefix),
		notify: make(chan struct{}, 1),
	}

	m.mu.Lock()
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	events := make(chan kv.Event)
	errs := make(chan error)
	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.watchers, w)
			m.mu.Unlock()
			close(events)
		}()

		for {
			w.mu.Lock()
			pending := w.queue
			w.queue = nil
			w.mu.Unlock()

			for _, event := range pending {
				select {
				case events <- event:
				case <-stop:
					return
				}
			}

			select {
			case <-w.notify:
			case <-stop:
				return
			}
		}
	}()

	return events, errs, nil
}

// Ping always succeeds
func (m *mkv) Ping() error {
	return nil
}
