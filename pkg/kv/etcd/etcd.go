// Package etcd registers the etcd (v2 keys API) kv implementation.
package etcd

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"go.etcd.io/etcd/client/v2"
)

const requestTimeout = 10 * time.Second

func init() {
	kv.Register("etcd", New)
}

type ekv struct {
	c    client.Client
	keys client.KeysAPI
}

// New creates an etcd backed kv.KV. addr may use the etcd, http or https
// scheme; etcd is synonymous with http.
func New(addr string) (kv.KV, error) {
	if strings.HasPrefix(addr, "etcd://") {
		addr = "http://" + strings.TrimPrefix(addr, "etcd://")
	}
	c, err := client.New(client.Config{
		Endpoints:               []string{addr},
		HeaderTimeoutPerRequest: requestTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &ekv{c: c, keys: client.NewKeysAPI(c)}, nil
}

func ctxTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func (e *ekv) Delete(key string, recurse bool) error {
	ctx, cancel := ctxTimeout()
	defer cancel()
	_, err := e.keys.Delete(ctx, key, &client.DeleteOptions{Recursive: recurse})
	return err
}

func (e *ekv) Get(key string) (kv.Value, error) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	resp, err := e.keys.Get(ctx, key, nil)
	if err != nil {
		return kv.Value{}, err
	}

	if resp.Node.Dir {
		return kv.Value{}, errors.New("key is a directory")
	}

	return kv.Value{Data: []byte(resp.Node.Value), Index: resp.Node.ModifiedIndex}, nil
}

func (e *ekv) GetAll(prefix string) (map[string]kv.Value, error) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	resp, err := e.keys.Get(ctx, prefix, &client.GetOptions{Recursive: true})
	if err != nil {
		return nil, err
	}

	if !resp.Node.Dir {
		return map[string]kv.Value{
			resp.Node.Key: {Data: []byte(resp.Node.Value), Index: resp.Node.ModifiedIndex},
		}, nil
	}

	many := map[string]kv.Value{}
	var recursive func(client.Nodes)
	recursive = func(nodes client.Nodes) {
		for _, node := range nodes {
			if node.Dir {
				recursive(node.Nodes)
			} else {
				many[node.Key] = kv.Value{Data: []byte(node.Value), Index: node.ModifiedIndex}
			}
		}
	}
	recursive(resp.Node.Nodes)

	return many, nil
}

func (e *ekv) Keys(key string) ([]string, error) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	resp, err := e.keys.Get(ctx, key, &client.GetOptions{Sort: true})
	if err != nil {
		return nil, err
	}

	if !resp.Node.Dir {
		return nil, errors.New("key is not a directory")
	}

	nodes := resp.Node.Nodes
	keys := make([]string, len(nodes))
	for i := range nodes {
		keys[i] = nodes[i].Key
	}

	return keys, nil
}

func (e *ekv) Set(key, value string) error {
	ctx, cancel := ctxTimeout()
	defer cancel()
	_, err := e.keys.Set(ctx, key, value, nil)
	return err
}

func (e *ekv) Update(key string, value kv.Value) (uint64, error) {
	opts := &client.SetOptions{TTL: value.TTL}
	if value.Index == 0 {
		opts.PrevExist = client.PrevNoExist
	} else {
		opts.PrevIndex = value.Index
	}

	ctx, cancel := ctxTimeout()
	defer cancel()
	resp, err := e.keys.Set(ctx, key, string(value.Data), opts)
	if err != nil {
		return 0, err
	}
	return resp.Node.ModifiedIndex, nil
}

func (e *ekv) Remove(key string, index uint64) error {
	ctx, cancel := ctxTimeout()
	defer cancel()
	_, err := e.keys.Delete(ctx, key, &client.DeleteOptions{PrevIndex: index})
	return err
}

func (e *ekv) IsKeyNotFound(err error) bool {
	return client.IsKeyNotFound(err)
}

var typeE2KV = map[string]kv.EventType{
	"compareAndSwap":   kv.Update,
	"compareAndDelete": kv.Delete,
	"create":           kv.Create,
	"delete":           kv.Delete,
	"expire":           kv.Delete,
	"get":              kv.Get,
	"set":              kv.Update,
	"update":           kv.Update,
}

func (e *ekv) Watch(prefix string, index uint64, stop chan struct{}) (chan kv.Event, chan error, error) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stop
		cancel()
	}()

	w := e.keys.Watcher(prefix, &client.WatcherOptions{AfterIndex: index, Recursive: true})
	events := make(chan kv.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			resp, err := w.Next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			event := kv.Event{
				Type: typeE2KV[resp.Action],
				Key:  resp.Node.Key,
				Value: kv.Value{
					Data:  []byte(resp.Node.Value),
					Index: resp.Node.ModifiedIndex,
				},
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs, nil
}

// Ping syncs the cluster member list, failing if no member answers.
func (e *ekv) Ping() error {
	ctx, cancel := ctxTimeout()
	defer cancel()
	return e.c.Sync(ctx)
}
