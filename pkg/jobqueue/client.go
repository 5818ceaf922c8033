// Package jobqueue queues atmosphere work through beanstalkd. Job records
// live in the kv; only their ids travel through the tubes.
package jobqueue

import (
	"errors"
	"sync"
	"time"

	"github.com/beanstalkd/go-beanstalk"
	"github.com/mistifyio/atmosphere/pkg/hostport"
	"github.com/mistifyio/atmosphere/pkg/kv"
)

// Beanstalk parameters
const (
	priority       = uint32(0)
	delay          = 0 * time.Second
	ttr            = 60 * time.Minute
	reserveTimeout = 5 * time.Second
	reserveDelay   = 5 * time.Second
	releaseDelay   = 30 * time.Second

	// DefaultPort is dialed when the beanstalk address has no port
	DefaultPort = "11300"
)

var (
	// ErrStopped is returned by a Next*Task call whose stop channel was closed
	ErrStopped = errors.New("stopped waiting for task")
	// ErrNoQueue is returned for task operations on a store only client
	ErrNoQueue = errors.New("client has no beanstalk connection")
)

// Client is for interacting with the job queue
type Client struct {
	mu    sync.Mutex
	conn  *beanstalk.Conn
	kv    kv.KV
	tubes *tubes
}

// NewClient creates a new Client and initializes the beanstalk connection + tubes
func NewClient(bstalk string, store kv.KV) (*Client, error) {
	addr, err := hostport.WithDefaultPort(bstalk, DefaultPort)
	if err != nil {
		return nil, err
	}
	conn, err := beanstalk.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	client := &Client{
		conn: conn,
		kv:   store,
	}
	client.tubes = newTubes(conn, &client.mu)
	return client, nil
}

// NewStoreClient creates a Client without a beanstalk connection. It reads
// and writes job records only.
func NewStoreClient(store kv.KV) *Client {
	return &Client{kv: store}
}

// Close closes the beanstalk connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// AddTask creates a new task in the appropriate beanstalk queue
func (c *Client) AddTask(j *Job) (uint64, error) {
	if c.tubes == nil {
		return 0, ErrNoQueue
	}
	return c.tubes.forAction(j.Action).Put(j.ID)
}

// Enqueue creates and saves a job, then queues a task for it
func (c *Client) Enqueue(action, target string, args map[string]string) (*Job, error) {
	j := c.NewJob()
	j.Action = action
	j.Target = target
	for k, v := range args {
		j.Args[k] = v
	}
	if err := j.Save(); err != nil {
		return nil, err
	}
	if _, err := c.AddTask(j); err != nil {
		return nil, err
	}
	return j, nil
}

// DeleteTask removes a task from beanstalk by id
func (c *Client) DeleteTask(id uint64) error {
	if c.conn == nil {
		return ErrNoQueue
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Delete(id)
}

// NextDeployTask returns the next task from the deploy tube
func (c *Client) NextDeployTask(stop <-chan struct{}) (*Task, error) {
	if c.tubes == nil {
		return nil, ErrNoQueue
	}
	return c.nextTask(c.tubes.deploy, stop)
}

// NextAccountTask returns the next task from the accounts tube
func (c *Client) NextAccountTask(stop <-chan struct{}) (*Task, error) {
	if c.tubes == nil {
		return nil, ErrNoQueue
	}
	return c.nextTask(c.tubes.accounts, stop)
}

// nextTask returns the next task from a tubeSet and loads the Job
func (c *Client) nextTask(ts *tubeSet, stop <-chan struct{}) (*Task, error) {
	if ts == nil {
		return nil, ErrNoQueue
	}
	id, body, err := ts.Reserve(stop)
	if err != nil {
		return nil, err
	}

	task := &Task{
		ID:     id,
		JobID:  body,
		client: c,
	}

	if err := task.RefreshJob(); err != nil {
		return task, err
	}
	return task, nil
}
