package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
)

var (
	// JobPath is the path in the config store
	JobPath = "atmosphere/jobs/"

	// ErrWatchClosed is returned when the store stops reporting changes to a
	// job being waited on
	ErrWatchClosed = errors.New("watch closed while waiting for job")
)

// Job Status
const (
	JobStatusNew     = "new"
	JobStatusWorking = "working"
	JobStatusDone    = "done"
	JobStatusError   = "error"
)

// Job actions. Instance actions target an instance id, account actions a
// username.
const (
	ActionDeploy          = "deploy"
	ActionRedeploy        = "redeploy"
	ActionReady           = "ready"
	ActionCheckNetworking = "check-networking"
	ActionUtility         = "utility"
	ActionCreateAccount   = "create-account"
	ActionDeleteAccount   = "delete-account"
)

// actionTubes maps every known action to the tube its tasks are queued on
var actionTubes = map[string]string{
	ActionDeploy:          deployTube,
	ActionRedeploy:        deployTube,
	ActionReady:           deployTube,
	ActionCheckNetworking: deployTube,
	ActionUtility:         deployTube,
	ActionCreateAccount:   accountsTube,
	ActionDeleteAccount:   accountsTube,
}

// InstanceActions are the actions that can be requested on an instance
var InstanceActions = []string{
	ActionDeploy,
	ActionRedeploy,
	ActionReady,
	ActionCheckNetworking,
	ActionUtility,
}

// IsInstanceAction reports whether action operates on an instance
func IsInstanceAction(action string) bool {
	for _, a := range InstanceActions {
		if a == action {
			return true
		}
	}
	return false
}

// Job is a single unit of work such as deploying an instance or creating an
// account.
type Job struct {
	ID            string            `json:"id"`
	Action        string            `json:"action"`
	Target        string            `json:"target"`
	Args          map[string]string `json:"args,omitempty"`
	Error         string            `json:"error,omitempty"`
	Status        string            `json:"status,omitempty"`
	StartedAt     time.Time         `json:"started_at,omitempty"`
	FinishedAt    time.Time         `json:"finished_at,omitempty"`
	modifiedIndex uint64
	client        *Client
}

// NewJob creates a new job.
func (c *Client) NewJob() *Job {
	return &Job{
		ID:     uuid.New(),
		Args:   map[string]string{},
		Status: JobStatusNew,
		client: c,
	}
}

// Job retrieves a single job from the data store.
func (c *Client) Job(id string) (*Job, error) {
	if uuid.Parse(id) == nil {
		return nil, errors.New("invalid job id")
	}
	j := &Job{
		ID:     id,
		client: c,
	}
	if err := j.Refresh(); err != nil {
		return nil, err
	}
	return j, nil
}

// WaitJob blocks until the job reaches a final status or ctx is done, and
// returns the latest copy of the job either way.
func (c *Client) WaitJob(ctx context.Context, id string) (*Job, error) {
	j, err := c.Job(id)
	if err != nil || j.Done() {
		return j, err
	}

	stop := make(chan struct{})
	defer close(stop)
	events, errs, err := c.kv.Watch(j.key(), 0, stop)
	if err != nil {
		return nil, err
	}

	// the job may have finished before the watch started
	if err := j.Refresh(); err != nil {
		return nil, err
	}
	for !j.Done() {
		select {
		case <-ctx.Done():
			return j, nil
		case _, ok := <-events:
			if !ok {
				return nil, ErrWatchClosed
			}
			if err := j.Refresh(); err != nil {
				return nil, err
			}
		case err := <-errs:
			return nil, err
		}
	}
	return j, nil
}

// Validate ensures required fields are populated.
func (j *Job) Validate() error {
	if j.ID == "" {
		return errors.New("ID is required")
	}
	if j.Action == "" {
		return errors.New("Action is required")
	}
	if _, ok := actionTubes[j.Action]; !ok {
		return fmt.Errorf("unknown action %q", j.Action)
	}
	if j.Target == "" {
		return errors.New("Target is required")
	}
	if j.Status == "" {
		return errors.New("Status is required")
	}
	return nil
}

// key is a helper to generate the config store key.
func (j *Job) key() string {
	return filepath.Join(JobPath, j.ID)
}

// Save persists a job.
func (j *Job) Save() error {
	if err := j.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(j)
	if err != nil {
		return err
	}

	index, err := j.client.kv.Update(j.key(), kv.Value{Data: v, Index: j.modifiedIndex})
	if err != nil {
		return err
	}
	j.modifiedIndex = index
	return nil
}

// Refresh reloads a Job from the data store.
func (j *Job) Refresh() error {
	value, err := j.client.kv.Get(j.key())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(value.Data, j); err != nil {
		return err
	}
	if j.Args == nil {
		j.Args = map[string]string{}
	}
	j.modifiedIndex = value.Index
	return nil
}

// Start marks the job as being worked on
func (j *Job) Start() error {
	j.Status = JobStatusWorking
	j.StartedAt = time.Now().UTC()
	return j.Save()
}

// Finish records the outcome of the job. A nil err marks it done.
func (j *Job) Finish(err error) error {
	j.FinishedAt = time.Now().UTC()
	if err != nil {
		j.Status = JobStatusError
		j.Error = err.Error()
	} else {
		j.Status = JobStatusDone
		j.Error = ""
	}
	return j.Save()
}

// Done reports whether the job reached a final status
func (j *Job) Done() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusError
}
