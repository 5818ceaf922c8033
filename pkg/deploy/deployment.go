// Package deploy prepares instances after boot. Small shell scripts are
// pushed and run over SSH as ordered deployments, and Ansible playbooks are
// run against the instance with their per-host results checked.
package deploy

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
)

// Node identifies the machine a deployment runs on
type Node struct {
	ID string
	IP string
}

// Client moves files to and runs commands on a node
type Client interface {
	// Put writes contents to path with mode
	Put(path, contents string, mode os.FileMode) error
	// Run executes cmd. A command that ran and exited non-zero is reported
	// through exitStatus, not err.
	Run(ctx context.Context, cmd string) (stdout, stderr string, exitStatus int, err error)
	Delete(path string) error
}

// Deployment is a single step of preparing a node
type Deployment interface {
	Run(ctx context.Context, node *Node, client Client) error
}

// ScriptDeployment uploads a script and executes it
type ScriptDeployment struct {
	Script string
	// Name is the path the script is uploaded to. Relative names are run
	// from the login directory.
	Name string
	// Delete removes the script after it ran
	Delete bool

	Stdout     string
	Stderr     string
	ExitStatus int
}

// NewScriptDeployment creates a ScriptDeployment. An empty name is replaced
// with a generated one.
func NewScriptDeployment(script, name string, del bool) *ScriptDeployment {
	if name == "" {
		name = fmt.Sprintf("./deployment_%s.sh", strings.Replace(uuid.New(), "-", "", -1)[:12])
	}
	return &ScriptDeployment{
		Script: script,
		Name:   name,
		Delete: del,
	}
}

// Run uploads, executes and optionally deletes the script. The outcome of
// the script is recorded, only transport problems are returned.
func (s *ScriptDeployment) Run(ctx context.Context, node *Node, client Client) error {
	if err := client.Put(s.Name, s.Script, 0755); err != nil {
		return err
	}
	stdout, stderr, status, err := client.Run(ctx, s.Name)
	if err != nil {
		return err
	}
	s.Stdout, s.Stderr, s.ExitStatus = stdout, stderr, status
	if s.Delete {
		return client.Delete(s.Name)
	}
	return nil
}

// WriteFileDeployment installs a file on the node
type WriteFileDeployment struct {
	FullText string
	Target   string
}

// Run writes the file
func (w *WriteFileDeployment) Run(ctx context.Context, node *Node, client Client) error {
	return client.Put(w.Target, w.FullText, 0644)
}

// RetryDelay is the pause after the given failed attempt: 4s, 8s, 16s, ...
func RetryDelay(attempt int) time.Duration {
	return time.Duration(2*(1<<uint(attempt))) * time.Second
}

// LoggedScriptDeployment is a ScriptDeployment that retries non-zero exits
// and logs what the script printed
type LoggedScriptDeployment struct {
	ScriptDeployment
	// Attempts is the number of runs allowed while the exit status is
	// non-zero. Values below one are treated as one.
	Attempts int
	// Backoff overrides RetryDelay
	Backoff func(attempt int) time.Duration
}

// NewLoggedScriptDeployment creates a LoggedScriptDeployment. When logfile is
// set the script's output is appended to it on the node.
func NewLoggedScriptDeployment(script, name string, del bool, logfile string, attempts int) *LoggedScriptDeployment {
	if logfile != "" {
		script = fmt.Sprintf("%s >> %s 2>&1", script, logfile)
	}
	return &LoggedScriptDeployment{
		ScriptDeployment: *NewScriptDeployment(script, name, del),
		Attempts:         attempts,
	}
}

// Run executes the script until it exits zero or the attempts run out
func (l *LoggedScriptDeployment) Run(ctx context.Context, node *Node, client Client) error {
	attempts := l.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := l.Backoff
	if backoff == nil {
		backoff = RetryDelay
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := l.ScriptDeployment.Run(ctx, node, client); err != nil {
			return err
		}
		if l.ExitStatus == 0 || attempt == attempts {
			break
		}

		wait := backoff(attempt)
		log.WithFields(log.Fields{
			"node":    node.ID,
			"script":  l.Name,
			"status":  l.ExitStatus,
			"attempt": fmt.Sprintf("%d/%d", attempt, attempts),
			"retry":   wait.String(),
		}).Debug("script exited non-zero")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	fields := log.Fields{"node": node.ID, "script": l.Name}
	if l.Stdout != "" {
		log.WithFields(fields).WithField("stdout", l.Stdout).Debug("script output")
	}
	if l.Stderr != "" {
		log.WithFields(fields).WithField("stderr", l.Stderr).Warn("script error output")
	}
	return nil
}

// MultiStepDeployment runs deployments in order
type MultiStepDeployment struct {
	Steps []Deployment
}

// NewMultiStepDeployment creates a MultiStepDeployment
func NewMultiStepDeployment(steps ...Deployment) *MultiStepDeployment {
	return &MultiStepDeployment{Steps: steps}
}

// Add appends a step
func (m *MultiStepDeployment) Add(step Deployment) {
	m.Steps = append(m.Steps, step)
}

// Run runs each step, stopping at the first error
func (m *MultiStepDeployment) Run(ctx context.Context, node *Node, client Client) error {
	for _, step := range m.Steps {
		if err := step.Run(ctx, node, client); err != nil {
			return err
		}
	}
	return nil
}
