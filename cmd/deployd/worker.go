package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/armon/go-metrics"
	"github.com/beanstalkd/go-beanstalk"
	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/mistifyio/atmosphere/pkg/lock"
	log "github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"
)

// LockPath is where targets are locked while a job runs against them
var LockPath = "atmosphere/locks/"

// DefaultLockTTL bounds how long a crashed worker keeps a target locked
const DefaultLockTTL = time.Minute

// errTargetLocked means another job holds the target; the task is retried
var errTargetLocked = errors.New("target is locked by another job")

// Handler performs a job's action
type Handler func(ctx context.Context, job *jobqueue.Job) error

// nextFunc reserves the next task of a tube
type nextFunc func(stop <-chan struct{}) (*jobqueue.Task, error)

type worker struct {
	context  *atmosphere.Context
	handlers map[string]Handler
	metrics  *metrics.Metrics
	lockTTL  time.Duration
}

func lockKey(target string) string {
	return filepath.Join(LockPath, target)
}

// process runs a job while holding the lock on its target and records the
// outcome on the job
func (w *worker) process(ctx context.Context, job *jobqueue.Job) error {
	logFields := log.Fields{
		"job":    job.ID,
		"action": job.Action,
		"target": job.Target,
	}

	handler, ok := w.handlers[job.Action]
	if !ok {
		err := fmt.Errorf("no handler for action %q", job.Action)
		if ferr := job.Finish(err); ferr != nil {
			log.WithFields(logFields).WithField("error", ferr).Error("unable to save job")
		}
		return err
	}

	ttl := w.lockTTL
	if ttl == 0 {
		ttl = DefaultLockTTL
	}
	l, err := lock.Acquire(w.context.KV(), lockKey(job.Target), job.ID, ttl)
	if err != nil {
		log.WithFields(logFields).WithField("error", err).Info("target locked")
		return errTargetLocked
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		keepLock(l, stop, cancel, logFields)
	}()
	defer func() {
		close(stop)
		<-refreshed
		cancel()
		if !l.Held() {
			return
		}
		if err := l.Release(); err != nil {
			log.WithFields(logFields).WithField("error", err).Error("unable to release lock")
		}
	}()

	if err := job.Start(); err != nil {
		log.WithFields(logFields).WithField("error", err).Error("unable to save job")
		return err
	}
	log.WithFields(logFields).Info("job started")

	herr := handler(ctx, job)
	if herr != nil {
		log.WithFields(logFields).WithField("error", herr).Error("job failed")
	}
	if err := job.Finish(herr); err != nil {
		log.WithFields(logFields).WithField("error", err).Error("unable to save job")
		return err
	}
	log.WithFields(logFields).WithField("status", job.Status).Info("job status info")

	w.updateMetrics(job)
	return herr
}

// keepLock refreshes l until stop is closed. Losing the lock cancels the job.
func keepLock(l *lock.Lock, stop <-chan struct{}, cancel context.CancelFunc, logFields log.Fields) {
	ticker := time.NewTicker(l.TTL() / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.Refresh(); err != nil {
				log.WithFields(logFields).WithField("error", err).Error("lost lock")
				cancel()
				return
			}
		}
	}
}

// consume handles tasks until the tomb starts dying
func (w *worker) consume(t *tomb.Tomb, next nextFunc) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-t.Dying()
		cancel()
	}()

	for {
		task, err := next(t.Dying())
		if err != nil {
			if err == jobqueue.ErrStopped {
				return nil
			}
			if _, ok := err.(beanstalk.ConnError); ok {
				// You have failed me for the last time
				return err
			}
			log.WithFields(log.Fields{
				"task":  task,
				"error": err,
			}).Error("invalid task")
			if task != nil {
				if err := task.Bury(); err != nil {
					log.WithFields(log.Fields{
						"task":  task.ID,
						"error": err,
					}).Error("unable to bury")
				}
			}
			continue
		}

		logFields := log.Fields{"task": task.ID, "job": task.JobID}
		if task.Job.Done() {
			log.WithFields(logFields).Info("removing finished task")
			w.deleteTask(task)
			continue
		}

		switch err := w.process(ctx, task.Job); err {
		case errTargetLocked:
			log.WithFields(logFields).Info("releasing task")
			if err := task.Release(); err != nil {
				log.WithFields(logFields).WithField("error", err).Error("unable to release")
			}
		default:
			w.deleteTask(task)
		}
	}
}

func (w *worker) deleteTask(task *jobqueue.Task) {
	if err := task.Delete(); err != nil {
		log.WithFields(log.Fields{
			"task":  task.ID,
			"error": err,
		}).Error("unable to delete")
	}
}

func (w *worker) updateMetrics(job *jobqueue.Job) {
	if w.metrics == nil {
		return
	}
	start := job.StartedAt
	if start.IsZero() {
		start = time.Now()
	}
	w.metrics.MeasureSince([]string{"action", job.Action, "time"}, start)
	w.metrics.MeasureSince([]string{"action", "time"}, start)
	w.metrics.IncrCounter([]string{"action", job.Action, "count"}, 1)
	w.metrics.IncrCounter([]string{"action", "count"}, 1)
	if job.Error != "" {
		w.metrics.IncrCounter([]string{"action", job.Action, "error"}, 1)
		w.metrics.IncrCounter([]string{"action", "error"}, 1)
	}
}
