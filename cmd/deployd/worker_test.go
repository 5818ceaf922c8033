package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/armon/go-metrics"
	"github.com/beanstalkd/go-beanstalk"
	"github.com/mistifyio/atmosphere/internal/tests/common"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/mistifyio/atmosphere/pkg/lock"
	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"gopkg.in/tomb.v2"
)

type WorkerTestSuite struct {
	common.Suite
	Jobs   *jobqueue.Client
	Sink   *metrics.InmemSink
	Worker *worker
	Calls  []string
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) SetupSuite() {
	s.Suite.SetupSuite()
	log.SetLevel(log.FatalLevel)
}

func (s *WorkerTestSuite) SetupTest() {
	s.Suite.SetupTest()
	s.Jobs = jobqueue.NewStoreClient(s.KV)
	s.Calls = nil

	s.Sink = metrics.NewInmemSink(metricsInterval, metricsRetain)
	conf := metrics.DefaultConfig("deploydTEST")
	conf.EnableHostname = false
	m, _ := metrics.New(conf, s.Sink)

	s.Worker = &worker{
		context: s.Context,
		metrics: m,
		handlers: map[string]Handler{
			jobqueue.ActionDeploy: func(ctx context.Context, job *jobqueue.Job) error {
				s.Calls = append(s.Calls, job.Target)
				held, err := s.KV.Get(lockKey(job.Target))
				s.NoError(err, "target should be locked while running")
				s.Equal(job.ID, string(held.Data))
				return nil
			},
			jobqueue.ActionReady: func(ctx context.Context, job *jobqueue.Job) error {
				return errors.New("unreachable")
			},
		},
	}
}

func (s *WorkerTestSuite) newJob(action string) *jobqueue.Job {
	j := s.Jobs.NewJob()
	j.Action = action
	j.Target = uuid.New()
	s.Require().NoError(j.Save())
	return j
}

func (s *WorkerTestSuite) TestProcess() {
	job := s.newJob(jobqueue.ActionDeploy)
	s.NoError(s.Worker.process(context.Background(), job))
	s.Equal([]string{job.Target}, s.Calls)

	saved, err := s.Jobs.Job(job.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusDone, saved.Status)
	s.False(saved.StartedAt.IsZero())
	s.False(saved.FinishedAt.IsZero())

	_, err = s.KV.Get(lockKey(job.Target))
	s.True(s.KV.IsKeyNotFound(err), "lock should be released")
}

func (s *WorkerTestSuite) TestProcessHandlerError() {
	job := s.newJob(jobqueue.ActionReady)
	s.EqualError(s.Worker.process(context.Background(), job), "unreachable")

	saved, err := s.Jobs.Job(job.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusError, saved.Status)
	s.Equal("unreachable", saved.Error)
}

func (s *WorkerTestSuite) TestProcessNoHandler() {
	job := s.newJob(jobqueue.ActionUtility)
	s.Error(s.Worker.process(context.Background(), job))

	saved, err := s.Jobs.Job(job.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusError, saved.Status)
}

func (s *WorkerTestSuite) TestProcessLocked() {
	job := s.newJob(jobqueue.ActionDeploy)
	l, err := lock.Acquire(s.KV, lockKey(job.Target), "someone else", time.Minute)
	s.Require().NoError(err)

	s.Equal(errTargetLocked, s.Worker.process(context.Background(), job))
	s.Empty(s.Calls)

	saved, err := s.Jobs.Job(job.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusNew, saved.Status, "locked jobs are retried later")
	s.NoError(l.Release())
}

func (s *WorkerTestSuite) TestProcessRefreshesLock() {
	s.Worker.lockTTL = 90 * time.Millisecond
	s.Worker.handlers[jobqueue.ActionRedeploy] = func(ctx context.Context, job *jobqueue.Job) error {
		time.Sleep(200 * time.Millisecond)
		held, err := s.KV.Get(lockKey(job.Target))
		s.NoError(err, "lock should outlive its ttl while the job runs")
		s.Equal(job.ID, string(held.Data))
		return ctx.Err()
	}

	job := s.newJob(jobqueue.ActionRedeploy)
	s.NoError(s.Worker.process(context.Background(), job))

	_, err := s.KV.Get(lockKey(job.Target))
	s.True(s.KV.IsKeyNotFound(err), "lock should be released")
}

func (s *WorkerTestSuite) TestProcessLostLock() {
	s.Worker.lockTTL = 90 * time.Millisecond
	s.Worker.handlers[jobqueue.ActionRedeploy] = func(ctx context.Context, job *jobqueue.Job) error {
		s.NoError(s.KV.Delete(lockKey(job.Target), false))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return errors.New("job was not canceled")
		}
	}

	job := s.newJob(jobqueue.ActionRedeploy)
	s.Equal(context.Canceled, s.Worker.process(context.Background(), job))

	saved, err := s.Jobs.Job(job.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusError, saved.Status)
}

func (s *WorkerTestSuite) TestStaleLockExpires() {
	job := s.newJob(jobqueue.ActionDeploy)
	_, err := lock.Acquire(s.KV, lockKey(job.Target), "crashed worker", 50*time.Millisecond)
	s.Require().NoError(err)
	s.Equal(errTargetLocked, s.Worker.process(context.Background(), job))

	time.Sleep(100 * time.Millisecond)
	s.NoError(s.Worker.process(context.Background(), job))
	s.Equal([]string{job.Target}, s.Calls)
}

func (s *WorkerTestSuite) TestConsumeStops() {
	var t tomb.Tomb
	calls := 0
	next := func(stop <-chan struct{}) (*jobqueue.Task, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("invalid job id")
		}
		<-stop
		return nil, jobqueue.ErrStopped
	}
	t.Go(func() error { return s.Worker.consume(&t, next) })
	t.Kill(nil)
	s.NoError(t.Wait())
}

func (s *WorkerTestSuite) TestConsumeConnError() {
	var t tomb.Tomb
	connErr := beanstalk.ConnError{Op: "reserve-with-timeout", Err: errors.New("broken pipe")}
	next := func(stop <-chan struct{}) (*jobqueue.Task, error) {
		return nil, connErr
	}
	t.Go(func() error { return s.Worker.consume(&t, next) })
	s.Equal(connErr, t.Wait())
}
