package jobqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

// StoreSuite covers the job record operations that need no beanstalk
type StoreSuite struct {
	suite.Suite
	KV     kv.KV
	Client *jobqueue.Client
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	var err error
	s.KV, err = kv.New("memory://")
	s.Require().NoError(err)
	s.Client = jobqueue.NewStoreClient(s.KV)
}

func (s *StoreSuite) newJob() *jobqueue.Job {
	j := s.Client.NewJob()
	j.Action = jobqueue.ActionDeploy
	j.Target = uuid.New()
	s.Require().NoError(j.Save())
	return j
}

func (s *StoreSuite) TestJobWithoutArgs() {
	j := s.newJob()

	loaded, err := s.Client.Job(j.ID)
	s.Require().NoError(err)
	s.NotNil(loaded.Args)
	loaded.Args["playbook"] = "10_setup"
	s.NoError(loaded.Save())
}

func (s *StoreSuite) TestWaitJob() {
	j := s.newJob()

	go func() {
		time.Sleep(20 * time.Millisecond)
		worker, _ := s.Client.Job(j.ID)
		_ = worker.Start()
		time.Sleep(20 * time.Millisecond)
		_ = worker.Finish(nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done, err := s.Client.WaitJob(ctx, j.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusDone, done.Status)
}

func (s *StoreSuite) TestWaitJobTimeout() {
	j := s.newJob()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	waited, err := s.Client.WaitJob(ctx, j.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusNew, waited.Status, "unfinished job is returned as is")
}

func (s *StoreSuite) TestWaitJobFinished() {
	j := s.newJob()
	s.Require().NoError(j.Finish(nil))

	waited, err := s.Client.WaitJob(context.Background(), j.ID)
	s.NoError(err)
	s.True(waited.Done())

	_, err = s.Client.WaitJob(context.Background(), uuid.New())
	s.True(s.KV.IsKeyNotFound(err))
}
