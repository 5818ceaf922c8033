package jobqueue_test

import (
	"errors"
	"testing"

	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

func TestJobSuite(t *testing.T) {
	suite.Run(t, new(JobSuite))
}

// JobSuite only needs the kv, so it runs without beanstalkd
type JobSuite struct {
	suite.Suite
	KV     kv.KV
	Client *jobqueue.Client
}

func (s *JobSuite) SetupTest() {
	var err error
	s.KV, err = kv.New("memory://")
	s.Require().NoError(err)
	s.Client = jobqueue.NewStoreClient(s.KV)
}

func (s *JobSuite) TestNewJob() {
	j := s.Client.NewJob()
	s.NotNil(uuid.Parse(j.ID))
	s.Equal(jobqueue.JobStatusNew, j.Status)
	s.NotNil(j.Args)
}

func (s *JobSuite) TestValidate() {
	tests := []struct {
		description string
		id          string
		action      string
		target      string
		status      string
		expectedErr bool
	}{
		{"missing id", "", jobqueue.ActionDeploy, uuid.New(), "new", true},
		{"missing action", uuid.New(), "", uuid.New(), "new", true},
		{"unknown action", uuid.New(), "reboot", uuid.New(), "new", true},
		{"missing target", uuid.New(), jobqueue.ActionDeploy, "", "new", true},
		{"missing status", uuid.New(), jobqueue.ActionDeploy, uuid.New(), "", true},
		{"nothing missing", uuid.New(), jobqueue.ActionDeploy, uuid.New(), "new", false},
		{"account action", uuid.New(), jobqueue.ActionCreateAccount, "alice", "new", false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		j := &jobqueue.Job{
			ID:     test.id,
			Action: test.action,
			Target: test.target,
			Status: test.status,
		}
		err := j.Validate()
		if test.expectedErr {
			s.Error(err, msg("should be invalid"))
		} else {
			s.NoError(err, msg("should be valid"))
		}
	}
}

func (s *JobSuite) TestSave() {
	goodJob := s.Client.NewJob()
	goodJob.Action = jobqueue.ActionDeploy
	goodJob.Target = uuid.New()

	tests := []struct {
		description string
		job         *jobqueue.Job
		expectedErr bool
	}{
		{"invalid job", s.Client.NewJob(), true},
		{"valid job", goodJob, false},
		{"existing job", goodJob, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		err := test.job.Save()
		if test.expectedErr {
			s.Error(err, msg("should fail"))
		} else {
			s.NoError(err, msg("should succeed"))
		}
	}

	stale, err := s.Client.Job(goodJob.ID)
	s.Require().NoError(err)
	goodJob.Args["playbook"] = "10_setup"
	s.NoError(goodJob.Save())
	stale.Args["playbook"] = "20_other"
	s.Error(stale.Save(), "stale copy should not clobber")
}

func (s *JobSuite) TestJob() {
	j := s.Client.NewJob()
	j.Action = jobqueue.ActionCreateAccount
	j.Target = "alice"
	j.Args["admin_role"] = "true"
	s.Require().NoError(j.Save())

	tests := []struct {
		description string
		id          string
		expectedErr bool
	}{
		{"invalid id", "foo", true},
		{"nonexistent id", uuid.New(), true},
		{"real id", j.ID, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		job, err := s.Client.Job(test.id)
		if test.expectedErr {
			s.Error(err, msg("should fail"))
			s.Nil(job, msg("fail should not return a job"))
		} else {
			s.NoError(err, msg("should succeed"))
			s.Equal(j.Args, job.Args, msg("should load args"))
		}
	}
}

func (s *JobSuite) TestStartFinish() {
	j := s.Client.NewJob()
	j.Action = jobqueue.ActionReady
	j.Target = uuid.New()
	s.Require().NoError(j.Save())

	s.NoError(j.Start())
	s.Equal(jobqueue.JobStatusWorking, j.Status)
	s.False(j.StartedAt.IsZero())
	s.False(j.Done())

	s.NoError(j.Finish(errors.New("host unreachable")))
	s.Equal(jobqueue.JobStatusError, j.Status)
	s.Equal("host unreachable", j.Error)
	s.True(j.Done())

	loaded, err := s.Client.Job(j.ID)
	s.NoError(err)
	s.Equal(jobqueue.JobStatusError, loaded.Status)

	s.NoError(loaded.Finish(nil))
	s.Equal(jobqueue.JobStatusDone, loaded.Status)
	s.Empty(loaded.Error)
}

func (s *JobSuite) TestIsInstanceAction() {
	s.True(jobqueue.IsInstanceAction(jobqueue.ActionDeploy))
	s.True(jobqueue.IsInstanceAction(jobqueue.ActionCheckNetworking))
	s.False(jobqueue.IsInstanceAction(jobqueue.ActionCreateAccount))
	s.False(jobqueue.IsInstanceAction("reboot"))
}

func (s *JobSuite) TestStoreClientHasNoQueue() {
	_, err := s.Client.Enqueue(jobqueue.ActionDeploy, uuid.New(), nil)
	s.Equal(jobqueue.ErrNoQueue, err)
	_, err = s.Client.NextDeployTask(nil)
	s.Equal(jobqueue.ErrNoQueue, err)
	s.NoError(s.Client.Close())
}

func (s *JobSuite) TestNewClientBadAddress() {
	_, err := jobqueue.NewClient("[::1", s.KV)
	s.Error(err)
}
