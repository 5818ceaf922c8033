package jobqueue_test

import (
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/mistifyio/atmosphere/pkg/kv"
	_ "github.com/mistifyio/atmosphere/pkg/kv/memory"
	"github.com/stretchr/testify/suite"
)

type JobQCommonSuite struct {
	suite.Suite
	KV         kv.KV
	BStalkAddr string
	BStalkCmd  *exec.Cmd
	Client     *jobqueue.Client
}

func (s *JobQCommonSuite) SetupSuite() {
	if _, err := exec.LookPath("beanstalkd"); err != nil {
		s.T().Skip("beanstalkd not installed")
	}
}

func (s *JobQCommonSuite) SetupTest() {
	var err error
	s.KV, err = kv.New("memory://")
	s.Require().NoError(err)

	// Start up a test beanstalk
	bPort := "4321"
	s.BStalkCmd = exec.Command("beanstalkd", "-l", "127.0.0.1", "-p", bPort)
	s.Require().NoError(s.BStalkCmd.Start())
	s.BStalkAddr = fmt.Sprintf("127.0.0.1:%s", bPort)
	s.waitForBeanstalk()

	client, err := jobqueue.NewClient(s.BStalkAddr, s.KV)
	s.Require().NoError(err)
	s.Client = client
}

func (s *JobQCommonSuite) waitForBeanstalk() {
	for i := 0; i < 50; i++ {
		conn, err := net.Dial("tcp", s.BStalkAddr)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.FailNow("beanstalkd did not start")
}

func (s *JobQCommonSuite) TearDownTest() {
	if s.Client != nil {
		_ = s.Client.Close()
	}
	s.Require().NoError(s.BStalkCmd.Process.Kill())
	s.Require().Error(s.BStalkCmd.Wait())
}

func testMsgFunc(prefix string) func(...interface{}) string {
	return func(val ...interface{}) string {
		if len(val) == 0 {
			return prefix
		}
		msgPrefix := prefix + " : "
		if len(val) == 1 {
			return msgPrefix + val[0].(string)
		}
		return msgPrefix + fmt.Sprintf(val[0].(string), val[1:]...)
	}
}
