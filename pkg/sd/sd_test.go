package sd_test

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/mistifyio/atmosphere/pkg/sd"
	"github.com/stretchr/testify/suite"
)

type SDSuite struct {
	suite.Suite
	Conn *net.UnixConn
}

func TestSD(t *testing.T) {
	suite.Run(t, new(SDSuite))
}

func (s *SDSuite) SetupTest() {
	socket := filepath.Join(s.T().TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: socket, Net: "unixgram"})
	s.Require().NoError(err)
	s.Conn = conn
	s.T().Setenv("NOTIFY_SOCKET", socket)
	s.T().Setenv("WATCHDOG_USEC", "")
	s.T().Setenv("WATCHDOG_PID", "")
}

func (s *SDSuite) TearDownTest() {
	_ = s.Conn.Close()
}

func (s *SDSuite) read() string {
	buf := make([]byte, 64)
	s.Require().NoError(s.Conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := s.Conn.Read(buf)
	s.Require().NoError(err)
	return string(buf[:n])
}

func (s *SDSuite) TestNoSocket() {
	s.T().Setenv("NOTIFY_SOCKET", "")
	s.Equal(sd.ErrNotifyNoSocket, sd.Ready())
}

func (s *SDSuite) TestReadyStopping() {
	s.NoError(sd.Ready())
	s.Equal("READY=1", s.read())
	s.NoError(sd.Stopping())
	s.Equal("STOPPING=1", s.read())
}

func (s *SDSuite) TestWatchdogEnabled() {
	interval, err := sd.WatchdogEnabled()
	s.NoError(err)
	s.Zero(interval)

	s.T().Setenv("WATCHDOG_USEC", "100000")
	s.T().Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()))
	interval, err = sd.WatchdogEnabled()
	s.NoError(err)
	s.Equal(100*time.Millisecond, interval)

	s.T().Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()+1))
	interval, err = sd.WatchdogEnabled()
	s.NoError(err)
	s.Zero(interval, "watchdog is meant for another process")
}

func (s *SDSuite) TestKeepAlive() {
	stop := make(chan struct{})
	s.NoError(sd.KeepAlive(stop), "no watchdog should return at once")

	s.T().Setenv("WATCHDOG_USEC", "20000")
	done := make(chan error, 1)
	go func() { done <- sd.KeepAlive(stop) }()

	s.Equal("WATCHDOG=1", s.read())
	close(stop)
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("keep alive did not stop")
	}
}
