package deploy_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/deploy"
	"github.com/stretchr/testify/assert"
)

func TestNewSSHConfig(t *testing.T) {
	s := atmosphere.DefaultSettings().SSH
	c := deploy.NewSSHConfig(s, "10.0.0.5")
	assert.Equal(t, "10.0.0.5", c.Host)
	assert.Equal(t, "22", c.Port)
	assert.Equal(t, "root", c.User)
	assert.Equal(t, 30*time.Second, c.Timeout)

	s.Port = 0
	assert.Empty(t, deploy.NewSSHConfig(s, "10.0.0.5").Port)
}

func TestDialSSHConfigErrors(t *testing.T) {
	base := deploy.SSHConfig{
		Host:    "127.0.0.1",
		User:    "root",
		KeyPath: filepath.Join(t.TempDir(), "missing"),
		Timeout: time.Second,
	}

	noHost := base
	noHost.Host = ""
	_, err := deploy.DialSSH(context.Background(), noHost)
	assert.EqualError(t, err, "ssh host is required")

	noUser := base
	noUser.User = ""
	_, err = deploy.DialSSH(context.Background(), noUser)
	assert.EqualError(t, err, "ssh user is required")

	_, err = deploy.DialSSH(context.Background(), base)
	assert.Error(t, err, "missing key file")
}
