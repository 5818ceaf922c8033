package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/hostport"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to reach an instance
type SSHConfig struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

// SSHClient is a Client over an ssh connection
type SSHClient struct {
	client *ssh.Client
}

// shellQuote single quotes s for sh
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.Replace(s, "'", `'"'"'`, -1) + "'"
}

// address joins host and port. A port given in Host wins over Port.
func (c SSHConfig) address() (string, error) {
	host, port, err := hostport.Split(strings.TrimSpace(c.Host))
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", errors.New("ssh host is required")
	}
	if port == "" {
		port = c.Port
	}
	if port == "" {
		port = "22"
	}
	return net.JoinHostPort(host, port), nil
}

func (c SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	if c.User == "" {
		return nil, errors.New("ssh user is required")
	}
	if c.KeyPath == "" {
		return nil, errors.New("ssh key path is required")
	}
	key, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		if c.KnownHostsPath == "" {
			return nil, errors.New("known hosts path is required when checking host keys")
		}
		if hostKeyCallback, err = knownhosts.New(c.KnownHostsPath); err != nil {
			return nil, err
		}
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.Timeout,
	}, nil
}

// DialSSH connects to the instance described by c
func DialSSH(ctx context.Context, c SSHConfig) (*SSHClient, error) {
	address, err := c.address()
	if err != nil {
		return nil, err
	}
	config, err := c.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &SSHClient{client: ssh.NewClient(clientConn, chans, reqs)}, nil
}

// Close closes the connection
func (s *SSHClient) Close() error {
	return s.client.Close()
}

// Put streams contents into path through cat and sets its mode
func (s *SSHClient) Put(path, contents string, mode os.FileMode) error {
	session, err := s.client.NewSession()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	session.Stdin = strings.NewReader(contents)
	var stderr bytes.Buffer
	session.Stderr = &stderr
	cmd := fmt.Sprintf("cat > %s && chmod %o %s", shellQuote(path), mode.Perm(), shellQuote(path))
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("put %s: %v: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Run executes cmd. Cancelling ctx kills the remote command.
func (s *SSHClient) Run(ctx context.Context, cmd string) (string, string, int, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", "", 0, err
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		// the buffers may still be written to until the session closes
		return "", "", 0, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		return stdout.String(), stderr.String(), 0, err
	}
	return stdout.String(), stderr.String(), 0, nil
}

// Delete removes path
func (s *SSHClient) Delete(path string) error {
	_, stderr, status, err := s.Run(context.Background(), "rm -f "+shellQuote(path))
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("delete %s: exit %d: %s", path, status, strings.TrimSpace(stderr))
	}
	return nil
}

// NewSSHConfig builds the connection settings for host
func NewSSHConfig(s atmosphere.SSHSettings, host string) SSHConfig {
	port := ""
	if s.Port != 0 {
		port = strconv.Itoa(s.Port)
	}
	return SSHConfig{
		Host:                        host,
		Port:                        port,
		User:                        s.User,
		KeyPath:                     s.KeyPath,
		KnownHostsPath:              s.KnownHostsPath,
		InsecureSkipHostKeyChecking: s.InsecureSkipHostKeyChecking,
		Timeout:                     s.Timeout.Duration,
	}
}
