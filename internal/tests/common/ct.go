// Package common contains common utilities and suites to be used in other tests
package common

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/kv"
	_ "github.com/mistifyio/atmosphere/pkg/kv/memory"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

// Suite sets up a general test suite backed by a fresh in-memory kv for
// every test.
type Suite struct {
	suite.Suite
	KVPrefix string
	KV       kv.KV
	Context  *atmosphere.Context
	// AuthToken is sent with DoRequest when set
	AuthToken string
}

// SetupSuite prepares anything needed for the whole suite.
func (s *Suite) SetupSuite() {
	s.KVPrefix = "atmosphere"
}

// SetupTest creates a new kv and context.
func (s *Suite) SetupTest() {
	var err error
	s.KV, err = kv.New("memory://")
	s.Require().NoError(err)
	s.Context = atmosphere.NewContext(s.KV)
	s.AuthToken = ""
}

// PrefixKey generates an kv key using the set prefix
func (s *Suite) PrefixKey(key string) string {
	return filepath.Join(s.KVPrefix, key)
}

// NewUser creates and saves a new user.
func (s *Suite) NewUser(staff bool) *atmosphere.AtmosphereUser {
	u := s.Context.NewUser("user-" + uuid.New()[:8])
	u.IsStaff = staff
	u.UseSSHKeys = true
	u.SSHKeys = []string{"ssh-rsa AAAAB3NzaC1yc2E " + u.Username}
	s.Require().NoError(u.Save())
	return u
}

// NewToken creates and saves a token for user and makes it the suite's
// request token.
func (s *Suite) NewToken(user string) *atmosphere.Token {
	t := s.Context.NewToken(user, 0)
	s.Require().NoError(t.Save())
	s.AuthToken = t.Key
	return t
}

// NewBookmark creates and saves a new bookmark for user.
func (s *Suite) NewBookmark(user string) *atmosphere.ApplicationBookmark {
	b := s.Context.NewBookmark(user)
	b.Application = uuid.New()
	s.Require().NoError(b.Save())
	return b
}

// NewIdentity creates and saves a new identity.
func (s *Suite) NewIdentity(username, providerID string) *atmosphere.Identity {
	i := s.Context.NewIdentity()
	i.Username = username
	i.ProviderID = providerID
	i.Credentials = map[string]string{
		atmosphere.CredKey:          username,
		atmosphere.CredSecret:       "secret-" + username,
		atmosphere.CredExTenantName: username,
	}
	s.Require().NoError(i.Save())
	return i
}

// NewProvider creates and saves a new provider with an admin identity.
func (s *Suite) NewProvider() *atmosphere.Provider {
	p := s.Context.NewProvider()
	p.Location = "cloud-" + p.ID[:8]
	p.Credentials = map[string]string{
		atmosphere.CredAuthURL:    "https://keystone.example.com:5000/v3",
		atmosphere.CredAdminURL:   "https://keystone.example.com:35357/v3",
		atmosphere.CredRegionName: "RegionOne",
		atmosphere.CredRouterName: "public_router",
	}
	p.AdminNames = []string{"admin"}
	admin := s.NewIdentity("admin", p.ID)
	p.AdminIdentityID = admin.ID
	s.Require().NoError(p.Save())
	return p
}

// NewInstance creates and saves a new instance for user.
func (s *Suite) NewInstance(user string) *atmosphere.Instance {
	i := s.Context.NewInstance()
	i.ProviderAlias = uuid.New()
	i.Name = "instance " + i.ID[:8]
	i.IP = net.ParseIP("128.196.64.12")
	i.User = user
	s.Require().NoError(i.Save())
	return i
}

// DoRequest is a convenience method for making an http request and doing basic handling of the response.
func (s *Suite) DoRequest(method, url string, expectedRespCode int, postBodyStruct interface{}, respBody interface{}) *http.Response {
	var postBody io.Reader
	if postBodyStruct != nil {
		bodyBytes, _ := json.Marshal(postBodyStruct)
		postBody = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequest(method, url, postBody)
	s.Require().NoError(err)
	if postBody != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	if s.AuthToken != "" {
		req.Header.Add("Authorization", "Token "+s.AuthToken)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	s.Require().NoError(err)
	correctResponse := s.Equal(expectedRespCode, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	s.NoError(err)

	if correctResponse && respBody != nil {
		s.NoError(json.Unmarshal(body, respBody))
	} else if !correctResponse {
		s.T().Log(string(body))
	}
	return resp
}
