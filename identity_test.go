package atmosphere_test

import (
	"testing"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/internal/tests/common"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

type IdentityTestSuite struct {
	common.Suite
}

func TestIdentityTestSuite(t *testing.T) {
	suite.Run(t, new(IdentityTestSuite))
}

func (s *IdentityTestSuite) TestIdentity() {
	providerID := uuid.New()
	i := s.NewIdentity("alice", providerID)

	tests := []struct {
		description string
		id          string
		expectedErr bool
	}{
		{"invalid id", "foobar", true},
		{"nonexistent id", uuid.New(), true},
		{"real id", i.ID, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		identity, err := s.Context.Identity(test.id)
		if test.expectedErr {
			s.Error(err, msg("lookup should fail"))
			s.Nil(identity, msg("failure shouldn't return an identity"))
		} else {
			s.NoError(err, msg("lookup should succeed"))
			s.Equal(i.Credentials, identity.Credentials, msg("should load credentials"))
		}
	}
}

func (s *IdentityTestSuite) TestUserIdentity() {
	providerID := uuid.New()
	i := s.NewIdentity("alice", providerID)
	_ = s.NewIdentity("alice", uuid.New())
	_ = s.NewIdentity("bob", providerID)

	found, err := s.Context.UserIdentity("alice", providerID)
	s.NoError(err)
	s.Equal(i.ID, found.ID)

	_, err = s.Context.UserIdentity("carol", providerID)
	s.Equal(atmosphere.ErrNotFound, err)
}

func (s *IdentityTestSuite) TestGetCredentials() {
	i := s.NewIdentity("alice", uuid.New())
	creds := i.GetCredentials()
	creds[atmosphere.CredKey] = "changed"
	s.Equal("alice", i.Credentials[atmosphere.CredKey], "credentials should be copied")
}

func (s *IdentityTestSuite) TestValidate() {
	valid := func() *atmosphere.Identity {
		i := s.Context.NewIdentity()
		i.Username = "alice"
		i.ProviderID = uuid.New()
		i.Credentials[atmosphere.CredKey] = "alice"
		return i
	}

	tests := []struct {
		description string
		mutate      func(*atmosphere.Identity)
		expectedErr bool
	}{
		{"valid", func(*atmosphere.Identity) {}, false},
		{"missing id", func(i *atmosphere.Identity) { i.ID = "" }, true},
		{"non uuid id", func(i *atmosphere.Identity) { i.ID = "asdf" }, true},
		{"missing username", func(i *atmosphere.Identity) { i.Username = "" }, true},
		{"missing provider", func(i *atmosphere.Identity) { i.ProviderID = "" }, true},
		{"missing key", func(i *atmosphere.Identity) { delete(i.Credentials, atmosphere.CredKey) }, true},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		i := valid()
		test.mutate(i)
		err := i.Validate()
		if test.expectedErr {
			s.Error(err, msg("should be invalid"))
		} else {
			s.NoError(err, msg("should be valid"))
		}
	}
}

func (s *IdentityTestSuite) TestDestroy() {
	i := s.NewIdentity("alice", uuid.New())
	s.NoError(i.Destroy())
	_, err := s.Context.Identity(i.ID)
	s.True(s.Context.IsKeyNotFound(err))
}
