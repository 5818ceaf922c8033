package atmosphere_test

import (
	"testing"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/internal/tests/common"
	"github.com/stretchr/testify/suite"
)

type UserTestSuite struct {
	common.Suite
}

func TestUserTestSuite(t *testing.T) {
	suite.Run(t, new(UserTestSuite))
}

func (s *UserTestSuite) TestUser() {
	u := s.NewUser(false)

	tests := []struct {
		description string
		username    string
		expectedErr bool
	}{
		{"empty username", "", true},
		{"missing user", "nobody", true},
		{"real user", u.Username, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		user, err := s.Context.User(test.username)
		if test.expectedErr {
			s.Error(err, msg("lookup should fail"))
			s.Nil(user, msg("failure shouldn't return a user"))
		} else {
			s.NoError(err, msg("lookup should succeed"))
			s.Equal(u.SSHKeys, user.SSHKeys, msg("should load keys"))
		}
	}
}

func (s *UserTestSuite) TestForEachUser() {
	a := s.NewUser(false)
	b := s.NewUser(true)

	seen := map[string]bool{}
	s.NoError(s.Context.ForEachUser(func(u *atmosphere.AtmosphereUser) error {
		seen[u.Username] = u.IsStaff
		return nil
	}))
	s.Equal(map[string]bool{a.Username: false, b.Username: true}, seen)
}

func (s *UserTestSuite) TestValidate() {
	tests := []struct {
		description string
		username    string
		expectedErr bool
	}{
		{"empty", "", true},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"valid", "alice", false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		err := s.Context.NewUser(test.username).Validate()
		if test.expectedErr {
			s.Error(err, msg("should be invalid"))
		} else {
			s.NoError(err, msg("should be valid"))
		}
	}
}

func (s *UserTestSuite) TestSaveDestroy() {
	u := s.Context.NewUser("alice")
	s.NoError(u.Save())
	s.Error(s.Context.NewUser("alice").Save(), "duplicate create should fail")

	u.Email = "alice@example.com"
	s.NoError(u.Save())

	s.NoError(u.Destroy())
	_, err := s.Context.User("alice")
	s.True(s.Context.IsKeyNotFound(err))
}

func (s *UserTestSuite) TestAuthorizedKeys() {
	u := s.Context.NewUser("alice")
	u.SSHKeys = []string{"ssh-rsa AAAA"}
	s.Empty(u.AuthorizedKeys(), "keys are not injected unless opted in")

	u.UseSSHKeys = true
	s.Equal([]string{"ssh-rsa AAAA"}, u.AuthorizedKeys())
}

func (s *UserTestSuite) TestUsesZsh() {
	u := s.Context.NewUser("alice")
	s.False(u.UsesZsh())
	u.LoginShell = "/bin/bash"
	s.False(u.UsesZsh())
	u.LoginShell = "/usr/bin/zsh"
	s.True(u.UsesZsh())
}
