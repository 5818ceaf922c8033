package atmosphere_test

import (
	"testing"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/internal/tests/common"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

type ProviderTestSuite struct {
	common.Suite
}

func TestProviderTestSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (s *ProviderTestSuite) TestProvider() {
	p := s.NewProvider()

	tests := []struct {
		description string
		id          string
		expectedErr bool
	}{
		{"invalid id", "foobar", true},
		{"nonexistent id", uuid.New(), true},
		{"real id", p.ID, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		provider, err := s.Context.Provider(test.id)
		if test.expectedErr {
			s.Error(err, msg("lookup should fail"))
			s.Nil(provider, msg("failure shouldn't return a provider"))
		} else {
			s.NoError(err, msg("lookup should succeed"))
			s.Equal(p.Location, provider.Location, msg("should load location"))
		}
	}
}

func (s *ProviderTestSuite) TestProviders() {
	providers, err := s.Context.Providers()
	s.NoError(err)
	s.Len(providers, 0)

	a := s.NewProvider()
	b := s.NewProvider()
	providers, err = s.Context.Providers()
	s.NoError(err)
	s.Require().Len(providers, 2)
	s.True(providers[0].Location < providers[1].Location)
	ids := []string{providers[0].ID, providers[1].ID}
	s.Contains(ids, a.ID)
	s.Contains(ids, b.ID)
}

func (s *ProviderTestSuite) TestAdmin() {
	p := s.NewProvider()

	admin, err := p.AdminIdentity()
	s.NoError(err)
	s.Equal("admin", admin.Username)

	s.True(p.IsAdmin("admin"))
	s.False(p.IsAdmin("alice"))

	names := p.ListAdminNames()
	names[0] = "changed"
	s.Equal([]string{"admin"}, p.AdminNames)

	p.AdminIdentityID = ""
	_, err = p.AdminIdentity()
	s.Error(err)
}

func (s *ProviderTestSuite) TestValidate() {
	p := s.Context.NewProvider()
	s.Error(p.Validate(), "location required")
	p.Location = "tucson"
	s.Error(p.Validate(), "auth_url required")
	p.Credentials[atmosphere.CredAuthURL] = "https://keystone.example.com:5000/v3"
	s.NoError(p.Validate())
	p.AdminIdentityID = "asdf"
	s.Error(p.Validate(), "admin identity must be uuid")
}

func (s *ProviderTestSuite) TestDestroy() {
	p := s.NewProvider()
	s.NoError(p.Destroy())
	_, err := s.Context.Provider(p.ID)
	s.True(s.Context.IsKeyNotFound(err))
}
