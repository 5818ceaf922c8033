package deploy_test

import (
	"testing"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/deploy"
	"github.com/stretchr/testify/assert"
)

func TestBuildHostName(t *testing.T) {
	tests := []struct {
		description string
		format      string
		domain      string
		ip          string
		expected    string
	}{
		{"no format", "", "", "128.196.64.12", "128.196.64.12"},
		{"octets and domain", "vm{{.Three}}-{{.Four}}.{{.Domain}}", "example.org", "128.196.64.12", "vm64-12.example.org"},
		{"all octets", "{{.One}}-{{.Two}}-{{.Three}}-{{.Four}}", "", "10.0.1.2", "10-0-1-2"},
		{"no octets still renders", "static.{{.Domain}}", "example.org", "10.0.1.2", "static.example.org"},
		{"bad template", "vm{{.Three", "", "10.0.1.2", "10.0.1.2"},
		{"unknown field", "vm{{.Five}}", "", "10.0.1.2", "10.0.1.2"},
		{"not ipv4", "vm{{.Four}}", "", "fe80::1", "fe80::1"},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		s := atmosphere.HostnamingSettings{Format: test.format, Domain: test.domain}
		assert.Equal(t, test.expected, deploy.BuildHostName(s, test.ip), msg("wrong hostname"))
	}
}

func TestJetstreamHostname(t *testing.T) {
	name, err := deploy.JetstreamHostname("149.165.157.20")
	assert.NoError(t, err)
	assert.Equal(t, "js-157-20.jetstream-cloud.org", name)

	_, err = deploy.JetstreamHostname("nope")
	assert.Error(t, err)
}
