package accounts

import (
	"errors"

	"github.com/mistifyio/atmosphere"
)

// OpenStack credential names
const (
	CredUsername    = "username"
	CredPassword    = "password"
	CredTenantName  = "tenant_name"
	CredProjectName = "project_name"
)

// ErrAdminURLRequired is returned when building network credentials from a
// provider that has no admin_url
var ErrAdminURLRequired = errors.New("admin_url credential required for network manager")

// Credentials is a flat set of credential values
type Credentials map[string]string

// Copy returns an independent copy
func (c Credentials) Copy() Credentials {
	out := make(Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// merge returns a copy of c with each of others applied on top in order
func merge(c Credentials, others ...map[string]string) Credentials {
	out := c.Copy()
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// LibcloudToOpenStack renames identity credentials (key, secret,
// ex_tenant_name) to the names the OpenStack clients expect.
func LibcloudToOpenStack(creds map[string]string) Credentials {
	out := Credentials(creds).Copy()
	renames := [][2]string{
		{atmosphere.CredKey, CredUsername},
		{atmosphere.CredSecret, CredPassword},
		{atmosphere.CredExTenantName, CredTenantName},
	}
	for _, r := range renames {
		if v, ok := out[r[0]]; ok {
			out[r[1]] = v
			delete(out, r[0])
		}
	}
	return out
}

// buildUserCreds drops the admin-only values
func buildUserCreds(creds Credentials) Credentials {
	out := creds.Copy()
	delete(out, atmosphere.CredAdminURL)
	delete(out, atmosphere.CredRouterName)
	return out
}

// buildImageCreds is the same shape as the user credentials
func buildImageCreds(creds Credentials) Credentials {
	return buildUserCreds(creds)
}

// buildNetworkCreds authenticates against the admin endpoint
func buildNetworkCreds(creds Credentials) (Credentials, error) {
	out := creds.Copy()
	adminURL, ok := out[atmosphere.CredAdminURL]
	if !ok || adminURL == "" {
		return nil, ErrAdminURLRequired
	}
	out[atmosphere.CredAuthURL] = adminURL
	delete(out, atmosphere.CredAdminURL)
	return out, nil
}

// baseNetworkCreds are the provider credentials pointed at the admin
// endpoint, for calls made on behalf of another user
func baseNetworkCreds(providerCreds map[string]string) Credentials {
	out := Credentials(providerCreds).Copy()
	out[atmosphere.CredAuthURL] = out[atmosphere.CredAdminURL]
	delete(out, atmosphere.CredAdminURL)
	return out
}

// CleanCredentials removes everything from creds that is not a user
// credential and returns the names of the required credentials that are
// missing.
func CleanCredentials(creds map[string]string) []string {
	required := []string{CredUsername, CredPassword, CredProjectName}
	keep := map[string]bool{}
	for _, r := range required {
		keep[r] = true
	}
	for k := range creds {
		if !keep[k] {
			delete(creds, k)
		}
	}
	missing := []string{}
	for _, r := range required {
		if _, ok := creds[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}
