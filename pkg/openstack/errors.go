package openstack

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gophercloud/gophercloud"
	"github.com/mistifyio/atmosphere/pkg/accounts"
)

type statusCoder interface {
	GetStatusCode() int
}

// statusCode digs the HTTP status out of a gophercloud error, or 0
func statusCode(err error) int {
	var e429 gophercloud.ErrDefault429
	if errors.As(err, &e429) {
		return http.StatusTooManyRequests
	}
	var e404 gophercloud.ErrDefault404
	if errors.As(err, &e404) {
		return http.StatusNotFound
	}
	var e409 gophercloud.ErrDefault409
	if errors.As(err, &e409) {
		return http.StatusConflict
	}
	var unexpected gophercloud.ErrUnexpectedResponseCode
	if errors.As(err, &unexpected) {
		return unexpected.Actual
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.GetStatusCode()
	}
	return 0
}

// mapError translates provider responses the account driver branches on
// into the accounts sentinel errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch statusCode(err) {
	case http.StatusTooManyRequests, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %v", accounts.ErrOverLimit, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", accounts.ErrNotFound, err)
	}
	return err
}

// isConflict reports whether err is a 409 from the provider
func isConflict(err error) bool {
	return statusCode(err) == http.StatusConflict
}
