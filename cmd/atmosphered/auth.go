package main

import (
	"net/http"
	"strings"

	"github.com/mistifyio/atmosphere"
	log "github.com/sirupsen/logrus"
)

const tokenPrefix = "Token "

// tokenAuth resolves the Authorization token to a user and stores it in the
// request context
func tokenAuth(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hr := HTTPResponse{w}
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, tokenPrefix) {
			hr.JSONMsg(http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}
		ctx := GetContext(r)
		token, err := ctx.Token(strings.TrimSpace(strings.TrimPrefix(header, tokenPrefix)))
		if err != nil {
			if err != atmosphere.ErrTokenExpired && !ctx.IsKeyNotFound(err) {
				log.WithField("error", err).Warn("token lookup failed")
			}
			hr.JSONMsg(http.StatusUnauthorized, "invalid token")
			return
		}
		user, err := ctx.User(token.User)
		if err != nil {
			if ctx.IsKeyNotFound(err) {
				hr.JSONMsg(http.StatusUnauthorized, "invalid token")
				return
			}
			hr.JSONError(http.StatusInternalServerError, err)
			return
		}
		h.ServeHTTP(w, setRequestValue(r, userKey, user))
	})
}

// requireStaff rejects requests from non staff users. It must run after
// tokenAuth.
func requireStaff(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetRequestUser(r).IsStaff {
			hr := HTTPResponse{w}
			hr.JSONMsg(http.StatusForbidden, "staff only")
			return
		}
		h.ServeHTTP(w, r)
	})
}

// GetRequestUser retrieves the authenticated user
func GetRequestUser(r *http.Request) *atmosphere.AtmosphereUser {
	return r.Context().Value(userKey).(*atmosphere.AtmosphereUser)
}
