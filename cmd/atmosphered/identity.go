package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/atmosphere"
)

// RegisterIdentityRoutes registers the identity routes and handlers
func RegisterIdentityRoutes(prefix string, router *mux.Router, m *metricsContext) {
	staff := alice.New(tokenAuth, requireStaff)
	router.Handle(prefix, staff.Append(m.HandlerWrapper("identities.create")).ThenFunc(CreateIdentity)).Methods("POST")
}

// CreateIdentity stores credentials a user holds on a provider. With
// ?admin=true the identity also becomes the provider's admin identity, which
// account provisioning acts as.
func CreateIdentity(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)

	identity := ctx.NewIdentity()
	if err := json.NewDecoder(r.Body).Decode(identity); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if err := identity.Validate(); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}

	provider, err := ctx.Provider(identity.ProviderID)
	if err != nil {
		if ctx.IsKeyNotFound(err) || err == atmosphere.ErrInvalidUUID {
			hr.JSONMsg(http.StatusBadRequest, "unknown provider")
			return
		}
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	if _, err := ctx.UserIdentity(identity.Username, provider.ID); err == nil {
		hr.JSONMsg(http.StatusConflict, "user already has an identity on this provider")
		return
	} else if err != atmosphere.ErrNotFound {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}

	if err := identity.Save(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}

	if r.URL.Query().Get("admin") == "true" {
		provider.AdminIdentityID = identity.ID
		if err := provider.Save(); err != nil {
			hr.JSONError(http.StatusInternalServerError, err)
			return
		}
	}
	hr.JSON(http.StatusCreated, identity)
}
