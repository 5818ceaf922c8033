package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
)

// RegisterProviderRoutes registers the provider routes and handlers
func RegisterProviderRoutes(prefix string, router *mux.Router, m *metricsContext) {
	auth := alice.New(tokenAuth)

	router.Handle(prefix, auth.Append(m.HandlerWrapper("providers.list")).ThenFunc(ListProviders)).Methods("GET")
	router.Handle(prefix, auth.Append(requireStaff, m.HandlerWrapper("providers.create")).ThenFunc(CreateProvider)).Methods("POST")
}

// ListProviders lists providers. Credentials are only shown to staff.
func ListProviders(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)
	providers, err := ctx.Providers()
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	if !GetRequestUser(r).IsStaff {
		for _, p := range providers {
			p.Credentials = nil
			p.AdminIdentityID = ""
		}
	}
	hr.JSON(http.StatusOK, providers)
}

// CreateProvider creates a new provider
func CreateProvider(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)

	provider := ctx.NewProvider()
	if err := json.NewDecoder(r.Body).Decode(provider); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if err := provider.Validate(); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if err := provider.Save(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusCreated, provider)
}

