package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
)

// Job args understood by the account actions
const (
	ArgProvider  = "provider"
	ArgAdminRole = "admin_role"
	ArgMaxQuota  = "max_quota"
)

// AccountRequest asks for an account to be provisioned on a provider
type AccountRequest struct {
	Username  string `json:"username"`
	Provider  string `json:"provider"`
	AdminRole bool   `json:"admin_role"`
	MaxQuota  bool   `json:"max_quota"`
}

// RegisterAccountRoutes registers the staff only account routes
func RegisterAccountRoutes(prefix string, router *mux.Router, m *metricsContext) {
	staff := alice.New(tokenAuth, requireStaff)

	router.Handle(prefix, staff.Append(m.HandlerWrapper("accounts.create")).ThenFunc(CreateAccount)).Methods("POST")

	sub := router.PathPrefix(prefix).Subrouter()
	sub.Handle("/{username}", staff.Append(m.HandlerWrapper("accounts.destroy")).ThenFunc(DestroyAccount)).Methods("DELETE")
}

// CreateAccount queues provisioning of a user, project and network
func CreateAccount(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" {
		hr.JSONMsg(http.StatusBadRequest, "username required")
		return
	}
	if _, err := ctx.Provider(req.Provider); err != nil {
		hr.JSONMsg(http.StatusBadRequest, "unknown provider: "+req.Provider)
		return
	}

	newJobHelper(hr, r, jobqueue.ActionCreateAccount, req.Username, map[string]string{
		ArgProvider:  req.Provider,
		ArgAdminRole: strconv.FormatBool(req.AdminRole),
		ArgMaxQuota:  strconv.FormatBool(req.MaxQuota),
	}, req)
}

// DestroyAccount queues removal of a user's project and network. The
// provider is named with ?provider=.
func DestroyAccount(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)

	req := AccountRequest{
		Username: mux.Vars(r)["username"],
		Provider: r.URL.Query().Get("provider"),
	}
	if _, err := ctx.Provider(req.Provider); err != nil {
		hr.JSONMsg(http.StatusBadRequest, "unknown provider: "+req.Provider)
		return
	}
	newJobHelper(hr, r, jobqueue.ActionDeleteAccount, req.Username, map[string]string{
		ArgProvider: req.Provider,
	}, req)
}
