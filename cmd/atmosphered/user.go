package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/atmosphere"
)

// TokenRequest asks for an api token for a user
type TokenRequest struct {
	User string `json:"user"`
	// TTL is a duration such as "720h". Empty means the token never expires.
	TTL string `json:"ttl,omitempty"`
}

// RegisterUserRoutes registers the user and token routes and handlers. All
// of them are staff only.
func RegisterUserRoutes(prefix, tokenPrefix string, router *mux.Router, m *metricsContext) {
	staff := alice.New(tokenAuth, requireStaff)

	router.Handle(prefix, staff.Append(m.HandlerWrapper("users.list")).ThenFunc(ListUsers)).Methods("GET")
	router.Handle(prefix, staff.Append(m.HandlerWrapper("users.create")).ThenFunc(CreateUser)).Methods("POST")
	router.Handle(tokenPrefix, staff.Append(m.HandlerWrapper("tokens.create")).ThenFunc(CreateToken)).Methods("POST")
}

// ListUsers lists all users sorted by username
func ListUsers(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)
	users := atmosphere.AtmosphereUsers{}
	err := ctx.ForEachUser(func(u *atmosphere.AtmosphereUser) error {
		users = append(users, u)
		return nil
	})
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	hr.JSON(http.StatusOK, users)
}

// CreateUser creates a new user
func CreateUser(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)

	user := ctx.NewUser("")
	if err := json.NewDecoder(r.Body).Decode(user); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if err := user.Validate(); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := ctx.User(user.Username); err == nil {
		hr.JSONMsg(http.StatusConflict, "user already exists")
		return
	} else if !ctx.IsKeyNotFound(err) {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	if err := user.Save(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusCreated, user)
}

// CreateToken issues an api token for an existing user
func CreateToken(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	var ttl time.Duration
	if req.TTL != "" {
		var err error
		if ttl, err = time.ParseDuration(req.TTL); err != nil || ttl < 0 {
			hr.JSONMsg(http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
	}
	if req.User == "" {
		hr.JSONMsg(http.StatusBadRequest, "user required")
		return
	}
	if _, err := ctx.User(req.User); err != nil {
		if ctx.IsKeyNotFound(err) {
			hr.JSONMsg(http.StatusBadRequest, "unknown user")
			return
		}
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}

	token := ctx.NewToken(req.User, ttl)
	if err := token.Save(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusCreated, token)
}

// bootstrapStaff makes sure username exists as a staff user and issues a
// token that never expires for it. It is how the first api token is made.
func bootstrapStaff(ctx *atmosphere.Context, username string) (*atmosphere.Token, error) {
	user, err := ctx.User(username)
	switch {
	case err == nil:
		if !user.IsStaff {
			return nil, errors.New("user exists and is not staff")
		}
	case ctx.IsKeyNotFound(err):
		user = ctx.NewUser(username)
		user.IsStaff = true
		if err := user.Save(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	token := ctx.NewToken(user.Username, 0)
	if err := token.Save(); err != nil {
		return nil, err
	}
	return token, nil
}
