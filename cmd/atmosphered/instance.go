package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
)

// RegisterInstanceRoutes registers the instance routes and handlers
func RegisterInstanceRoutes(prefix string, router *mux.Router, m *metricsContext) {
	auth := alice.New(tokenAuth)
	instanceMiddleware := auth.Append(loadInstance)

	router.Handle(prefix, auth.Append(m.HandlerWrapper("instances.list")).ThenFunc(ListInstances)).Methods("GET")
	router.Handle(prefix, auth.Append(m.HandlerWrapper("instances.create")).ThenFunc(CreateInstance)).Methods("POST")

	sub := router.PathPrefix(prefix).Subrouter()
	sub.Handle("/{instanceID}", instanceMiddleware.Append(m.HandlerWrapper("instances.get")).ThenFunc(GetInstance)).Methods("GET")
	sub.Handle("/{instanceID}", instanceMiddleware.Append(m.HandlerWrapper("instances.destroy")).ThenFunc(DestroyInstance)).Methods("DELETE")
	sub.Handle("/{instanceID}/{action}", instanceMiddleware.Append(m.HandlerWrapper("instances.action")).ThenFunc(InstanceAction)).Methods("POST")
}

// loadInstance is a middleware to load an instance by id or provider alias.
// Instances of other users are hidden from non staff.
func loadInstance(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hr := HTTPResponse{w}
		ctx := GetContext(r)
		id := mux.Vars(r)["instanceID"]

		instance, err := ctx.Instance(id)
		if err == atmosphere.ErrInvalidUUID || (err != nil && ctx.IsKeyNotFound(err)) {
			instance, err = ctx.InstanceByAlias(id)
		}
		if err != nil {
			hr.JSONError(errorCode(ctx, err), err)
			return
		}

		user := GetRequestUser(r)
		if instance.User != user.Username && !user.IsStaff {
			hr.JSONMsg(http.StatusNotFound, atmosphere.ErrNotFound.Error())
			return
		}
		h.ServeHTTP(w, setRequestValue(r, instanceKey, instance))
	})
}

// ListInstances lists the user's instances. Staff may pass ?all=true.
func ListInstances(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)
	user := GetRequestUser(r)

	owner := user.Username
	if user.IsStaff && atmosphere.ToBool(r.URL.Query().Get("all")) {
		owner = ""
	}
	instances, err := ctx.Instances(owner)
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusOK, instances)
}

// CreateInstance records a new instance. Non staff always create their own.
func CreateInstance(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)
	user := GetRequestUser(r)

	instance := ctx.NewInstance()
	if err := json.NewDecoder(r.Body).Decode(instance); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if instance.User == "" || !user.IsStaff {
		instance.User = user.Username
	}
	if err := instance.Validate(); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if err := instance.Save(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusCreated, instance)
}

// GetInstance gets a particular instance
func GetInstance(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetRequestInstance(r))
}

// DestroyInstance removes an instance record
func DestroyInstance(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	instance := GetRequestInstance(r)
	if err := instance.Destroy(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusOK, instance)
}

// InstanceAction queues a deployment action for an instance. An optional
// JSON object body is passed to the job as its args.
func InstanceAction(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	action := mux.Vars(r)["action"]
	if !jobqueue.IsInstanceAction(action) {
		hr.JSONMsg(http.StatusNotFound, "unknown action: "+action)
		return
	}

	args := map[string]string{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && err != io.EOF {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}

	instance := GetRequestInstance(r)
	newJobHelper(hr, r, action, instance.ID, args, instance)
}

// newJobHelper queues a job and responds with obj and the job id header
func newJobHelper(hr HTTPResponse, r *http.Request, action, target string, args map[string]string, obj interface{}) {
	job, err := GetQueue(r).Enqueue(action, target, args)
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.Header().Set("X-Job-ID", job.ID)
	hr.JSON(http.StatusAccepted, obj)
}

// GetRequestInstance retrieves the instance from the request context
func GetRequestInstance(r *http.Request) *atmosphere.Instance {
	return r.Context().Value(instanceKey).(*atmosphere.Instance)
}
