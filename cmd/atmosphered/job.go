package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
)

// maxJobWait caps how long a request may block on a job
const maxJobWait = 5 * time.Minute

// RegisterJobRoutes registers the job routes and handlers
func RegisterJobRoutes(prefix string, router *mux.Router, m *metricsContext) {
	sub := router.PathPrefix(prefix).Subrouter()
	sub.Handle("/{jobID}", alice.New(tokenAuth, m.HandlerWrapper("job")).ThenFunc(GetJob)).Methods("GET")
}

// GetJob gets a job status. With a wait duration the request blocks until
// the job finishes or the duration passes.
func GetJob(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)
	id := mux.Vars(r)["jobID"]

	var wait time.Duration
	if v := r.URL.Query().Get("wait"); v != "" {
		var err error
		wait, err = time.ParseDuration(v)
		if err != nil || wait < 0 {
			hr.JSONError(http.StatusBadRequest, errors.New("wait must be a positive duration"))
			return
		}
		if wait > maxJobWait {
			wait = maxJobWait
		}
	}

	queue := GetQueue(r)
	if wait == 0 {
		job, err := queue.Job(id)
		if err != nil {
			hr.JSONError(errorCode(ctx, err), err)
			return
		}
		hr.JSON(http.StatusOK, job)
		return
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	job, err := queue.WaitJob(waitCtx, id)
	if err != nil {
		hr.JSONError(errorCode(ctx, err), err)
		return
	}
	hr.JSON(http.StatusOK, job)
}
