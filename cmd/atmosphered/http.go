package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	log "github.com/sirupsen/logrus"
	"github.com/tylerb/graceful"
)

type ctxKey int

const (
	contextKey ctxKey = iota
	queueKey
	userKey
	bookmarkKey
	instanceKey
)

type (
	// HTTPResponse is a wrapper for http.ResponseWriter which provides access
	// to several convenience methods
	HTTPResponse struct {
		http.ResponseWriter
	}

	// HTTPError contains information for http error responses
	HTTPError struct {
		Message string   `json:"message"`
		Code    int      `json:"code"`
		Stack   []string `json:"stack"`
	}

	// Queue accepts work for the deploy worker
	Queue interface {
		Enqueue(action, target string, args map[string]string) (*jobqueue.Job, error)
		Job(id string) (*jobqueue.Job, error)
		WaitJob(ctx context.Context, id string) (*jobqueue.Job, error)
	}
)

// NewHandler builds the API router with its common middleware
func NewHandler(ctx *atmosphere.Context, queue Queue, m *metricsContext) http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)

	// Common middleware applied to every request
	commonMiddleware := alice.New(
		func(h http.Handler) http.Handler {
			return handlers.CombinedLoggingHandler(log.StandardLogger().Writer(), h)
		},
		handlers.CompressHandler,
		handlers.RecoveryHandler(
			handlers.RecoveryLogger(log.StandardLogger()),
			handlers.PrintRecoveryStack(true),
		),
		func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rctx := context.WithValue(r.Context(), contextKey, ctx)
				rctx = context.WithValue(rctx, queueKey, queue)
				h.ServeHTTP(w, r.WithContext(rctx))
			})
		},
	)

	// NOTE: Due to weirdness with PrefixPath and StrictSlash, can't just pass
	// a prefixed subrouter to the register functions and have the base path
	// work cleanly. The register functions need to add a base path handler to
	// the main router before setting subhandlers on either main or subrouter

	RegisterBookmarkRoutes("/image_bookmarks", router, m)
	RegisterInstanceRoutes("/instances", router, m)
	RegisterAccountRoutes("/accounts", router, m)
	RegisterProviderRoutes("/providers", router, m)
	RegisterIdentityRoutes("/identities", router, m)
	RegisterUserRoutes("/users", "/tokens", router, m)
	RegisterJobRoutes("/jobs", router, m)

	router.HandleFunc("/metrics",
		func(w http.ResponseWriter, r *http.Request) {
			hr := HTTPResponse{w}
			hr.JSON(http.StatusOK, m.sink.Data())
		})

	return commonMiddleware.Then(router)
}

// Run starts the server
func Run(port uint, ctx *atmosphere.Context, queue Queue, m *metricsContext) *graceful.Server {
	server := &graceful.Server{
		Timeout: 5 * time.Second,
		Server: &http.Server{
			Addr:           fmt.Sprintf(":%d", port),
			Handler:        NewHandler(ctx, queue, m),
			MaxHeaderBytes: 1 << 20,
		},
	}
	go listenAndServe(server)
	return server
}

func listenAndServe(server *graceful.Server) {
	if err := server.ListenAndServe(); err != nil {
		// Ignore the error from closing the listener, which is involved in the
		// graceful shutdown
		if !strings.Contains(err.Error(), "use of closed network connection") {
			log.WithField("error", err).Fatal("server error")
		}
	}
}

// JSON writes appropriate headers and JSON body to the http response
func (hr *HTTPResponse) JSON(code int, obj interface{}) {
	hr.Header().Set("Content-Type", "application/json")
	hr.WriteHeader(code)
	encoder := json.NewEncoder(hr)
	if err := encoder.Encode(obj); err != nil {
		log.WithField("error", err).Error("failed to encode response")
	}
}

// JSONError prepares an HTTPError with a stack trace and writes it with
// HTTPResponse.JSON
func (hr *HTTPResponse) JSONError(code int, err error) {
	httpError := &HTTPError{
		Message: err.Error(),
		Code:    code,
		Stack:   make([]string, 0, 4),
	}
	for i := 1; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		httpError.Stack = append(httpError.Stack, fmt.Sprintf("%s:%d (0x%x)", file, line, pc))
	}
	hr.JSON(code, httpError)
}

// JSONMsg writes an HTTPError without a stack
func (hr *HTTPResponse) JSONMsg(code int, msg string) {
	hr.JSON(code, &HTTPError{
		Message: msg,
		Code:    code,
		Stack:   []string{},
	})
}

// errorCode maps a model error to a response code
func errorCode(ctx *atmosphere.Context, err error) int {
	if ctx.IsKeyNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// GetContext retrieves the atmosphere.Context for a request
func GetContext(r *http.Request) *atmosphere.Context {
	if value, ok := r.Context().Value(contextKey).(*atmosphere.Context); ok {
		return value
	}
	return nil
}

// GetQueue retrieves the job queue for a request
func GetQueue(r *http.Request) Queue {
	if value, ok := r.Context().Value(queueKey).(Queue); ok {
		return value
	}
	return nil
}

// setRequestValue returns r carrying value under key
func setRequestValue(r *http.Request, key ctxKey, value interface{}) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), key, value))
}
