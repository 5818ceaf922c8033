package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/armon/go-metrics"
	"github.com/justinas/alice"
)

type metricsContext struct {
	sink    *metrics.InmemSink
	metrics *metrics.Metrics
}

// newMetricsContext keeps a minute of ten second intervals in memory and
// fans out to statsd when an address is given
func newMetricsContext(name, statsd string) (*metricsContext, error) {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	fanout := metrics.FanoutSink{sink}

	if statsd != "" {
		ss, err := metrics.NewStatsdSink(statsd)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, ss)
	}
	conf := metrics.DefaultConfig(name)
	conf.EnableHostname = false
	m, err := metrics.New(conf, fanout)
	if err != nil {
		return nil, err
	}
	return &metricsContext{
		sink:    sink,
		metrics: m,
	}, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// HandlerWrapper times requests and counts response codes under name
func (m *metricsContext) HandlerWrapper(name string) alice.Constructor {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			h.ServeHTTP(rec, r)
			m.metrics.MeasureSince([]string{"http", name, "time"}, start)
			m.metrics.IncrCounter([]string{"http", name, strconv.Itoa(rec.status)}, 1)
		})
	}
}

// HandlerFunc wraps a handler function with HandlerWrapper
func (m *metricsContext) HandlerFunc(f http.HandlerFunc, name string) http.Handler {
	return m.HandlerWrapper(name)(f)
}
