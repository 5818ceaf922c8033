package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/armon/go-metrics"
	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/internal/logx"
	"github.com/mistifyio/atmosphere/pkg/deferer"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/mistifyio/atmosphere/pkg/kv"
	_ "github.com/mistifyio/atmosphere/pkg/kv/consul"
	_ "github.com/mistifyio/atmosphere/pkg/kv/etcd"
	"github.com/mistifyio/atmosphere/pkg/openstack"
	"github.com/mistifyio/atmosphere/pkg/sd"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gopkg.in/tomb.v2"
)

// In memory metrics keep a minute of ten second intervals
const (
	metricsInterval = 10 * time.Second
	metricsRetain   = time.Minute
)

func main() {
	var port uint
	var kvAddr, bstalk, logLevel, settingsFile, statsd string
	var lockTTL time.Duration

	// Command line flags
	flag.StringVarP(&bstalk, "beanstalk", "b", "127.0.0.1:11300", "address of beanstalkd server")
	flag.StringVarP(&logLevel, "log-level", "l", "warn", "log level")
	flag.StringVarP(&kvAddr, "kv", "k", "http://127.0.0.1:2379", "address of kv machine")
	flag.StringVarP(&settingsFile, "config", "c", "", "deployment settings file")
	flag.StringVarP(&statsd, "statsd", "s", "", "statsd address")
	flag.UintVarP(&port, "http", "p", 7544, "http port to publish metrics. set to 0 to disable")
	flag.DurationVar(&lockTTL, "lock-ttl", DefaultLockTTL, "how long a target stays locked if the worker dies")
	flag.Parse()

	// Set up logger
	if err := logx.DefaultSetup(logLevel); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"level": logLevel,
		}).Fatal("unable to to set up logrus")
	}

	settings, err := atmosphere.LoadSettings(settingsFile)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"file":  settingsFile,
		}).Fatal("unable to load settings")
	}

	e, err := kv.New(kvAddr)
	if err != nil {
		log.WithFields(log.Fields{
			"addr":  kvAddr,
			"error": err,
			"func":  "kv.New",
		}).Fatal("unable to connect to kv")
	}
	if err := e.Ping(); err != nil {
		log.WithFields(log.Fields{
			"addr":  kvAddr,
			"error": err,
		}).Fatal("kv is unreachable")
	}
	ctx := atmosphere.NewContext(e)

	log.WithField("address", bstalk).Info("connection to beanstalk")
	jobQueue, err := jobqueue.NewClient(bstalk, e)
	if err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"address": bstalk,
		}).Fatal("failed to create jobQueue client")
	}
	d := deferer.New(nil)
	defer d.Run()
	d.DeferClose("beanstalk", jobQueue)

	w := &worker{
		context:  ctx,
		handlers: newActions(ctx, settings, openstack.Factory{}).handlers(),
		metrics:  setupMetrics(port, statsd),
		lockTTL:  lockTTL,
	}

	// Deployments and account work have their own tubes so a slow
	// playbook run does not hold up provisioning
	var t tomb.Tomb
	t.Go(func() error { return w.consume(&t, jobQueue.NextDeployTask) })
	t.Go(func() error { return w.consume(&t, jobQueue.NextAccountTask) })

	stopKeepAlive := make(chan struct{})
	d.Defer(func() { close(stopKeepAlive) })
	go func() {
		if err := sd.KeepAlive(stopKeepAlive); err != nil {
			log.WithField("error", err).Warn("watchdog keep alive failed")
		}
	}()
	_ = sd.Ready()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.WithField("signal", sig).Info("stopping")
		t.Kill(nil)
	case <-t.Dying():
	}
	_ = sd.Stopping()

	if err := t.Wait(); err != nil {
		d.Fatal(log.Fields{"error": err}, "worker failed")
	}
}

// setupMetrics creates the metric sink and starts an optional http server
func setupMetrics(port uint, statsd string) *metrics.Metrics {
	sink := metrics.NewInmemSink(metricsInterval, metricsRetain)
	fanout := metrics.FanoutSink{sink}
	if statsd != "" {
		if ss, err := metrics.NewStatsdSink(statsd); err == nil {
			fanout = append(fanout, ss)
		} else {
			log.WithFields(log.Fields{
				"error":  err,
				"statsd": statsd,
			}).Error("unable to use statsd")
		}
	}
	conf := metrics.DefaultConfig("deployd")
	conf.EnableHostname = false
	m, _ := metrics.New(conf, fanout)

	// Unless told not to, expose metrics via http
	if port != 0 {
		http.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(sink.Data())
		}))

		go func() {
			log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", port), nil))
		}()
	}

	return m
}
