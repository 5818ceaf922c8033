package main

import (
	"fmt"

	"github.com/mistifyio/atmosphere"
	"github.com/mistifyio/atmosphere/internal/logx"
	"github.com/mistifyio/atmosphere/pkg/deferer"
	"github.com/mistifyio/atmosphere/pkg/jobqueue"
	"github.com/mistifyio/atmosphere/pkg/kv"
	_ "github.com/mistifyio/atmosphere/pkg/kv/consul"
	_ "github.com/mistifyio/atmosphere/pkg/kv/etcd"
	_ "github.com/mistifyio/atmosphere/pkg/kv/memory"
	"github.com/mistifyio/atmosphere/pkg/sd"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

const defaultKVAddr = "http://localhost:2379"

func main() {
	var port uint
	var kvAddr, bstalk, logLevel, statsd, bootstrap string

	flag.UintVarP(&port, "port", "p", 18000, "listen port")
	flag.StringVarP(&kvAddr, "kv", "k", defaultKVAddr, "address of kv machine")
	flag.StringVarP(&bstalk, "beanstalk", "b", "127.0.0.1:11300", "address of beanstalkd server")
	flag.StringVarP(&logLevel, "log-level", "l", "warn", "log level")
	flag.StringVarP(&statsd, "statsd", "s", "", "statsd address")
	flag.StringVar(&bootstrap, "bootstrap-staff", "", "create this staff user, print a new api token for it and exit")
	flag.Parse()

	if err := logx.DefaultSetup(logLevel); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"func":  "logx.DefaultSetup",
			"level": logLevel,
		}).Fatal("unable to set up logrus")
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

	if bootstrap != "" {
		token, err := bootstrapStaff(ctx, bootstrap)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
				"user":  bootstrap,
			}).Fatal("unable to bootstrap staff user")
		}
		fmt.Println(token.Key)
		return
	}

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

	mctx, err := newMetricsContext("atmosphered", statsd)
	if err != nil {
		d.Fatal(log.Fields{
			"error":  err,
			"statsd": statsd,
		}, "failed to set up metrics")
	}

	server := Run(port, ctx, jobQueue, mctx)
	_ = sd.Ready()

	stopKeepAlive := make(chan struct{})
	d.Defer(func() { close(stopKeepAlive) })
	go func() {
		if err := sd.KeepAlive(stopKeepAlive); err != nil {
			log.WithField("error", err).Warn("watchdog keep alive failed")
		}
	}()

	// Block until the server is stopped
	<-server.StopChan()
	_ = sd.Stopping()
}
