package jobqueue

import (
	"sync"
	"time"

	"github.com/beanstalkd/go-beanstalk"
	log "github.com/sirupsen/logrus"
)

// Beanstalk tube names
const (
	// deployTube carries instance deployment work
	deployTube = "deploy"
	// accountsTube carries account provisioning work
	accountsTube = "accounts"
)

type (
	// tubeSet holds a tube for publishing and tubeset for consuming a queue
	tubeSet struct {
		mu      *sync.Mutex
		publish *beanstalk.Tube
		consume *beanstalk.TubeSet
	}

	// tubes holds the deploy and accounts tubeSets
	tubes struct {
		deploy   *tubeSet
		accounts *tubeSet
	}
)

// newTubeSet creates a new tubeSet for a tube name
func newTubeSet(conn *beanstalk.Conn, mu *sync.Mutex, name string) *tubeSet {
	return &tubeSet{
		mu:      mu,
		consume: beanstalk.NewTubeSet(conn, name),
		publish: &beanstalk.Tube{
			Conn: conn,
			Name: name,
		},
	}
}

// Put puts a job into the publish tube.
func (ts *tubeSet) Put(jobID string) (uint64, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.publish.Put([]byte(jobID), priority, delay, ttr)
}

// Reserve reserves and returns an item from the consume tubeset, waiting
// until one is available or stop is closed. The connection is only held for
// one reserveTimeout at a time so publishers sharing it are not starved.
func (ts *tubeSet) Reserve(stop <-chan struct{}) (uint64, string, error) {
	for {
		select {
		case <-stop:
			return 0, "", ErrStopped
		default:
		}

		ts.mu.Lock()
		id, body, err := ts.consume.Reserve(reserveTimeout)
		ts.mu.Unlock()
		if err != nil {
			if cerr, ok := err.(beanstalk.ConnError); ok {
				switch cerr.Err {
				case beanstalk.ErrTimeout:
					// Empty queue, continue waiting
					continue
				case beanstalk.ErrDeadline:
					log.Debug("beanstalk.ErrDeadline")
					time.Sleep(reserveDelay)
					continue
				}
			}
		}
		return id, string(body), err
	}
}

// newTubes creates a new tubes
func newTubes(conn *beanstalk.Conn, mu *sync.Mutex) *tubes {
	return &tubes{
		deploy:   newTubeSet(conn, mu, deployTube),
		accounts: newTubeSet(conn, mu, accountsTube),
	}
}

// forAction picks the tubeSet an action's tasks belong on
func (t *tubes) forAction(action string) *tubeSet {
	if actionTubes[action] == accountsTube {
		return t.accounts
	}
	return t.deploy
}
