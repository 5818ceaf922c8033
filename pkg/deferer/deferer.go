// Package deferer runs cleanup ahead of a fatal exit. log.Fatal ends in
// os.Exit, which skips deferred calls, so daemons register what must be
// released (connections, locks, servers) here instead.
package deferer

import (
	"io"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Deferer holds cleanup functions and an optional parent whose cleanup runs
// after its own on a fatal exit
type Deferer struct {
	parent *Deferer
	fns    []func()
	ran    bool
}

// New returns an empty Deferer. parent may be nil.
func New(parent *Deferer) *Deferer {
	return &Deferer{parent: parent}
}

// Defer adds f to the cleanup list
func (d *Deferer) Defer(f func()) {
	d.fns = append(d.fns, f)
}

// DeferClose closes c at cleanup, logging a failure under name
func (d *Deferer) DeferClose(name string, c io.Closer) {
	d.Defer(func() {
		if err := c.Close(); err != nil {
			log.WithFields(log.Fields{
				"error":    err,
				"resource": name,
			}).Error("failed to close")
		}
	})
}

// Run calls the cleanup functions once, last added first. Common usage is
// `defer d.Run()` right after New.
func (d *Deferer) Run() {
	if d.ran {
		return
	}
	d.ran = true
	for i := len(d.fns) - 1; i >= 0; i-- {
		d.fns[i]()
	}
}

// Fatal runs this and every parent's cleanup, then logs msg with fields at
// fatal level. The caller's file and line are added to fields.
func (d *Deferer) Fatal(fields log.Fields, msg string) {
	for p := d; p != nil; p = p.parent {
		p.Run()
	}

	entry := log.WithFields(fields)
	if _, file, line, ok := runtime.Caller(1); ok {
		entry = entry.WithFields(log.Fields{
			"file": filepath.Base(file),
			"line": line,
		})
	}
	entry.Fatal(msg)
}
