// Package logx sets up logrus the same way for every daemon and tool.
package logx

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// DefaultSetup logs JSON to stderr at the named level
func DefaultSetup(logLevel string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stderr)
	return nil
}

// TextSetup is DefaultSetup with human readable output for command line tools
func TextSetup(logLevel string) error {
	if err := DefaultSetup(logLevel); err != nil {
		return err
	}
	log.SetFormatter(&log.TextFormatter{})
	return nil
}
