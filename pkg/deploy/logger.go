package deploy

import (
	"io"

	"github.com/mistifyio/atmosphere"
	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
)

// NewDeployLogger creates the logger deployments report to. Output is
// rotated by size. An empty file discards output.
func NewDeployLogger(s atmosphere.DeployLogSettings) *log.Logger {
	logger := log.New()
	logger.Formatter = &log.JSONFormatter{}
	logger.Level = log.InfoLevel
	if s.File == "" {
		logger.Out = io.Discard
		return logger
	}
	logger.Out = &lumberjack.Logger{
		Filename:   s.File,
		MaxSize:    s.MaxSize,
		MaxBackups: s.MaxBackups,
		MaxAge:     s.MaxAge,
	}
	return logger
}

// InstanceLogger tags entries with the instance being deployed
func InstanceLogger(base *log.Logger, ip, username, instanceID string) *log.Entry {
	if base == nil {
		base = log.StandardLogger()
	}
	return base.WithFields(log.Fields{
		"ip":       ip,
		"username": username,
		"instance": instanceID,
	})
}
