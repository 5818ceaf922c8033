package deploy

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandOptions tune RunCommand
type CommandOptions struct {
	Stdin string
	// DryRun logs the command without running it
	DryRun bool
	// BashWrap runs the joined args with /bin/bash -c
	BashWrap bool
	// BlockLog skips logging of the command output
	BlockLog bool
}

// RunCommand runs a local command and returns its stdout and stderr
func RunCommand(ctx context.Context, args []string, opts CommandOptions) (string, string, error) {
	if opts.BashWrap {
		args = []string{"/bin/bash", "-c", strings.Join(args, " ")}
	}
	cmdStr := strings.Join(args, " ")
	if opts.DryRun {
		log.WithField("cmd", cmdStr).Debug("mock command")
		return "", "", nil
	}
	if len(args) == 0 {
		return "", "", exec.ErrNotFound
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}
	err := cmd.Run()
	if err != nil {
		log.WithFields(log.Fields{
			"cmd":   cmdStr,
			"error": err,
		}).Error("command failed")
	}
	if !opts.BlockLog {
		fields := log.Fields{
			"cmd":    cmdStr,
			"stdout": stdout.String(),
			"stderr": stderr.String(),
		}
		if opts.Stdin != "" {
			fields["stdin"] = opts.Stdin
		}
		log.WithFields(fields).Debug("command output")
	}
	return stdout.String(), stderr.String(), err
}
