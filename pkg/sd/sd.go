// Package sd tells systemd about daemon state: readiness, shutdown and
// watchdog keep-alives. Every call is a no-op outside of systemd.
package sd

import (
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// ErrNotifyNoSocket is returned when NOTIFY_SOCKET is not set
var ErrNotifyNoSocket = errors.New("No socket")

// Notify sends state to the service manager. It is common to ignore the
// error.
func Notify(state string) error {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		return err
	}
	if !sent {
		return ErrNotifyNoSocket
	}
	return nil
}

// Ready reports that startup finished
func Ready() error {
	return Notify(daemon.SdNotifyReady)
}

// Stopping reports that shutdown began
func Stopping() error {
	return Notify(daemon.SdNotifyStopping)
}

// WatchdogEnabled returns how often the service manager expects keep-alives.
// Zero means none are expected.
func WatchdogEnabled() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}

// KeepAlive pings the watchdog at half its interval until stop is closed. It
// returns at once when no watchdog is configured.
func KeepAlive(stop <-chan struct{}) error {
	interval, err := WatchdogEnabled()
	if err != nil || interval == 0 {
		return err
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if err := Notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
