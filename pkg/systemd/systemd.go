// Package systemd reports service state to the service manager.
// Every call is a no-op when the process is not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func Ready() error     { return notify(daemon.SdNotifyReady) }
func Stopping() error  { return notify(daemon.SdNotifyStopping) }
func Reloading() error { return notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(msg string) error { return notify("STATUS=" + msg) }

func notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

// Watchdog pings the service manager at half the configured WatchdogSec
// until ctx is done. It returns at once when the watchdog is not enabled.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
