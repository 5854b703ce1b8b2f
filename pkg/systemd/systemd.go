// Package systemd speaks the sd_notify protocol. Every call is a no-op when
// the process was not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state changes to the service manager.
type Notifier struct {
	enabled bool
}

func New(enabled bool) *Notifier { return &Notifier{enabled: enabled} }

func (n *Notifier) Enabled() bool { return n != nil && n.enabled }

// Ready reports whether the notification was actually delivered.
func (n *Notifier) Ready() (bool, error) { return n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() (bool, error) { return n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Watchdog() (bool, error) { return n.send(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) (bool, error) { return n.send("STATUS=" + s) }

func (n *Notifier) send(state string) (bool, error) {
	if !n.Enabled() {
		return false, nil
	}
	return daemon.SdNotify(false, state)
}

// WatchdogInterval is half of WATCHDOG_USEC, the usual ping cadence, or zero
// when the unit has no watchdog configured.
func (n *Notifier) WatchdogInterval() (time.Duration, error) {
	if !n.Enabled() {
		return 0, nil
	}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, err
	}
	return d / 2, nil
}
