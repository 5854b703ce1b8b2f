package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"depthview/internal/config"
	"depthview/internal/driver"
	"depthview/internal/task/repeat"
	logx "depthview/pkg/logx"
	"depthview/pkg/systemd"
)

const (
	displaySchedule  = "display"
	watchdogSchedule = "systemd.watchdog"

	displayHistory = 64
)

func displayOptions(rt config.Runtime) []repeat.Option {
	opts := []repeat.Option{repeat.WithHistory(displayHistory)}
	if rt.StopOnFailure {
		opts = append(opts, repeat.WithFailurePolicy(repeat.StopOnFailure))
	}
	return opts
}

// registerDisplay (re)registers the display action. Registering again under
// the same name replaces the running repeater without overlap.
func (a *App) registerDisplay(rt config.Runtime) error {
	act, err := newDisplayAction(rt, a.capture, a.sink.sink)
	if err != nil {
		return err
	}
	if _, err := a.sched.AddInterval(displaySchedule, rt.DisplayInterval, act.Run, displayOptions(rt)...); err != nil {
		return fmt.Errorf("display schedule: %w", err)
	}
	return nil
}

// watchdog pings systemd only while the driver loop is making progress.
type watchdog struct {
	notify    *systemd.Notifier
	loop      *driver.Loop
	lastTicks atomic.Uint64
	seen      atomic.Bool
}

var errDriverStalled = errors.New("driver stalled; withholding watchdog ping")

func (w *watchdog) ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := w.loop.Ticks()
	prev := w.lastTicks.Swap(n)
	if w.seen.Swap(true) && prev == n {
		return errDriverStalled
	}
	_, err := w.notify.Watchdog()
	return err
}

// registerWatchdog schedules watchdog pings: the configured spec when set,
// otherwise half of the unit's WatchdogSec. Without either it removes any
// existing schedule.
func (a *App) registerWatchdog(rt config.Runtime) error {
	if !a.notify.Enabled() {
		return nil
	}
	if rt.SystemdWatchdog != "" {
		_, err := a.sched.AddSchedule(watchdogSchedule, rt.SystemdWatchdog, a.wd.ping)
		return err
	}
	every, err := a.notify.WatchdogInterval()
	if err != nil {
		return fmt.Errorf("systemd watchdog: %w", err)
	}
	if every <= 0 {
		if a.sched.Has(watchdogSchedule) {
			return a.sched.Remove(watchdogSchedule)
		}
		return nil
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	_, err = a.sched.AddInterval(watchdogSchedule, every, a.wd.ping)
	return err
}
