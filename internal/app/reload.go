package app

import (
	"context"
	"slices"
	"strings"

	"depthview/internal/config"
	"depthview/internal/task/scheduler"
	logx "depthview/pkg/logx"
)

// restartOnly lists sections whose changes are accepted but only take
// effect after a restart.
var restartOnly = []string{"capture", "storage"}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(lastApplied, next)
			lastApplied = next
		}
	}
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	rt, err := next.Resolve()
	if err != nil {
		a.log.Warn("config reload ignored", logx.Err(err))
		return
	}
	prevRT := a.rt
	a.rt = rt

	for _, s := range sections {
		if slices.Contains(restartOnly, s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(next.Logging))

	if err := a.driver.SetTick(rt.DriverTick); err != nil {
		a.log.Warn("driver tick not applied", logx.Err(err))
	}

	a.sched.Apply(scheduler.Config{Timezone: rt.Timezone})

	if rt.DisplaySink != prevRT.DisplaySink || rt.WebAddr != prevRT.WebAddr {
		a.log.Warn("display sink changed; restart required for changes to take effect", logx.String("sink", rt.DisplaySink))
	}
	if displayChanged(prevRT, rt) {
		if err := a.registerDisplay(rt); err != nil {
			a.log.Warn("display schedule not updated", logx.Err(err))
		}
	}

	if rt.SystemdNotify != prevRT.SystemdNotify {
		a.log.Warn("systemd.notify changed; restart required for changes to take effect")
	}
	if rt.SystemdWatchdog != prevRT.SystemdWatchdog {
		if err := a.registerWatchdog(rt); err != nil {
			a.log.Warn("watchdog not rescheduled", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func displayChanged(a, b config.Runtime) bool {
	return a.DisplayInterval != b.DisplayInterval ||
		a.DisplayWindow != b.DisplayWindow ||
		a.DisplayWidth != b.DisplayWidth ||
		a.DisplayHeight != b.DisplayHeight ||
		a.Colormap != b.Colormap ||
		a.PumpWait != b.PumpWait ||
		a.StopOnFailure != b.StopOnFailure
}
