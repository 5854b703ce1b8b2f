package config

import (
	"reflect"

	logx "depthview/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ, with a few
// fields worth logging.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields, logx.String("logging.level", newCfg.Logging.Level))
	}
	if oldCfg.Capture != newCfg.Capture {
		changed = append(changed, "capture")
	}
	if oldCfg.Display != newCfg.Display {
		changed = append(changed, "display")
		fields = append(fields,
			logx.String("display.sink", newCfg.Display.Sink),
			logx.String("display.interval", newCfg.Display.Interval),
		)
	}
	if oldCfg.Driver != newCfg.Driver {
		changed = append(changed, "driver")
		fields = append(fields, logx.String("driver.tick", newCfg.Driver.Tick))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
	}
	if oldCfg.ShutdownTimeout != newCfg.ShutdownTimeout {
		changed = append(changed, "shutdown_timeout")
	}
	return changed, fields
}
