package app

import (
	"fmt"
	"time"

	"depthview/internal/colormap"
	"depthview/internal/config"
	"depthview/internal/task/scheduler"
)

// validateConfig checks what config.Resolve cannot: values owned by other
// packages. It guards both startup and hot reload.
func validateConfig(cfg *config.Config) (config.Runtime, error) {
	rt, err := cfg.Resolve()
	if err != nil {
		return config.Runtime{}, err
	}
	if err := mapCaptureConfig(rt).Validate(); err != nil {
		return config.Runtime{}, fmt.Errorf("capture.%w", err)
	}
	if _, err := colormap.ByName(rt.Colormap); err != nil {
		return config.Runtime{}, fmt.Errorf("display.colormap: %w", err)
	}
	if rt.Timezone != "" {
		if _, err := time.LoadLocation(rt.Timezone); err != nil {
			return config.Runtime{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", rt.Timezone, err)
		}
	}
	if rt.SystemdWatchdog != "" {
		if _, err := scheduler.ParseSchedule(rt.SystemdWatchdog); err != nil {
			return config.Runtime{}, fmt.Errorf("systemd.watchdog: %w", err)
		}
	}
	return rt, nil
}
