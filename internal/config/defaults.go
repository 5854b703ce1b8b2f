package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultInterval        = 100 * time.Millisecond
	DefaultTick            = 50 * time.Millisecond
	DefaultPumpWait        = time.Millisecond
	DefaultShutdownTimeout = 3 * time.Second
)

// Default is what runs when no config file exists. Decoding a file on top of
// it only overrides the keys the file sets.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Capture: CaptureConfig{Driver: "synthetic", Framerate: 30, Mode: "close", Width: 320, Height: 240},
		Display: DisplayConfig{
			Sink:     "headless",
			Window:   "view",
			Width:    640,
			Height:   480,
			Interval: DefaultInterval.String(),
			Colormap: "jet",
			PumpWait: DefaultPumpWait.String(),
			Web:      WebConfig{Addr: "127.0.0.1:8085"},
		},
		Driver:          DriverConfig{Tick: DefaultTick.String()},
		ShutdownTimeout: DefaultShutdownTimeout.String(),
	}
}

// Runtime is a validated Config with parsed durations.
type Runtime struct {
	Logging LoggingConfig
	Capture CaptureConfig

	DisplaySink     string
	DisplayWindow   string
	DisplayWidth    int
	DisplayHeight   int
	DisplayInterval time.Duration
	Colormap        string
	PumpWait        time.Duration
	StopOnFailure   bool
	WebAddr         string

	DriverTick time.Duration
	Timezone   string

	StorageDriver      string
	StoragePath        string
	StorageBusyTimeout time.Duration

	SystemdNotify   bool
	SystemdWatchdog string

	ShutdownTimeout time.Duration
}

// Resolve validates cfg. Errors name the offending key.
func (c *Config) Resolve() (Runtime, error) {
	if c == nil {
		d := Default()
		c = &d
	}
	rt := Runtime{
		Logging:         c.Logging,
		Capture:         c.Capture,
		DisplaySink:     strings.ToLower(strings.TrimSpace(c.Display.Sink)),
		DisplayWindow:   strings.TrimSpace(c.Display.Window),
		DisplayWidth:    c.Display.Width,
		DisplayHeight:   c.Display.Height,
		Colormap:        strings.TrimSpace(c.Display.Colormap),
		StopOnFailure:   c.Display.StopOnFailure,
		WebAddr:         strings.TrimSpace(c.Display.Web.Addr),
		Timezone:        strings.TrimSpace(c.Scheduler.Timezone),
		SystemdNotify:   c.Systemd.Notify,
		SystemdWatchdog: strings.TrimSpace(c.Systemd.Watchdog),
	}
	var err error

	switch rt.DisplaySink {
	case "":
		rt.DisplaySink = "headless"
	case "headless", "web", "window":
	default:
		return Runtime{}, fmt.Errorf("display.sink: unknown sink %q (use headless, web or window)", c.Display.Sink)
	}
	if rt.DisplayWindow == "" {
		rt.DisplayWindow = "view"
	}
	if rt.DisplayWidth < 0 || rt.DisplayHeight < 0 {
		return Runtime{}, fmt.Errorf("display: width and height must be >= 0")
	}
	if rt.DisplayInterval, err = ParsePositiveDuration("display.interval", c.Display.Interval, DefaultInterval); err != nil {
		return Runtime{}, err
	}
	if rt.PumpWait, err = ParseDurationOrDefault("display.pump_wait", c.Display.PumpWait, DefaultPumpWait); err != nil {
		return Runtime{}, err
	}
	if rt.DisplaySink == "web" && rt.WebAddr == "" {
		return Runtime{}, fmt.Errorf("display.web.addr: required when display.sink is web")
	}
	if rt.DriverTick, err = ParsePositiveDuration("driver.tick", c.Driver.Tick, DefaultTick); err != nil {
		return Runtime{}, err
	}
	if rt.ShutdownTimeout, err = ParseDurationOrDefault("shutdown_timeout", c.ShutdownTimeout, DefaultShutdownTimeout); err != nil {
		return Runtime{}, err
	}

	rt.StorageDriver = "none"
	if s := c.Storage; s != nil {
		rt.StorageDriver = strings.ToLower(strings.TrimSpace(s.Driver))
		rt.StoragePath = strings.TrimSpace(s.Path)
		switch rt.StorageDriver {
		case "", "none":
			rt.StorageDriver = "none"
		case "file", "sqlite", "sqlite3":
			if rt.StoragePath == "" {
				return Runtime{}, fmt.Errorf("storage.path: required for driver %q", rt.StorageDriver)
			}
		default:
			return Runtime{}, fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if rt.StorageBusyTimeout, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return Runtime{}, err
		}
	}
	return rt, nil
}
