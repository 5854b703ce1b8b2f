package config

// Config is the on-disk shape (YAML or JSON). Durations are Go duration
// strings; Resolve turns them into a typed Runtime.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Capture   CaptureConfig   `json:"capture"`
	Display   DisplayConfig   `json:"display"`
	Driver    DriverConfig    `json:"driver"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Systemd   SystemdConfig   `json:"systemd"`

	// ShutdownTimeout bounds how long background work may delay exit.
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CaptureConfig selects and tunes the frame source.
type CaptureConfig struct {
	Driver    string `json:"driver"`
	Framerate int    `json:"framerate"`
	Mode      string `json:"mode"` // close | long
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// DisplayConfig controls the display schedule.
//
// Example:
//
//	display:
//	  sink: web
//	  interval: 100ms
//	  web: { addr: "127.0.0.1:8085" }
type DisplayConfig struct {
	Sink          string    `json:"sink"` // headless | web | window
	Window        string    `json:"window"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Interval      string    `json:"interval"`
	Colormap      string    `json:"colormap"`
	PumpWait      string    `json:"pump_wait"`
	StopOnFailure bool      `json:"stop_on_failure"`
	Web           WebConfig `json:"web"`
}

type WebConfig struct {
	Addr string `json:"addr"`
}

type DriverConfig struct {
	Tick string `json:"tick"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the optional recorder backend.
//
//	storage: { driver: file, path: ./depthview_data/run }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SystemdConfig enables sd_notify readiness and watchdog pings. Both are
// no-ops when the process is not run by systemd.
type SystemdConfig struct {
	Notify   bool   `json:"notify"`
	Watchdog string `json:"watchdog,omitempty"` // cron or interval; empty derives it from WATCHDOG_USEC
}
