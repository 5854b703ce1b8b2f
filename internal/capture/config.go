package capture

import (
	"fmt"
	"strings"
)

const (
	DriverSynthetic = "synthetic"

	ModeClose = "close"
	ModeLong  = "long"

	DefaultFramerate = 30
	DefaultWidth     = 320
	DefaultHeight    = 240
)

// Config mirrors the capture section of the config file.
type Config struct {
	Driver    string
	Framerate int
	Mode      string
	Width     int
	Height    int
}

// WithDefaults fills unset fields with the QVGA close-range profile.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.Driver) == "" {
		c.Driver = DriverSynthetic
	}
	if c.Framerate == 0 {
		c.Framerate = DefaultFramerate
	}
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = ModeClose
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	return c
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverSynthetic:
	default:
		return fmt.Errorf("driver: unknown capture driver %q", c.Driver)
	}
	if c.Framerate <= 0 || c.Framerate > 120 {
		return fmt.Errorf("framerate: must be in 1..120, got %d", c.Framerate)
	}
	switch c.Mode {
	case ModeClose, ModeLong:
	default:
		return fmt.Errorf("mode: must be %q or %q, got %q", ModeClose, ModeLong, c.Mode)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("size: width and height must be positive, got %dx%d", c.Width, c.Height)
	}
	return nil
}
