// Package display renders depth frames into named windows.
//
// A Sink is whatever shows the pixels: a native window, an HTTP preview or
// nothing at all. Action is the per-cycle pipeline the scheduler runs.
package display

import (
	"errors"
	"image"
	"sync"
	"time"
)

var ErrUnknownSink = errors.New("display: unknown sink")

const (
	SinkHeadless = "headless"
	SinkWeb      = "web"
	SinkWindow   = "window"
)

// Sink shows images in named windows.
type Sink interface {
	Show(window string, img image.Image) error
	// PumpEvents gives the sink a chance to process UI events, waiting at
	// most wait.
	PumpEvents(wait time.Duration) error
	Close() error
}

// Discard is a headless Sink. It keeps the last image per window so tests
// and diagnostics can inspect what would have been shown.
type Discard struct {
	mu     sync.Mutex
	shows  uint64
	pumps  uint64
	last   map[string]image.Image
	closed bool
}

func NewDiscard() *Discard { return &Discard{last: map[string]image.Image{}} }

func (d *Discard) Show(window string, img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("display: sink closed")
	}
	d.shows++
	d.last[window] = img
	return nil
}

func (d *Discard) PumpEvents(time.Duration) error {
	d.mu.Lock()
	d.pumps++
	d.mu.Unlock()
	return nil
}

func (d *Discard) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Discard) Counts() (shows, pumps uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shows, d.pumps
}

func (d *Discard) Last(window string) (image.Image, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.last[window]
	return img, ok
}

var _ Sink = (*Discard)(nil)
