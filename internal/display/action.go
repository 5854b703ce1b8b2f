package display

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"depthview/internal/capture"
	"depthview/internal/colormap"
)

const (
	DefaultWindow   = "view"
	DefaultWidth    = 640
	DefaultHeight   = 480
	DefaultPumpWait = time.Millisecond
)

// Action fetches the latest frame, colorizes and resizes it, and shows it.
// It is meant to be run once per scheduler cycle; errors are returned to
// the scheduler rather than handled here.
type Action struct {
	Source   capture.Reader
	Colorize colormap.Func
	Sink     Sink
	Window   string
	Width    int
	Height   int
	PumpWait time.Duration
}

func (a *Action) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, ok := a.Source.LatestFrame()
	if !ok {
		return capture.ErrNoFrame
	}
	img, err := a.Render(f)
	if err != nil {
		return err
	}
	window := a.Window
	if window == "" {
		window = DefaultWindow
	}
	if err := a.Sink.Show(window, img); err != nil {
		return fmt.Errorf("show %q: %w", window, err)
	}
	wait := a.PumpWait
	if wait <= 0 {
		wait = DefaultPumpWait
	}
	if err := a.Sink.PumpEvents(wait); err != nil {
		return fmt.Errorf("pump events: %w", err)
	}
	return nil
}

// Render is the pure part of Run: color map, then bilinear resize.
func (a *Action) Render(f capture.Frame) (image.Image, error) {
	if f.Depth == nil {
		return nil, capture.ErrNoFrame
	}
	colorize := a.Colorize
	if colorize == nil {
		colorize = colormap.Jet
	}
	w, h := a.Width, a.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	rgb := colorize(f.Depth)
	if b := rgb.Bounds(); b.Dx() == w && b.Dy() == h {
		return rgb, nil
	}
	return imaging.Resize(rgb, w, h, imaging.Linear), nil
}
