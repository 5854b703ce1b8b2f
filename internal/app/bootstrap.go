package app

import (
	"context"
	"errors"
	"fmt"

	"depthview/internal/capture"
	"depthview/internal/colormap"
	"depthview/internal/config"
	"depthview/internal/display"
	"depthview/internal/display/cvwindow"
	"depthview/internal/display/web"
	logx "depthview/pkg/logx"
)

func mapLogConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func mapCaptureConfig(rt config.Runtime) capture.Config {
	c := rt.Capture
	return capture.Config{
		Driver:    c.Driver,
		Framerate: c.Framerate,
		Mode:      c.Mode,
		Width:     c.Width,
		Height:    c.Height,
	}.WithDefaults()
}

// sinkHandle is a built sink plus the background loop it needs, if any.
type sinkHandle struct {
	kind  string
	sink  display.Sink
	serve func(ctx context.Context) error
}

// newSink builds the configured sink. A window sink in a build without gocv
// degrades to headless instead of failing startup.
func newSink(rt config.Runtime, log logx.Logger, status func() any) (sinkHandle, error) {
	switch rt.DisplaySink {
	case display.SinkHeadless, "":
		return sinkHandle{kind: display.SinkHeadless, sink: display.NewDiscard()}, nil
	case display.SinkWeb:
		opts := []web.Option{web.WithAddr(rt.WebAddr), web.WithLogger(log.With(logx.String("comp", "display.web")))}
		if status != nil {
			opts = append(opts, web.WithStatus(status))
		}
		s := web.New(opts...)
		return sinkHandle{kind: display.SinkWeb, sink: s, serve: s.Serve}, nil
	case display.SinkWindow:
		s, err := cvwindow.New(log.With(logx.String("comp", "display.window")))
		if errors.Is(err, cvwindow.ErrUnavailable) {
			log.Warn("window sink unavailable; falling back to headless", logx.Err(err))
			return sinkHandle{kind: display.SinkHeadless, sink: display.NewDiscard()}, nil
		}
		if err != nil {
			return sinkHandle{}, err
		}
		return sinkHandle{kind: display.SinkWindow, sink: s}, nil
	default:
		return sinkHandle{}, fmt.Errorf("%w: %q", display.ErrUnknownSink, rt.DisplaySink)
	}
}

func newDisplayAction(rt config.Runtime, src capture.Reader, sink display.Sink) (*display.Action, error) {
	cm, err := colormap.ByName(rt.Colormap)
	if err != nil {
		return nil, fmt.Errorf("display.colormap: %w", err)
	}
	return &display.Action{
		Source:   src,
		Colorize: cm,
		Sink:     sink,
		Window:   rt.DisplayWindow,
		Width:    rt.DisplayWidth,
		Height:   rt.DisplayHeight,
		PumpWait: rt.PumpWait,
	}, nil
}
