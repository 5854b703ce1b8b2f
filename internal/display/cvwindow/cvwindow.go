//go:build gocv
// +build gocv

package cvwindow

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"depthview/internal/display"
	logx "depthview/pkg/logx"
)

// Sink owns one gocv.Window per window name. Every HighGUI call runs on a
// single locked OS thread, whichever goroutine calls Show or PumpEvents.
type Sink struct {
	log    logx.Logger
	thread *guiThread

	// touched only on the gui thread
	windows map[string]*gocv.Window

	mu      sync.Mutex
	closed  bool
	lastKey int
}

func New(log logx.Logger) (*Sink, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{log: log, thread: newGUIThread(), windows: map[string]*gocv.Window{}, lastKey: -1}, nil
}

func (s *Sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sink) Show(name string, img image.Image) error {
	if s.isClosed() {
		return errors.New("cvwindow: sink closed")
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("cvwindow: convert: %w", err)
	}
	defer mat.Close()

	return s.thread.do(func() error {
		w := s.windows[name]
		if w == nil {
			w = gocv.NewWindow(name)
			s.windows[name] = w
			s.log.Debug("window opened", logx.String("window", name))
		}
		w.IMShow(mat)
		return nil
	})
}

// PumpEvents runs the HighGUI event loop for at least one millisecond.
func (s *Sink) PumpEvents(wait time.Duration) error {
	ms := int(wait / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return s.thread.do(func() error {
		// WaitKey pumps events for every window, so any one will do.
		for _, w := range s.windows {
			if k := w.WaitKey(ms); k >= 0 {
				s.mu.Lock()
				s.lastKey = k
				s.mu.Unlock()
			}
			return nil
		}
		return nil
	})
}

// LastKey is the most recent key pressed in any window, or -1.
func (s *Sink) LastKey() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastKey
}

func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.thread.do(func() error {
		var errs []error
		for name, w := range s.windows {
			if err := w.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %q: %w", name, err))
			}
		}
		return errors.Join(errs...)
	})
	s.thread.stop()
	return err
}

var _ display.Sink = (*Sink)(nil)
