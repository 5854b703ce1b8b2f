// Package driver is the foreground loop: on every tick it samples capture
// metadata and prints one line. It shares nothing with the display schedule
// except the capture store, so the two cadences drift freely.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"depthview/internal/capture"
	"depthview/internal/eventbus"
	logx "depthview/pkg/logx"
)

// EventTick is published once per tick; Data is a Sample.
const EventTick = "driver.tick"

const DefaultTick = 50 * time.Millisecond

var ErrInvalidTick = errors.New("driver: tick must be positive")

// Sample is what one tick observed.
type Sample struct {
	Seq            uint64    `json:"seq"`
	At             time.Time `json:"at"`
	FramesReceived uint64    `json:"frames_received"`
	LastTimestamp  uint32    `json:"last_timestamp"`
	Available      bool      `json:"available"`
}

// Line formats the sample the way it is printed: wall clock seconds rounded
// to a tenth, frames received, last device timestamp in ms.
func (s Sample) Line() string {
	secs := math.Round(float64(s.At.UnixNano())/1e8) / 10
	return fmt.Sprintf("%.1f %d %d\n", secs, s.FramesReceived, s.LastTimestamp)
}

type Loop struct {
	src    capture.Reader
	clock  clock.Clock
	out    io.Writer
	bus    eventbus.Bus
	log    logx.Logger
	onTick func(Sample)

	tick   atomic.Int64
	retune chan time.Duration
	ticks  atomic.Uint64
}

type Option func(*Loop)

func WithTick(d time.Duration) Option { return func(l *Loop) { l.tick.Store(int64(d)) } }

func WithClock(c clock.Clock) Option { return func(l *Loop) { l.clock = c } }

// WithWriter sets where lines go; nil discards them. Default os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(l *Loop) {
		if w == nil {
			w = io.Discard
		}
		l.out = w
	}
}

func WithBus(b eventbus.Bus) Option { return func(l *Loop) { l.bus = b } }

func WithLogger(log logx.Logger) Option { return func(l *Loop) { l.log = log } }

// OnTick registers a hook called synchronously after each line.
func OnTick(fn func(Sample)) Option { return func(l *Loop) { l.onTick = fn } }

func New(src capture.Reader, opts ...Option) (*Loop, error) {
	if src == nil {
		return nil, errors.New("driver: nil capture source")
	}
	l := &Loop{src: src, retune: make(chan time.Duration, 1)}
	l.tick.Store(int64(DefaultTick))
	for _, o := range opts {
		o(l)
	}
	if l.Tick() <= 0 {
		return nil, ErrInvalidTick
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.out == nil {
		l.out = os.Stdout
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	return l, nil
}

func (l *Loop) Tick() time.Duration { return time.Duration(l.tick.Load()) }

// Ticks reports how many lines have been produced.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// SetTick changes the cadence of a running loop from the next tick on.
func (l *Loop) SetTick(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidTick
	}
	if time.Duration(l.tick.Swap(int64(d))) == d {
		return nil
	}
	select {
	case <-l.retune:
	default:
	}
	l.retune <- d
	return nil
}

// Run blocks until ctx is done. It only fails if the writer does.
func (l *Loop) Run(ctx context.Context) error {
	t := l.clock.Ticker(l.Tick())
	defer t.Stop()
	l.log.Debug("driver started", logx.Duration("tick", l.Tick()))

	for {
		select {
		case <-ctx.Done():
			l.log.Debug("driver stopped", logx.Uint64("ticks", l.ticks.Load()))
			return nil
		case d := <-l.retune:
			t.Reset(d)
			l.log.Info("driver tick changed", logx.Duration("tick", d))
		case now := <-t.C:
			if err := l.step(now); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) step(now time.Time) error {
	md := l.src.Metadata()
	s := Sample{
		Seq:            l.ticks.Add(1),
		At:             now,
		FramesReceived: md.FramesReceived,
		LastTimestamp:  md.LastTimestamp,
		Available:      md.Available,
	}
	if _, err := io.WriteString(l.out, s.Line()); err != nil {
		return fmt.Errorf("driver: write: %w", err)
	}
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: EventTick, Time: now, Data: s})
	}
	if l.onTick != nil {
		l.onTick(s)
	}
	return nil
}
