package capture

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrNoFrame is returned by consumers that need a frame before the source
// has produced one.
var ErrNoFrame = errors.New("capture: no frame available yet")

// Frame is one quantized depth image.
type Frame struct {
	Depth      *image.Gray
	Seq        uint64 // frames received so far, including this one
	DeviceTime uint32 // ms on the device clock
	ReceivedAt time.Time
}

// Metadata is the pair printed by the driver loop.
type Metadata struct {
	FramesReceived uint64
	LastTimestamp  uint32
	Available      bool
}

// Reader is the consumer side of a capture source.
type Reader interface {
	LatestFrame() (Frame, bool)
	Metadata() Metadata
}

// Store keeps the most recent frame. Publish replaces it atomically, so a
// reader always sees a frame together with the counters that came with it.
type Store struct {
	width, height int
	clock         clock.Clock

	latest   atomic.Pointer[Frame]
	received atomic.Uint64
}

type StoreOption func(*Store)

func WithStoreClock(c clock.Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

func NewStore(width, height int, opts ...StoreOption) *Store {
	s := &Store{width: width, height: height}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	return s
}

func (s *Store) Bounds() image.Rectangle { return image.Rect(0, 0, s.width, s.height) }

// Publish quantizes raw row-major depth samples into a new frame.
func (s *Store) Publish(depth []uint16, deviceTime uint32) error {
	if len(depth) != s.width*s.height {
		return fmt.Errorf("capture: frame has %d samples, want %dx%d", len(depth), s.width, s.height)
	}
	img := image.NewGray(s.Bounds())
	for i, d := range depth {
		img.Pix[i] = Quantize(d)
	}
	s.PublishImage(img, deviceTime)
	return nil
}

// PublishImage stores an already quantized frame. The image must not be
// modified afterwards.
func (s *Store) PublishImage(img *image.Gray, deviceTime uint32) {
	f := &Frame{
		Depth:      img,
		Seq:        s.received.Add(1),
		DeviceTime: deviceTime,
		ReceivedAt: s.clock.Now(),
	}
	for {
		cur := s.latest.Load()
		if cur != nil && cur.Seq > f.Seq {
			return
		}
		if s.latest.CompareAndSwap(cur, f) {
			return
		}
	}
}

// LatestFrame never blocks; ok is false until the first Publish.
func (s *Store) LatestFrame() (Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

func (s *Store) Metadata() Metadata {
	f := s.latest.Load()
	if f == nil {
		return Metadata{}
	}
	return Metadata{FramesReceived: f.Seq, LastTimestamp: f.DeviceTime, Available: true}
}
