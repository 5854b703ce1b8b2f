package capture

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	logx "depthview/pkg/logx"
)

// Synthetic produces a moving depth pattern at the configured frame rate.
// It stands in for the DS325 sensor: same geometry, rate and value range,
// including a ring of saturated pixels.
type Synthetic struct {
	cfg   Config
	store *Store
	clock clock.Clock
	log   logx.Logger
	buf   []uint16
}

type SyntheticOption func(*Synthetic)

func WithClock(c clock.Clock) SyntheticOption {
	return func(s *Synthetic) { s.clock = c }
}

func WithLogger(log logx.Logger) SyntheticOption {
	return func(s *Synthetic) { s.log = log }
}

func NewSynthetic(cfg Config, opts ...SyntheticOption) (*Synthetic, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Synthetic{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.store = NewStore(cfg.Width, cfg.Height, WithStoreClock(s.clock))
	s.buf = make([]uint16, cfg.Width*cfg.Height)
	return s, nil
}

func (s *Synthetic) Store() *Store { return s.store }

func (s *Synthetic) LatestFrame() (Frame, bool) { return s.store.LatestFrame() }

func (s *Synthetic) Metadata() Metadata { return s.store.Metadata() }

// Run publishes frames until ctx is done. The first frame arrives one
// frame period after Run starts.
func (s *Synthetic) Run(ctx context.Context) error {
	period := time.Second / time.Duration(s.cfg.Framerate)
	t := s.clock.Ticker(period)
	defer t.Stop()

	start := s.clock.Now()
	s.log.Info("capture started",
		logx.String("driver", s.cfg.Driver),
		logx.String("mode", s.cfg.Mode),
		logx.Int("fps", s.cfg.Framerate),
		logx.Int("width", s.cfg.Width),
		logx.Int("height", s.cfg.Height),
	)
	for {
		select {
		case <-ctx.Done():
			md := s.store.Metadata()
			s.log.Info("capture stopped", logx.Uint64("frames", md.FramesReceived))
			return nil
		case now := <-t.C:
			ms := uint32(now.Sub(start) / time.Millisecond)
			s.fill(ms)
			if err := s.store.Publish(s.buf, ms); err != nil {
				return err
			}
		}
	}
}

// depth range in mm per mode
func (s *Synthetic) span() (near, far float64) {
	if s.cfg.Mode == ModeLong {
		return 500, 4000
	}
	return 150, 1000
}

func (s *Synthetic) fill(ms uint32) {
	near, far := s.span()
	w, h := s.cfg.Width, s.cfg.Height
	cx, cy := float64(w)/2, float64(h)/2
	maxR := math.Hypot(cx, cy)
	phase := float64(ms) / 1000 * 2 * math.Pi / 3

	for y := 0; y < h; y++ {
		row := s.buf[y*w : (y+1)*w]
		for x := range row {
			r := math.Hypot(float64(x)-cx, float64(y)-cy) / maxR
			if r > 0.97 {
				row[x] = Saturated
				continue
			}
			wave := 0.5 + 0.5*math.Sin(r*4*math.Pi-phase)
			row[x] = uint16(near + (far-near)*(0.6*r+0.4*wave))
		}
	}
}
