// Package recorder persists driver samples and scheduler cycles from the
// event bus into a storage.Store.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"depthview/internal/driver"
	"depthview/internal/eventbus"
	"depthview/internal/storage"
	"depthview/internal/task/repeat"
	logx "depthview/pkg/logx"
)

const (
	defaultBuffer = 256
	writeTimeout  = 2 * time.Second
)

// Recorder tags every row with one session id per process run.
type Recorder struct {
	bus     eventbus.Bus
	store   storage.Store
	log     logx.Logger
	session string
	buffer  int
}

type Option func(*Recorder)

func WithSession(id string) Option { return func(r *Recorder) { r.session = id } }

func WithBuffer(n int) Option { return func(r *Recorder) { r.buffer = n } }

func New(bus eventbus.Bus, store storage.Store, log logx.Logger, opts ...Option) (*Recorder, error) {
	if bus == nil || store == nil {
		return nil, errors.New("recorder: bus and store are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Recorder{bus: bus, store: store, log: log, buffer: defaultBuffer}
	for _, o := range opts {
		o(r)
	}
	if r.session == "" {
		r.session = uuid.NewString()
	}
	if r.buffer <= 0 {
		r.buffer = defaultBuffer
	}
	return r, nil
}

func (r *Recorder) Session() string { return r.session }

// Run records until ctx is done, then drains what is already queued.
// Write failures are logged and skipped.
func (r *Recorder) Run(ctx context.Context) error {
	events, unsub := r.bus.Subscribe(r.buffer, driver.EventTick, repeat.EventCycle)
	defer unsub()
	r.log.Info("recording", logx.String("session", r.session))

	var written, failed uint64
	defer func() {
		r.log.Info("recording stopped", logx.String("session", r.session), logx.Uint64("written", written), logx.Uint64("failed", failed))
	}()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-events:
					r.count(r.write(ev), &written, &failed)
				default:
					return nil
				}
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.count(r.write(ev), &written, &failed)
		}
	}
}

func (r *Recorder) count(err error, written, failed *uint64) {
	if err == nil {
		*written++
		return
	}
	*failed++
	if *failed == 1 || *failed%100 == 0 {
		r.log.Warn("record failed", logx.Uint64("failed", *failed), logx.Err(err))
	}
}

func (r *Recorder) write(ev eventbus.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	switch v := ev.Data.(type) {
	case driver.Sample:
		return r.store.AppendSample(ctx, storage.Sample{
			Session:        r.session,
			Seq:            v.Seq,
			At:             v.At,
			FramesReceived: v.FramesReceived,
			LastTimestamp:  v.LastTimestamp,
			Available:      v.Available,
		})
	case repeat.Cycle:
		return r.store.AppendCycle(ctx, storage.CycleRecord{
			Session: r.session,
			Name:    v.Name,
			Seq:     v.Seq,
			Started: v.Started,
			TookMS:  float64(v.Duration) / float64(time.Millisecond),
			Error:   v.Error,
		})
	default:
		return nil
	}
}
