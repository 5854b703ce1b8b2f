package driver

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/capture"
	"depthview/internal/eventbus"
	"depthview/internal/task/repeat"
)

// syncBuffer guards bytes.Buffer for a writer and a concurrent reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSuffix(b.buf.String(), "\n"), "\n")
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestSampleLine(t *testing.T) {
	t.Parallel()
	at := time.Unix(1700000000, 260_000_000)
	s := Sample{At: at, FramesReceived: 42, LastTimestamp: 1401}
	assert.Equal(t, "1700000000.3 42 1401\n", s.Line())

	assert.Equal(t, "1700000000.0 0 0\n", Sample{At: time.Unix(1700000000, 0)}.Line())
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(capture.NewStore(1, 1), WithTick(0))
	assert.ErrorIs(t, err, ErrInvalidTick)

	l, err := New(capture.NewStore(1, 1))
	require.NoError(t, err)
	assert.Equal(t, DefaultTick, l.Tick())
	assert.ErrorIs(t, l.SetTick(-time.Second), ErrInvalidTick)
}

func TestLoopPrintsMetadataPerTick(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	store := capture.NewStore(1, 1)
	var out syncBuffer
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64, EventTick)
	defer unsub()

	var hooked atomic.Int64
	l, err := New(store, WithClock(mock), WithWriter(&out), WithBus(bus), OnTick(func(Sample) { hooked.Add(1) }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		mock.Add(DefaultTick)
		return l.Ticks() >= 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, store.Publish([]uint16{100}, 733))
	n := l.Ticks()
	require.Eventually(t, func() bool {
		mock.Add(DefaultTick)
		return l.Ticks() > n
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	lines := out.Lines()
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasSuffix(lines[0], " 0 0"), lines[0])
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], " 1 733"), lines[len(lines)-1])
	assert.Equal(t, int64(l.Ticks()), hooked.Load())

	ev := <-events
	s, ok := ev.Data.(Sample)
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.Seq)
	assert.False(t, s.Available)
}

func TestSetTickRetunesRunningLoop(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	l, err := New(capture.NewStore(1, 1), WithClock(mock), WithWriter(nil), WithTick(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	require.NoError(t, l.SetTick(10*time.Millisecond))
	require.Eventually(t, func() bool {
		mock.Add(10 * time.Millisecond)
		return l.Ticks() >= 3
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, l.Tick())
}

func TestWriteErrorStopsLoop(t *testing.T) {
	t.Parallel()
	l, err := New(capture.NewStore(1, 1), WithWriter(errWriter{}), WithTick(time.Millisecond))
	require.NoError(t, err)
	err = l.Run(context.Background())
	assert.ErrorContains(t, err, "closed pipe")
}

// Default cadences: display every 0.10s, driver
// every 0.05s, observed for one second.
func TestDisplayAndDriverCadences(t *testing.T) {
	store := capture.NewStore(2, 2)
	require.NoError(t, store.Publish([]uint16{1, 2, 3, 4}, 1))

	var shows atomic.Int64
	r, err := repeat.New(100*time.Millisecond, func(ctx context.Context) error {
		if _, ok := store.LatestFrame(); !ok {
			return capture.ErrNoFrame
		}
		shows.Add(1)
		return nil
	})
	require.NoError(t, err)

	var out syncBuffer
	l, err := New(store, WithWriter(&out), WithTick(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start()
	go func() { _ = l.Run(ctx) }()

	time.Sleep(time.Second)
	invocations, lines := shows.Load(), l.Ticks()
	cancel()
	r.Stop()

	assert.InDelta(t, 10, invocations, 1)
	assert.InDelta(t, 20, lines, 1)
	assert.InDelta(t, lines, len(out.Lines()), 1)
}

// A slow display action must not slow the driver down, and a slow driver
// hook must not slow the display down.
func TestTimelinesAreIndependent(t *testing.T) {
	store := capture.NewStore(1, 1)

	var shows atomic.Int64
	r, err := repeat.Start(100*time.Millisecond, repeat.Func(func() {
		shows.Add(1)
		time.Sleep(250 * time.Millisecond)
	}))
	require.NoError(t, err)

	l, err := New(store, WithWriter(nil), WithTick(50*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()

	time.Sleep(time.Second)
	ticks := l.Ticks()
	cancel()
	r.Stop()
	assert.InDelta(t, 20, ticks, 2)
	assert.LessOrEqual(t, shows.Load(), int64(3))

	var fast atomic.Int64
	r2, err := repeat.Start(20*time.Millisecond, repeat.Func(func() { fast.Add(1) }))
	require.NoError(t, err)
	slow, err := New(store, WithWriter(nil), WithTick(10*time.Millisecond), OnTick(func(Sample) {
		time.Sleep(200 * time.Millisecond)
	}))
	require.NoError(t, err)
	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() { _ = slow.Run(ctx2) }()

	time.Sleep(500 * time.Millisecond)
	cancel2()
	r2.Stop()
	assert.GreaterOrEqual(t, fast.Load(), int64(10))
	assert.LessOrEqual(t, slow.Ticks(), uint64(4))
}
