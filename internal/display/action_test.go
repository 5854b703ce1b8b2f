package display

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/capture"
	"depthview/internal/colormap"
)

type failingSink struct {
	*Discard
	err error
}

func (f *failingSink) Show(string, image.Image) error { return f.err }

func uniform(t *testing.T, v uint16) *capture.Store {
	t.Helper()
	s := capture.NewStore(4, 3)
	buf := make([]uint16, 12)
	for i := range buf {
		buf[i] = v
	}
	require.NoError(t, s.Publish(buf, 5))
	return s
}

func TestActionNoFrame(t *testing.T) {
	t.Parallel()
	sink := NewDiscard()
	a := &Action{Source: capture.NewStore(4, 3), Sink: sink}

	err := a.Run(context.Background())
	assert.ErrorIs(t, err, capture.ErrNoFrame)
	shows, pumps := sink.Counts()
	assert.Zero(t, shows)
	assert.Zero(t, pumps)
}

func TestActionShowsResizedJet(t *testing.T) {
	t.Parallel()
	sink := NewDiscard()
	a := &Action{Source: uniform(t, 10), Sink: sink}

	require.NoError(t, a.Run(context.Background()))

	img, ok := sink.Last(DefaultWindow)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 640, 480), img.Bounds())

	want := colormap.JetColor(capture.Quantize(10))
	r, g, b, _ := img.At(320, 240).RGBA()
	assert.Equal(t, want, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})

	shows, pumps := sink.Counts()
	assert.Equal(t, uint64(1), shows)
	assert.Equal(t, uint64(1), pumps)
}

func TestActionCustomWindowAndSize(t *testing.T) {
	t.Parallel()
	sink := NewDiscard()
	a := &Action{Source: uniform(t, 500), Sink: sink, Window: "depth", Width: 4, Height: 3, Colorize: colormap.Gray}

	require.NoError(t, a.Run(context.Background()))
	img, ok := sink.Last("depth")
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	_, ok = sink.Last(DefaultWindow)
	assert.False(t, ok)
}

func TestActionPropagatesSinkError(t *testing.T) {
	t.Parallel()
	boom := errors.New("window gone")
	a := &Action{Source: uniform(t, 10), Sink: &failingSink{Discard: NewDiscard(), err: boom}}
	assert.ErrorIs(t, a.Run(context.Background()), boom)
}

func TestActionHonorsCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &Action{Source: uniform(t, 10), Sink: NewDiscard(), PumpWait: time.Millisecond}
	assert.ErrorIs(t, a.Run(ctx), context.Canceled)
}
