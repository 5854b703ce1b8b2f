package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/capture"
	"depthview/internal/driver"
	"depthview/pkg/systemd"
)

func TestWatchdogWithholdsPingWhenDriverStalls(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	loop, err := driver.New(capture.NewStore(4, 4), driver.WithClock(mock), driver.WithWriter(io.Discard), driver.WithTick(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		mock.Add(10 * time.Millisecond)
		return loop.Ticks() > 0
	}, 2*time.Second, time.Millisecond)

	wd := &watchdog{notify: systemd.New(false), loop: loop}
	assert.NoError(t, wd.ping(ctx))
	if loop.Ticks() == wd.lastTicks.Load() {
		assert.ErrorIs(t, wd.ping(ctx), errDriverStalled)
	}

	require.Eventually(t, func() bool {
		mock.Add(10 * time.Millisecond)
		return loop.Ticks() > wd.lastTicks.Load()
	}, 2*time.Second, time.Millisecond)
	assert.NoError(t, wd.ping(ctx))

	cancel()
	assert.ErrorIs(t, wd.ping(ctx), context.Canceled)
}

func TestWatchdogReportsDriverThatNeverStarted(t *testing.T) {
	t.Parallel()
	loop, err := driver.New(capture.NewStore(4, 4), driver.WithWriter(io.Discard))
	require.NoError(t, err)

	wd := &watchdog{notify: systemd.New(false), loop: loop}
	assert.NoError(t, wd.ping(context.Background()))
	assert.ErrorIs(t, wd.ping(context.Background()), errDriverStalled)
}
