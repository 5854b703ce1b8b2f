package cvwindow

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGUIThreadSerializesCalls(t *testing.T) {
	t.Parallel()
	th := newGUIThread()
	defer th.stop()

	var inFlight, maxSeen, calls atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = th.do(func() error {
				n := inFlight.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				calls.Add(1)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(16), calls.Load())
	assert.Equal(t, int64(1), maxSeen.Load())
}

func TestGUIThreadReturnsErrorsAndStops(t *testing.T) {
	t.Parallel()
	th := newGUIThread()
	boom := errors.New("boom")
	require.ErrorIs(t, th.do(func() error { return boom }), boom)

	th.stop()
	th.stop()
	assert.ErrorIs(t, th.do(func() error { return nil }), errThreadStopped)
}
