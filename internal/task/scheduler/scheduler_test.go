package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/runtime/supervisor"
	"depthview/internal/task/repeat"
	logx "depthview/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		kind   SpecKind
		every  time.Duration
		cron   string
		source string
	}{
		{in: "100ms", kind: SpecInterval, every: 100 * time.Millisecond, source: "duration"},
		{in: "2h30m", kind: SpecInterval, every: 150 * time.Minute, source: "duration"},
		{in: "00:50", kind: SpecInterval, every: 50 * time.Minute, source: "hhmm"},
		{in: "every: 02:30", kind: SpecInterval, every: 150 * time.Minute, source: "hhmm"},
		{in: "INTERVAL:5s", kind: SpecInterval, every: 5 * time.Second, source: "duration"},
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *", source: "cron"},
		{in: "*/10 * * * * *", kind: SpecCron, cron: "*/10 * * * * *", source: "cron"},
		{in: "@hourly", kind: SpecCron, cron: "@hourly", source: "cron"},
		{in: "cron: @every 1m", kind: SpecCron, cron: "@every 1m", source: "cron"},
	}
	for _, tc := range tests {
		got, err := ParseSchedule(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.kind, got.Kind, tc.in)
		assert.Equal(t, tc.every, got.Every, tc.in)
		assert.Equal(t, tc.cron, got.Cron, tc.in)
		assert.Equal(t, tc.source, got.Source, tc.in)
	}
}

func TestParseScheduleErrors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", "0s", "-1m", "00:00", "01:75", "soon", "cron:", "every:", "* * *", "cron: 99 * * * *"} {
		_, err := ParseSchedule(in)
		assert.Error(t, err, "%q", in)
	}
}

func TestCronScheduleUsesLocation(t *testing.T) {
	t.Parallel()
	spec, err := ParseSchedule("0 0 9 * * *")
	require.NoError(t, err)
	loc := time.FixedZone("UTC+7", 7*3600)
	sched, err := spec.Schedule(loc)
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // 07:00 in loc
	next := sched.Next(from)
	assert.Equal(t, time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), next.UTC())
}

func newService(t *testing.T) (*Service, *supervisor.Supervisor) {
	t.Helper()
	sup := supervisor.New(context.Background())
	s := New(Config{}, sup, logx.Nop(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
		_ = sup.Stop(ctx)
	})
	return s, sup
}

func TestAddBeforeStartWaitsForStart(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	var calls atomic.Int64
	id, err := s.AddInterval("tick", 2*time.Millisecond, repeat.Func(func() { calls.Add(1) }))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())

	s.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestUpsertReplacesByName(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	s.Start(context.Background())

	var first, second atomic.Int64
	_, err := s.AddInterval("job", 2*time.Millisecond, repeat.Func(func() { first.Add(1) }))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.Load() >= 2 }, 2*time.Second, time.Millisecond)

	_, err = s.AddSchedule("job", "2ms", repeat.Func(func() { second.Add(1) }))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return second.Load() >= 2 }, 2*time.Second, time.Millisecond)

	n := first.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, first.Load())
	assert.Len(t, s.Snapshot().Schedules, 1)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	s.Start(context.Background())

	var calls atomic.Int64
	_, err := s.AddInterval("job", 2*time.Millisecond, repeat.Func(func() { calls.Add(1) }))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, s.Remove("job"))
	assert.ErrorIs(t, s.Remove("job"), ErrNotFound)
	assert.False(t, s.Has("job"))

	time.Sleep(10 * time.Millisecond)
	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
}

func TestRescheduleKeepsActionAndNeverOverlaps(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	s.Start(context.Background())

	var inFlight, maxInFlight, calls atomic.Int64
	action := repeat.Func(func() {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	})
	_, err := s.AddInterval("display", time.Hour, action)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Reschedule("missing", "1s"), ErrNotFound)

	require.NoError(t, s.Reschedule("display", "1ms"))
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, s.RescheduleInterval("display", 2*time.Millisecond))
	require.NoError(t, s.Reschedule("display", "every:1ms"))
	n := calls.Load()
	require.Eventually(t, func() bool { return calls.Load() >= n+3 }, 2*time.Second, time.Millisecond)

	assert.Equal(t, int64(1), maxInFlight.Load())
	info, ok := s.Stats("display")
	require.True(t, ok)
	assert.Equal(t, "every:1ms", info.Spec)
	assert.Equal(t, "interval", info.Kind)
}

func TestStopHaltsAllAndKeepsRegistrations(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	s.Start(context.Background())
	var a, b atomic.Int64
	_, err := s.AddInterval("a", time.Millisecond, repeat.Func(func() { a.Add(1) }))
	require.NoError(t, err)
	_, err = s.AddInterval("b", time.Millisecond, repeat.Func(func() { b.Add(1) }))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.Load() > 0 && b.Load() > 0 }, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	snap := s.Snapshot()
	assert.False(t, snap.Started)
	require.Len(t, snap.Schedules, 2)
	for _, it := range snap.Schedules {
		assert.Equal(t, repeat.StateStopped, it.Stats.State, it.Name)
		assert.False(t, it.Next.IsZero())
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	_, err := s.AddSchedule("x", "nonsense", repeat.Func(func() {}))
	assert.Error(t, err)
	_, err = s.AddInterval("x", 0, repeat.Func(func() {}))
	assert.ErrorIs(t, err, repeat.ErrInvalidInterval)
	_, err = s.AddInterval(" ", time.Second, repeat.Func(func() {}))
	assert.Error(t, err)
	_, err = s.AddInterval("x", time.Second, nil)
	assert.ErrorIs(t, err, repeat.ErrNilAction)
}

func TestApplyTimezone(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	s.Apply(Config{Timezone: "UTC"})
	assert.Equal(t, "UTC", s.Snapshot().Timezone)
	s.Apply(Config{Timezone: "Not/AZone"})
	assert.Equal(t, time.Local.String(), s.Snapshot().Timezone)
}

// blockingAction blocks its first invocation until release is closed and
// tracks how many invocations are in flight.
type blockingAction struct {
	entered  chan struct{}
	release  chan struct{}
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func newBlockingAction() *blockingAction {
	return &blockingAction{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingAction) run(context.Context) error {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if b.calls.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return nil
}

func TestRepeatedRescheduleWaitsForRunningInvocation(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	s.Start(context.Background())

	act := newBlockingAction()
	_, err := s.AddInterval("display", time.Millisecond, act.run)
	require.NoError(t, err)
	<-act.entered

	require.NoError(t, s.RescheduleInterval("display", 2*time.Millisecond))
	require.NoError(t, s.RescheduleInterval("display", 3*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(1), act.calls.Load())

	close(act.release)
	require.Eventually(t, func() bool { return act.calls.Load() >= 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(1), act.maxSeen.Load())
}

func TestReAddAfterRemoveWaitsForRunningInvocation(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	s.Start(context.Background())

	act := newBlockingAction()
	_, err := s.AddInterval("display", time.Millisecond, act.run)
	require.NoError(t, err)
	<-act.entered

	require.NoError(t, s.Remove("display"))
	_, err = s.AddInterval("display", time.Millisecond, act.run)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(1), act.calls.Load())

	close(act.release)
	require.Eventually(t, func() bool { return act.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(1), act.maxSeen.Load())
}
