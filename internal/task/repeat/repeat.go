package repeat

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"depthview/internal/eventbus"
	logx "depthview/pkg/logx"
)

// EventCycle is published on the bus after every invocation; Data is a Cycle.
const EventCycle = "repeat.cycle"

const defaultHistory = 32

// Action is the unit of work invoked once per cycle.
type Action func(ctx context.Context) error

// Func adapts a plain func() into an Action. Panics still count as failures.
func Func(fn func()) Action {
	if fn == nil {
		return nil
	}
	return func(context.Context) error {
		fn()
		return nil
	}
}

type State int32

const (
	StatePending State = iota
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Cycle records one invocation.
type Cycle struct {
	Name     string        `json:"name"`
	Seq      uint64        `json:"seq"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Stats is a point-in-time view of a Repeater.
type Stats struct {
	Name                string        `json:"name"`
	Schedule            string        `json:"schedule"`
	State               State         `json:"state"`
	Invocations         uint64        `json:"invocations"`
	Successes           uint64        `json:"successes"`
	Failures            uint64        `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastStart           time.Time     `json:"last_start"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	History             []Cycle       `json:"history,omitempty"`
}

// Repeater invokes an action repeatedly until stopped.
type Repeater struct {
	name        string
	schedule    Schedule
	action      Action
	clock       clock.Clock
	log         logx.Logger
	bus         eventbus.Bus
	policy      FailurePolicy
	onError     ErrorHandler
	timeout     time.Duration
	historySize int

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}
	doneOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	err     error
	stats   Stats
	history []Cycle
}

// New validates and builds a pending Repeater. interval may be zero only when
// WithSchedule supplies the timing.
func New(interval time.Duration, action Action, opts ...Option) (*Repeater, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	r := &Repeater{
		name:        "repeat",
		action:      action,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		historySize: defaultHistory,
	}
	for _, o := range opts {
		o(r)
	}
	if r.schedule == nil {
		if interval <= 0 {
			return nil, ErrInvalidInterval
		}
		r.schedule = Every(interval)
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.onError == nil {
		r.onError = newThrottledReport(r.log).report
	}
	if r.historySize < 0 {
		r.historySize = 0
	}
	r.stats.Name = r.name
	r.stats.Schedule = describe(r.schedule)
	return r, nil
}

// Start is New followed by (*Repeater).Start.
func Start(interval time.Duration, action Action, opts ...Option) (*Repeater, error) {
	r, err := New(interval, action, opts...)
	if err != nil {
		return nil, err
	}
	r.Start()
	return r, nil
}

// Start runs the loop on a detached goroutine and returns immediately.
// The goroutine never holds up process exit.
func (r *Repeater) Start() {
	go func() { _ = r.Run(context.Background()) }()
}

// Run is the blocking loop. It returns nil when stopped (Stop or ctx),
// the failing cycle's error under StopOnFailure, and ErrAlreadyStarted or
// ErrStopped when the repeater is no longer pending.
func (r *Repeater) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		if r.State() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.log.Debug("repeat started", logx.String("name", r.name), logx.String("schedule", r.stats.Schedule), logx.String("on_failure", r.policy.String()))

	for {
		if r.stopping(ctx) {
			return r.finish(StateStopped, nil)
		}

		now := r.clock.Now()
		delay := r.schedule.Next(now).Sub(now)
		if delay < 0 {
			delay = 0
		}
		t := r.clock.Timer(delay)
		select {
		case <-r.stopCh:
			t.Stop()
			return r.finish(StateStopped, nil)
		case <-ctx.Done():
			t.Stop()
			return r.finish(StateStopped, nil)
		case <-t.C:
		}
		// Both may be ready at once; a stop always wins over the next invocation.
		if r.stopping(ctx) {
			return r.finish(StateStopped, nil)
		}

		if err := r.invoke(ctx); err != nil && r.policy == StopOnFailure {
			r.log.Error("repeat halted", logx.String("name", r.name), logx.Err(err))
			return r.finish(StateFailed, fmt.Errorf("%s: %w", r.name, err))
		}
	}
}

func (r *Repeater) stopping(ctx context.Context) bool {
	select {
	case <-r.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Stop ends the schedule. It is idempotent and does not wait; use Done.
// A running action sees its context cancelled but is not preempted.
func (r *Repeater) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.state.CompareAndSwap(int32(StatePending), int32(StateStopped)) {
		r.closeDone()
		return
	}
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the loop has exited.
func (r *Repeater) Done() <-chan struct{} { return r.done }

// Err returns the error that halted the schedule (StopOnFailure), if any.
func (r *Repeater) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Repeater) Name() string { return r.name }

func (r *Repeater) State() State { return State(r.state.Load()) }

func (r *Repeater) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats
	st.State = r.State()
	st.History = append([]Cycle(nil), r.history...)
	return st
}

func (r *Repeater) finish(state State, err error) error {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.state.Store(int32(state))
	r.closeDone()
	r.log.Debug("repeat finished", logx.String("name", r.name), logx.String("state", state.String()))
	return err
}

func (r *Repeater) closeDone() { r.doneOnce.Do(func() { close(r.done) }) }

func (r *Repeater) invoke(ctx context.Context) (err error) {
	start := r.clock.Now()
	r.mu.Lock()
	r.stats.Invocations++
	seq := r.stats.Invocations
	r.stats.LastStart = start
	r.mu.Unlock()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = r.clock.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	func() {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p, Stack: debug.Stack()}
			}
		}()
		err = r.action(runCtx)
	}()

	dur := r.clock.Since(start)
	c := Cycle{Name: r.name, Seq: seq, Started: start, Duration: dur}
	if err != nil {
		c.Error = err.Error()
	}

	r.mu.Lock()
	r.stats.LastDuration = dur
	r.stats.LastError = c.Error
	if err != nil {
		r.stats.Failures++
		r.stats.ConsecutiveFailures++
	} else {
		r.stats.Successes++
		r.stats.ConsecutiveFailures = 0
	}
	consecutive := r.stats.ConsecutiveFailures
	if r.historySize > 0 {
		r.history = append(r.history, c)
		if len(r.history) > r.historySize {
			r.history = r.history[len(r.history)-r.historySize:]
		}
	}
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: EventCycle, Time: start, Data: c})
	}
	if err != nil {
		r.onError(Failure{Name: r.name, Seq: seq, Started: start, Duration: dur, Consecutive: consecutive, Err: err})
	}
	return err
}

func describe(s Schedule) string {
	if st, ok := s.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%T", s)
}

// throttledReport logs failures, at most a few per window; the rest are
// counted and attached to the next line that gets through.
type throttledReport struct {
	log        logx.Logger
	lim        *rate.Limiter
	suppressed atomic.Uint64
}

const (
	reportEvery = 5 * time.Second
	reportBurst = 3
)

func newThrottledReport(log logx.Logger) *throttledReport {
	return &throttledReport{log: log, lim: rate.NewLimiter(rate.Every(reportEvery), reportBurst)}
}

func (t *throttledReport) report(f Failure) {
	if !t.lim.Allow() {
		t.suppressed.Add(1)
		return
	}
	fields := []logx.Field{
		logx.String("name", f.Name),
		logx.Uint64("seq", f.Seq),
		logx.Int("consecutive", f.Consecutive),
		logx.Duration("took", f.Duration),
		logx.Err(f.Err),
	}
	if n := t.suppressed.Swap(0); n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
	}
	var pe *PanicError
	if errors.As(f.Err, &pe) {
		fields = append(fields, logx.Stack(string(pe.Stack)))
	}
	t.log.Warn("cycle failed", fields...)
}
