package repeat

import (
	"time"

	"github.com/benbjohnson/clock"

	"depthview/internal/eventbus"
	logx "depthview/pkg/logx"
)

// FailurePolicy decides what a failed cycle does to the schedule.
type FailurePolicy int

const (
	// ContinueOnFailure reports the failure and keeps the schedule running.
	ContinueOnFailure FailurePolicy = iota
	// StopOnFailure halts the schedule after the first failed cycle.
	StopOnFailure
)

func (p FailurePolicy) String() string {
	if p == StopOnFailure {
		return "stop"
	}
	return "continue"
}

// Failure describes one failed cycle.
type Failure struct {
	Name        string
	Seq         uint64
	Started     time.Time
	Duration    time.Duration
	Consecutive int
	Err         error
}

// ErrorHandler receives every failed cycle, on the repeater's goroutine.
type ErrorHandler func(Failure)

type Option func(*Repeater)

func WithName(name string) Option { return func(r *Repeater) { r.name = name } }

// WithSchedule replaces the fixed interval with an arbitrary schedule
// (a robfig/cron schedule satisfies Schedule).
func WithSchedule(s Schedule) Option { return func(r *Repeater) { r.schedule = s } }

func WithClock(c clock.Clock) Option { return func(r *Repeater) { r.clock = c } }

func WithLogger(log logx.Logger) Option { return func(r *Repeater) { r.log = log } }

// WithBus publishes an EventCycle event after every invocation.
func WithBus(bus eventbus.Bus) Option { return func(r *Repeater) { r.bus = bus } }

func WithFailurePolicy(p FailurePolicy) Option { return func(r *Repeater) { r.policy = p } }

// WithErrorHandler replaces the default throttled log report.
func WithErrorHandler(h ErrorHandler) Option { return func(r *Repeater) { r.onError = h } }

// WithTimeout bounds each invocation's context. The action must honor ctx;
// nothing preempts a hung action.
func WithTimeout(d time.Duration) Option { return func(r *Repeater) { r.timeout = d } }

// WithHistory sets how many recent cycles Stats keeps (default 32).
func WithHistory(n int) Option { return func(r *Repeater) { r.historySize = n } }
