package repeat

import "time"

// Schedule computes the next fire time after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// Every returns a fixed-delay schedule.
func Every(d time.Duration) Schedule { return every{d: d} }

type every struct{ d time.Duration }

func (e every) Next(t time.Time) time.Time { return t.Add(e.d) }
func (e every) String() string             { return "@every " + e.d.String() }
