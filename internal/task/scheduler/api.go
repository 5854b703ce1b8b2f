package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"depthview/internal/task/repeat"
	logx "depthview/pkg/logx"
)

// AddSchedule parses schedule and registers action under name, replacing any
// schedule of the same name. opts are passed to the repeater after the
// registry's own (name, schedule, logger, bus), so they may override them.
func (s *Service) AddSchedule(name, schedule string, action repeat.Action, opts ...repeat.Option) (string, error) {
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	return s.add(name, spec, action, opts)
}

// AddInterval registers a fixed-interval schedule without going through the
// string parser, so sub-second intervals keep full precision.
func (s *Service) AddInterval(name string, every time.Duration, action repeat.Action, opts ...repeat.Option) (string, error) {
	if every <= 0 {
		return "", repeat.ErrInvalidInterval
	}
	spec := Spec{Raw: every.String(), Kind: SpecInterval, Every: every, Source: "duration"}
	return s.add(name, spec, action, opts)
}

func (s *Service) add(name string, spec Spec, action repeat.Action, opts []repeat.Option) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if action == nil {
		return "", repeat.ErrNilAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e := &entry{
		id:     fmt.Sprintf("%s:%d", spec.Kind, s.seq),
		name:   name,
		spec:   spec,
		action: action,
		opts:   opts,
	}
	if old := s.entries[name]; old != nil {
		e.rep = old.rep
	}
	s.entries[name] = e
	if s.started {
		if err := s.launchLocked(e); err != nil {
			delete(s.entries, name)
			return "", err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("id", e.id), logx.String("spec", spec.Raw), logx.String("kind", spec.Kind.String()))
	return e.id, nil
}

// Remove stops and unregisters a schedule. It does not wait for a running
// invocation to return, but a schedule added again under the same name
// starts only after that invocation has returned.
func (s *Service) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[name]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if e.rep != nil {
		e.rep.Stop()
	}
	delete(s.entries, name)
	s.log.Debug("schedule removed", logx.String("name", name))
	return nil
}

// Reschedule keeps the action and options of name and swaps its schedule.
func (s *Service) Reschedule(name, schedule string) error {
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	return s.reschedule(name, spec)
}

// RescheduleInterval is Reschedule for a fixed interval.
func (s *Service) RescheduleInterval(name string, every time.Duration) error {
	if every <= 0 {
		return repeat.ErrInvalidInterval
	}
	return s.reschedule(name, Spec{Raw: every.String(), Kind: SpecInterval, Every: every, Source: "duration"})
}

func (s *Service) reschedule(name string, spec Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[name]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if e.spec.Kind == spec.Kind && e.spec.Cron == spec.Cron && e.spec.Every == spec.Every {
		return nil
	}
	e.spec = spec
	if s.started {
		if err := s.launchLocked(e); err != nil {
			return err
		}
	}
	s.log.Info("schedule changed", logx.String("name", name), logx.String("spec", spec.Raw))
	return nil
}

// Has reports whether name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// launchLocked replaces e's repeater with a fresh one. Launches of one name
// form a chain: each goroutine starts its repeater only after the previous
// goroutine for that name has exited, however many launches happened in
// between.
func (s *Service) launchLocked(e *entry) error {
	sched, err := e.spec.Schedule(s.loc)
	if err != nil {
		return err
	}
	base := []repeat.Option{
		repeat.WithName(e.name),
		repeat.WithSchedule(sched),
		repeat.WithLogger(s.log.With(logx.String("schedule", e.name))),
		repeat.WithBus(s.bus),
	}
	r, err := repeat.New(0, e.action, append(base, e.opts...)...)
	if err != nil {
		return err
	}

	if prev := e.rep; prev != nil {
		prev.Stop()
	}
	e.rep = r
	name := e.name
	wait := s.tails[name]
	exit := make(chan struct{})
	s.tails[name] = exit

	s.sup.Go("schedule."+name, func(ctx context.Context) error {
		defer s.releaseTail(name, exit)
		if wait != nil {
			select {
			case <-wait:
			case <-ctx.Done():
				r.Stop()
				<-wait
				return nil
			}
		}
		if err := r.Run(ctx); !errors.Is(err, repeat.ErrStopped) {
			return err
		}
		return nil
	})
	return nil
}

func (s *Service) releaseTail(name string, exit chan struct{}) {
	close(exit)
	s.mu.Lock()
	if s.tails[name] == exit {
		delete(s.tails, name)
	}
	s.mu.Unlock()
}
