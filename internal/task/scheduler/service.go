package scheduler

import (
	"context"
	"strings"
	"time"

	"depthview/internal/eventbus"
	"depthview/internal/runtime/supervisor"
	logx "depthview/pkg/logx"
)

func New(cfg Config, sup *supervisor.Supervisor, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sup == nil {
		sup = supervisor.New(context.Background(), supervisor.WithLogger(log))
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		sup:     sup,
		entries: map[string]*entry{},
		tails:   map[string]chan struct{}{},
	}
	s.loc = s.loadLocation(cfg.Timezone)
	return s
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Apply takes a new config. A timezone change relaunches cron schedules.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if oldTZ == strings.TrimSpace(cfg.Timezone) {
		return
	}
	s.loc = s.loadLocation(cfg.Timezone)
	s.log.Info("timezone changed", logx.String("tz", s.loc.String()))
	if !s.started {
		return
	}
	for _, e := range s.entries {
		if e.spec.Kind == SpecCron {
			if err := s.launchLocked(e); err != nil {
				s.log.Error("schedule relaunch failed", logx.String("name", e.name), logx.Err(err))
			}
		}
	}
}

// Start launches every registered schedule. Schedules added later start
// right away.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, e := range s.entries {
		if err := s.launchLocked(e); err != nil {
			s.log.Error("schedule launch failed", logx.String("name", e.name), logx.Err(err))
		}
	}
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// Stop stops every repeater and waits for their goroutines until ctx
// expires.
// Registrations are kept, so a later Start resumes them.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	s.started = false
	for _, e := range s.entries {
		if e.rep != nil {
			e.rep.Stop()
		}
	}
	waits := make([]<-chan struct{}, 0, len(s.tails))
	for _, exit := range s.tails {
		waits = append(waits, exit)
	}
	s.mu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			s.log.Warn("stop timed out", logx.Duration("took", time.Since(start)))
			return ctx.Err()
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return nil
}
