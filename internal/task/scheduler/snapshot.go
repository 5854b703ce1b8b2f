package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Timezone: s.loc.String(), Started: s.started}
	loc := s.loc
	entries := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		it := Info{ID: e.id, Name: e.name, Spec: e.spec.Raw, Kind: e.spec.Kind.String()}
		if e.rep != nil {
			it.Stats = e.rep.Stats()
		}
		if sched, err := e.spec.Schedule(loc); err == nil {
			it.Next = sched.Next(now)
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	return snap
}

// Stats returns the live stats of one schedule.
func (s *Service) Stats(name string) (Info, bool) {
	for _, it := range s.Snapshot().Schedules {
		if it.Name == name {
			return it, true
		}
	}
	return Info{}, false
}
