package scheduler

import (
	"errors"
	"sync"
	"time"

	"depthview/internal/eventbus"
	"depthview/internal/runtime/supervisor"
	"depthview/internal/task/repeat"
	logx "depthview/pkg/logx"
)

var ErrNotFound = errors.New("scheduler: schedule not found")

// Config controls the registry.
type Config struct {
	Timezone string // IANA name, e.g. "Europe/Berlin"; empty means local
}

type entry struct {
	id     string
	name   string
	spec   Spec
	action repeat.Action
	opts   []repeat.Option
	rep    *repeat.Repeater
}

type Service struct {
	mu sync.Mutex

	cfg Config
	loc *time.Location
	log logx.Logger
	bus eventbus.Bus
	sup *supervisor.Supervisor

	started bool
	seq     uint64
	entries map[string]*entry
	// tails holds, per name, the exit channel of the newest launcher
	// goroutine. It outlives Remove so a re-added name still waits for it.
	tails map[string]chan struct{}
}

// Info describes one registered schedule.
type Info struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Spec  string       `json:"spec"`
	Kind  string       `json:"kind"`
	Next  time.Time    `json:"next"`
	Stats repeat.Stats `json:"stats"`
}

type Snapshot struct {
	Timezone  string `json:"timezone"`
	Started   bool   `json:"started"`
	Schedules []Info `json:"schedules"`
}
