package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed            = errors.New("storage: closed")
	ErrSQLiteUnavailable = errors.New("storage: sqlite not built: build with -tags sqlite")
)

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Sample is one driver tick.
type Sample struct {
	Session        string    `json:"session"`
	Seq            uint64    `json:"seq"`
	At             time.Time `json:"at"`
	FramesReceived uint64    `json:"frames_received"`
	LastTimestamp  uint32    `json:"last_timestamp"`
	Available      bool      `json:"available"`
}

// CycleRecord is one invocation of a scheduled action.
type CycleRecord struct {
	Session string    `json:"session"`
	Name    string    `json:"name"`
	Seq     uint64    `json:"seq"`
	Started time.Time `json:"started"`
	TookMS  float64   `json:"took_ms"`
	Error   string    `json:"error,omitempty"`
}

// Store is the persistence API used by the recorder.
type Store interface {
	AppendSample(ctx context.Context, s Sample) error
	AppendCycle(ctx context.Context, c CycleRecord) error
	Close() error
}
