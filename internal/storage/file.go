package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "depthview/pkg/logx"
)

// fileStore appends JSON Lines to two files:
//   - <prefix>.samples.jsonl
//   - <prefix>.cycles.jsonl
//
// The prefix is the configured path without its extension.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	samples *os.File
	cycles  *os.File
	sEnc    *json.Encoder
	cEnc    *json.Encoder
}

// FilePaths returns the files the file driver writes for path.
func FilePaths(path string) (samples, cycles string) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)
	return prefix + ".samples.jsonl", prefix + ".cycles.jsonl"
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage: path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	sp, cp := FilePaths(path)

	sf, err := os.OpenFile(sp, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	cf, err := os.OpenFile(cp, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = sf.Close()
		return nil, err
	}
	log.Debug("file store opened", logx.String("samples", sp), logx.String("cycles", cp))
	return &fileStore{
		log:     log,
		samples: sf,
		cycles:  cf,
		sEnc:    json.NewEncoder(sf),
		cEnc:    json.NewEncoder(cf),
	}, nil
}

func (s *fileStore) AppendSample(ctx context.Context, v Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == nil {
		return ErrClosed
	}
	return s.sEnc.Encode(v)
}

func (s *fileStore) AppendCycle(ctx context.Context, v CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycles == nil {
		return ErrClosed
	}
	return s.cEnc.Encode(v)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.samples != nil {
		errs = append(errs, s.samples.Close())
		s.samples = nil
	}
	if s.cycles != nil {
		errs = append(errs, s.cycles.Close())
		s.cycles = nil
	}
	return errors.Join(errs...)
}
