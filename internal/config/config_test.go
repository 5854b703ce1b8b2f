package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeYAMLOverlaysDefaults(t *testing.T) {
	t.Parallel()
	src := `
logging:
  level: debug
display:
  sink: web
  interval: 250ms
  web:
    addr: ":9000"
storage:
  driver: file
  path: ./data/run
`
	cfg, err := Decode("depthview.yaml", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console, "unset keys keep their defaults")
	assert.Equal(t, 30, cfg.Capture.Framerate)

	rt, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "web", rt.DisplaySink)
	assert.Equal(t, 250*time.Millisecond, rt.DisplayInterval)
	assert.Equal(t, DefaultTick, rt.DriverTick)
	assert.Equal(t, DefaultPumpWait, rt.PumpWait)
	assert.Equal(t, ":9000", rt.WebAddr)
	assert.Equal(t, "file", rt.StorageDriver)
	assert.Equal(t, DefaultShutdownTimeout, rt.ShutdownTimeout)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("depthview.json", []byte(`{"driver":{"tick":"20ms"}}`))
	require.NoError(t, err)
	rt, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, rt.DriverTick)
	assert.Equal(t, "none", rt.StorageDriver)

	_, err = Decode("depthview.json", []byte(`{} {}`))
	assert.ErrorContains(t, err, "trailing data")
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"display:\n  fps: 10\n":                  "unknown field",
		"display:\n  interval: soon\n":           "display.interval",
		"display:\n  interval: 0s\n":             "display.interval",
		"display:\n  sink: hologram\n":           "display.sink",
		"driver:\n  tick: -5ms\n":                "driver.tick",
		"storage:\n  driver: file\n":             "storage.path",
		"storage:\n  driver: redis\n  path: x\n": "storage.driver",
		"display:\n  sink: web\n  web:\n    addr: \"\"\n": "display.web.addr",
		"logging: [1, 2\n": "yaml",
	}
	for src, want := range cases {
		_, err := Decode("c.yaml", []byte(src))
		assert.ErrorContains(t, err, want, src)
	}
}

func TestEmptyFileIsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Same(t, cfg, m.Get())
}

func TestLoadSurfacesParseErrors(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nope: 1\n"), 0o644))
	_, err := NewConfigManager(path).Load()
	assert.Error(t, err)
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("x.yaml")
	ch := m.Subscribe(1)
	a, b := Default(), Default()
	b.Driver.Tick = "1s"
	m.publish(&a)
	m.publish(&b)
	got := <-ch
	assert.Equal(t, "1s", got.Driver.Tick)

	m.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestWatchPublishesValidatedChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "depthview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver:\n  tick: 50ms\n"), 0o644))

	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Display.Window == "forbidden" {
			return errors.New("no")
		}
		return nil
	})
	_, err := m.Load()
	require.NoError(t, err)
	updates := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond) // let the watcher attach

	require.NoError(t, os.WriteFile(path, []byte("display:\n  window: forbidden\n"), 0o644))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "view", m.Get().Display.Window)

	require.NoError(t, os.WriteFile(path, []byte("driver:\n  tick: 75ms\n"), 0o644))
	select {
	case cfg := <-updates:
		assert.Equal(t, "75ms", cfg.Driver.Tick)
	case <-time.After(5 * time.Second):
		t.Fatal("no config update")
	}
	assert.Equal(t, "75ms", m.Get().Driver.Tick)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a, b := Default(), Default()
	b.Display.Interval = "200ms"
	b.Storage = &StorageConfig{Driver: "file", Path: "x"}

	changed, fields := SummarizeChange(&a, &b)
	assert.Equal(t, []string{"display", "storage"}, changed)
	assert.Len(t, fields, 2)

	changed, _ = SummarizeChange(&a, &a)
	assert.Empty(t, changed)
}
