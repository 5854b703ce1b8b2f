package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "depthview/pkg/logx"
)

func readLines[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []T
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var v T
		require.NoError(t, json.Unmarshal(sc.Bytes(), &v))
		out = append(out, v)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestFileStoreAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "run.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendSample(ctx, Sample{Session: "s1", Seq: 1, At: at, FramesReceived: 3, LastTimestamp: 99, Available: true}))
	require.NoError(t, st.AppendSample(ctx, Sample{Session: "s1", Seq: 2, At: at.Add(50 * time.Millisecond)}))
	require.NoError(t, st.AppendCycle(ctx, CycleRecord{Session: "s1", Name: "display", Seq: 1, Started: at, TookMS: 1.5, Error: "no frame"}))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	assert.ErrorIs(t, st.AppendSample(ctx, Sample{}), ErrClosed)

	sp, cp := FilePaths(path)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "run.samples.jsonl"), sp)

	samples := readLines[Sample](t, sp)
	require.Len(t, samples, 2)
	assert.Equal(t, uint32(99), samples[0].LastTimestamp)
	assert.True(t, samples[0].At.Equal(at))

	cycles := readLines[CycleRecord](t, cp)
	require.Len(t, cycles, 1)
	assert.Equal(t, "no frame", cycles[0].Error)
}

func TestFileStoreReopenAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run")
	for i := 0; i < 2; i++ {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		require.NoError(t, err)
		require.NoError(t, st.AppendSample(context.Background(), Sample{Seq: uint64(i + 1)}))
		require.NoError(t, st.Close())
	}
	sp, _ := FilePaths(path)
	assert.Len(t, readLines[Sample](t, sp), 2)
}

func TestFileStoreHonorsContext(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, st.AppendCycle(ctx, CycleRecord{}), context.Canceled)
}
