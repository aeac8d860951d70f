package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingRebuilder struct {
	calls atomic.Int32
	err   error
}

func (c *countingRebuilder) Rebuild(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_RebuildsOnceForBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeFile(t, path, "year,value\n2023,1\n")

	rb := &countingRebuilder{}
	w := NewWatcher(path, rb, 100*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeFile(t, path, "year,value\n2023,1\n2024,2\n")
	}

	require.Eventually(t, func() bool { return rb.calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), rb.calls.Load())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeFile(t, path, "year,value\n")

	rb := &countingRebuilder{}
	w := NewWatcher(path, rb, 50*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "notes.txt"), "unrelated")

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), rb.calls.Load())
}

func TestWatcher_RenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeFile(t, path, "year,value\n")

	rb := &countingRebuilder{}
	w := NewWatcher(path, rb, 50*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	tmp := filepath.Join(dir, "data.csv.tmp")
	writeFile(t, tmp, "year,value\n2024,2\n")
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return rb.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_FailedRebuildKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeFile(t, path, "year,value\n")

	rb := &countingRebuilder{err: errors.New("embedding backend down")}
	w := NewWatcher(path, rb, 50*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, path, "year,value\n2023,1\n")
	require.Eventually(t, func() bool { return rb.calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)

	writeFile(t, path, "year,value\n2023,2\n")
	require.Eventually(t, func() bool { return rb.calls.Load() == 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	w := NewWatcher(path, &countingRebuilder{}, 0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultDebounce, w.debounce)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher("/nonexistent/dir/data.csv", &countingRebuilder{}, 0, zaptest.NewLogger(t))
	assert.Error(t, w.Start(context.Background()))
}
