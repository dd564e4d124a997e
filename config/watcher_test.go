package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(mod.String()), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestNewFileWatcher_Defaults(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	touch(t, f, time.Now())

	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)

	assert.Equal(t, []string{f}, w.Paths())
	assert.False(t, w.IsRunning())
	assert.Equal(t, time.Second, w.interval)
}

func TestNewFileWatcher_NonExistentPath(t *testing.T) {
	w, err := NewFileWatcher([]string{"/nonexistent/path/config.yaml"}, WithPollInterval(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, w.interval)
}

func TestFileWatcher_Check(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "config.yaml")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	touch(t, f, base)

	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)

	// 第一次检查登记已存在的文件
	events := w.Check()
	require.Len(t, events, 1)
	assert.Equal(t, FileOpCreate, events[0].Op)
	assert.Empty(t, w.Check())

	touch(t, f, base.Add(time.Minute))
	events = w.Check()
	require.Len(t, events, 1)
	assert.Equal(t, FileOpWrite, events[0].Op)
	assert.Equal(t, f, events[0].Path)

	require.NoError(t, os.Remove(f))
	events = w.Check()
	require.Len(t, events, 1)
	assert.Equal(t, FileOpRemove, events[0].Op)
	assert.Empty(t, w.Check())
}

func TestFileWatcher_AddRemovePath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	touch(t, a, time.Now())
	touch(t, b, time.Now())

	w, err := NewFileWatcher([]string{a})
	require.NoError(t, err)

	require.NoError(t, w.AddPath(b))
	require.NoError(t, w.AddPath(b))
	assert.Equal(t, []string{a, b}, w.Paths())

	require.NoError(t, w.RemovePath(a))
	assert.Equal(t, []string{b}, w.Paths())

	err = w.RemovePath(a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path not found")
}

func TestFileWatcher_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := filepath.Join(t.TempDir(), "config.yaml")
	touch(t, f, time.Now())

	w, err := NewFileWatcher([]string{f}, WithWatcherClock(clock.NewMock()))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	err = w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
}

func TestFileWatcher_OnChangeFiresOnTick(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	touch(t, f, base)

	mock := clock.NewMock()
	w, err := NewFileWatcher([]string{f}, WithWatcherClock(mock), WithPollInterval(time.Second))
	require.NoError(t, err)

	var mu sync.Mutex
	var events []FileEvent
	w.OnChange(func(evt FileEvent) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	touch(t, f, base.Add(time.Hour))
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, FileOpWrite, events[0].Op)
	assert.Equal(t, f, events[0].Path)
}

func TestFileWatcher_ContextCancelStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := filepath.Join(t.TempDir(), "config.yaml")
	touch(t, f, time.Now())

	w, err := NewFileWatcher([]string{f}, WithWatcherClock(clock.NewMock()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !w.IsRunning() }, time.Second, 5*time.Millisecond)
	// 取消后可以重新启动
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}
