// 配置文件变更监听器实现。
//
// 基于轮询的修改时间比较触发重载回调。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// FileEvent 表示一次文件变更
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp 文件操作类型
type FileOp int

const (
	// FileOpCreate 文件出现
	FileOpCreate FileOp = iota
	// FileOpWrite 修改时间前进
	FileOpWrite
	// FileOpRemove 文件消失
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatcherClock 替换时钟，测试使用 clock.NewMock
func WithWatcherClock(c clock.Clock) WatcherOption {
	return func(w *FileWatcher) {
		w.clock = c
	}
}

// FileWatcher 轮询一组配置文件，修改时间变化时回调
type FileWatcher struct {
	mu sync.RWMutex

	paths    []string
	modTimes map[string]time.Time
	interval time.Duration

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	callbacks []func(FileEvent)

	clock  clock.Clock
	logger *zap.Logger
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		modTimes: make(map[string]time.Time),
		interval: time.Second,
		clock:    clock.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
		} else if err != nil {
			w.logger.Warn("config file does not exist, will watch for creation", zap.String("path", abs))
		}
		w.paths = append(w.paths, abs)
	}
	return w, nil
}

// OnChange registers a callback for file change events
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 开始轮询，ctx 取消或 Stop 时退出
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	for _, p := range w.paths {
		if info, err := os.Stat(p); err == nil {
			w.modTimes[p] = info.ModTime()
		}
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	go w.pollLoop(ctx)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.Paths()),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop 停止轮询并等待轮询协程退出
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("file watcher stopped")
}

func (w *FileWatcher) pollLoop(ctx context.Context) {
	defer close(w.done)
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.dispatch(w.Check())
		}
	}
}

// Check 比较一次修改时间并返回变更，不触发回调
func (w *FileWatcher) Check() []FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	var events []FileEvent
	for _, p := range w.paths {
		info, err := os.Stat(p)
		last, tracked := w.modTimes[p]
		switch {
		case err != nil:
			if tracked {
				delete(w.modTimes, p)
				events = append(events, FileEvent{Path: p, Op: FileOpRemove, Timestamp: now})
			}
		case !tracked:
			w.modTimes[p] = info.ModTime()
			events = append(events, FileEvent{Path: p, Op: FileOpCreate, Timestamp: now})
		case !info.ModTime().Equal(last):
			w.modTimes[p] = info.ModTime()
			events = append(events, FileEvent{Path: p, Op: FileOpWrite, Timestamp: now})
		}
	}
	return events
}

func (w *FileWatcher) dispatch(events []FileEvent) {
	if len(events) == 0 {
		return
	}
	w.mu.RLock()
	callbacks := make([]func(FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, evt := range events {
		w.logger.Debug("dispatching file event",
			zap.String("path", evt.Path),
			zap.String("op", evt.Op.String()))
		for _, cb := range callbacks {
			cb(evt)
		}
	}
}

// AddPath adds a new path to watch
func (w *FileWatcher) AddPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.paths {
		if p == abs {
			return nil
		}
	}
	w.paths = append(w.paths, abs)
	if info, err := os.Stat(abs); err == nil {
		w.modTimes[abs] = info.ModTime()
	}
	return nil
}

// RemovePath removes a path from watching
func (w *FileWatcher) RemovePath(path string) error {
	abs, _ := filepath.Abs(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, p := range w.paths {
		if p == abs {
			w.paths = append(w.paths[:i], w.paths[i+1:]...)
			delete(w.modTimes, abs)
			return nil
		}
	}
	return fmt.Errorf("path not found: %s", path)
}

// Paths returns the list of watched paths
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	paths := make([]string, len(w.paths))
	copy(paths, w.paths)
	return paths
}

// IsRunning returns whether the watcher is running
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
