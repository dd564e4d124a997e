// 运行时配置重载。
//
// 只有 Log.Level 与 Executor 默认值在运行时生效，其余字段需要重启。
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ReloadCallback 在新配置生效后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// Reloader 持有当前配置，监听配置文件并在变更时重新加载
type Reloader struct {
	path    string
	loader  *Loader
	current atomic.Pointer[Config]
	level   zap.AtomicLevel

	mu        sync.Mutex
	callbacks []ReloadCallback

	watcher *FileWatcher
	logger  *zap.Logger
}

// NewReloader 创建重载器。level 为 zap 的动态级别，重载时同步更新
func NewReloader(path string, initial *Config, level zap.AtomicLevel, logger *zap.Logger, opts ...WatcherOption) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reloader{
		path:   path,
		loader: NewLoader().WithConfigPath(path).WithValidator((*Config).Validate),
		level:  level,
		logger: logger.With(zap.String("component", "config_reloader")),
	}
	r.current.Store(initial)

	w, err := NewFileWatcher([]string{path}, append(opts, WithWatcherLogger(logger))...)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(evt FileEvent) {
		if evt.Op == FileOpRemove {
			r.logger.Warn("config file removed, keeping current config", zap.String("path", evt.Path))
			return
		}
		if err := r.Reload(); err != nil {
			r.logger.Error("config reload failed", zap.Error(err))
		}
	})
	r.watcher = w
	return r, nil
}

// Config 返回当前配置
func (r *Reloader) Config() *Config {
	return r.current.Load()
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start 开始监听配置文件
func (r *Reloader) Start(ctx context.Context) error {
	return r.watcher.Start(ctx)
}

// Stop 停止监听
func (r *Reloader) Stop() {
	r.watcher.Stop()
}

// Watcher 返回底层的文件监听器
func (r *Reloader) Watcher() *FileWatcher {
	return r.watcher
}

// Reload 重新读取配置文件。校验失败时保留旧配置
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		return err
	}

	if next.Log.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(next.Log.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", next.Log.Level, err)
		}
		r.level.SetLevel(lvl)
	}

	r.mu.Lock()
	old := r.current.Swap(next)
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, path := range Diff(old, next) {
		r.logger.Info("config field changed", zap.String("field", path))
	}
	for _, cb := range callbacks {
		cb(old, next)
	}
	return nil
}

// Diff 返回两份配置中值不同的叶子字段路径，例如 "Log.Level"
func Diff(a, b *Config) []string {
	var out []string
	diffValues("", reflect.ValueOf(a).Elem(), reflect.ValueOf(b).Elem(), &out)
	return out
}

func diffValues(prefix string, a, b reflect.Value, out *[]string) {
	if a.Kind() != reflect.Struct {
		if !reflect.DeepEqual(a.Interface(), b.Interface()) {
			*out = append(*out, prefix)
		}
		return
	}
	for i := 0; i < a.NumField(); i++ {
		f := a.Type().Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if prefix != "" {
			name = prefix + "." + name
		}
		diffValues(name, a.Field(i), b.Field(i), out)
	}
}

// --- 脱敏视图 ---

var sensitiveKeys = []string{"password", "apikey", "api_key", "secret", "token", "credential", "dsn"}

// Sanitized 返回适合对外展示的配置副本，敏感字段替换为 [REDACTED]
func Sanitized(cfg *Config) map[string]any {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	redact(result)
	return result
}

func redact(data map[string]any) {
	for key, value := range data {
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if !strings.Contains(lower, s) {
				continue
			}
			switch v := value.(type) {
			case string:
				if v != "" {
					data[key] = "[REDACTED]"
				}
			case []any:
				if len(v) > 0 {
					data[key] = "[REDACTED]"
				}
			}
			break
		}
		if nested, ok := data[key].(map[string]any); ok {
			redact(nested)
		}
	}
}
