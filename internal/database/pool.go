package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrClosed 连接池关闭后的所有调用都返回它
var ErrClosed = errors.New("database: pool closed")

// PoolConfig 连接池参数，零值字段交给 database/sql 的默认行为
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	// 后台探活间隔，0 关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	// 单次探活超时
	PingTimeout time.Duration `yaml:"ping_timeout" env:"PING_TIMEOUT"`
}

// DefaultPoolConfig 画布存储的默认值：写入量小，连接数保持较低
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    5,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

func (c PoolConfig) applyTo(raw *sql.DB) {
	raw.SetMaxIdleConns(c.MaxIdleConns)
	raw.SetMaxOpenConns(c.MaxOpenConns)
	raw.SetConnMaxLifetime(c.ConnMaxLifetime)
	raw.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

// Pool 持有 store.Gorm 使用的 gorm 连接
type Pool struct {
	db  *gorm.DB
	raw *sql.DB
	cfg PoolConfig
	log *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewPool 按 cfg 设置 db 的底层连接池，HealthCheckInterval 大于 0 时启动探活。
func NewPool(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, errors.New("database: nil gorm handle")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultPoolConfig().PingTimeout
	}
	cfg.applyTo(raw)

	p := &Pool{
		db:   db,
		raw:  raw,
		cfg:  cfg,
		log:  logger.With(zap.String("component", "canvas_db")),
		stop: make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.watch(cfg.HealthCheckInterval)
	}
	p.log.Debug("pool ready",
		zap.Int("max_open", cfg.MaxOpenConns),
		zap.Int("max_idle", cfg.MaxIdleConns),
		zap.Duration("health_every", cfg.HealthCheckInterval),
	)
	return p, nil
}

// DB 返回 gorm 句柄
func (p *Pool) DB() *gorm.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// Ping 探测一次数据库
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return p.raw.PingContext(ctx)
}

// Stats 底层 database/sql 统计
func (p *Pool) Stats() sql.DBStats {
	return p.raw.Stats()
}

// Close 先停探活再关闭连接，重复调用返回 nil
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	return p.raw.Close()
}

func (p *Pool) watch(every time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			p.checkOnce()
		}
	}
}

func (p *Pool) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PingTimeout)
	defer cancel()

	switch err := p.Ping(ctx); {
	case errors.Is(err, ErrClosed):
	case err != nil:
		p.log.Error("canvas database unreachable", zap.Error(err))
	default:
		s := p.Stats()
		p.log.Debug("canvas database ok",
			zap.Int("open", s.OpenConnections),
			zap.Int("busy", s.InUse),
			zap.Int("idle", s.Idle),
		)
	}
}

// TxFunc 在事务内执行的函数，返回错误即回滚
type TxFunc func(tx *gorm.DB) error

// Tx 以单个事务执行 fn
func (p *Pool) Tx(ctx context.Context, fn TxFunc) error {
	p.mu.RLock()
	closed, db := p.closed, p.db
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return db.WithContext(ctx).Transaction(fn)
}

// TxRetry 与 Tx 相同，但对瞬时错误最多再试 retries 次，间隔指数增长
func (p *Pool) TxRetry(ctx context.Context, retries int, fn TxFunc) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	return p.txWith(ctx, backoff.WithMaxRetries(b, uint64(retries)), fn)
}

func (p *Pool) txWith(ctx context.Context, b backoff.BackOff, fn TxFunc) error {
	attempt := 0
	op := func() error {
		attempt++
		err := p.Tx(ctx, fn)
		switch {
		case err == nil:
			return nil
		case !transient(err):
			return backoff.Permanent(err)
		}
		p.log.Warn("transaction will be retried", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// 三种驱动（sqlite/postgres/mysql）里值得重试的错误文本
var transientMarkers = map[string][]string{
	"sqlite":   {"database is locked", "database table is locked"},
	"postgres": {"deadlock detected", "40001", "could not serialize access", "lock timeout"},
	"mysql":    {"deadlock found", "lock wait timeout"},
	"network":  {"bad connection", "connection reset", "connection refused", "broken pipe"},
}

// transient 判断错误是否为锁冲突或连接中断
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, markers := range transientMarkers {
		for _, m := range markers {
			if strings.Contains(msg, m) {
				return true
			}
		}
	}
	return false
}
