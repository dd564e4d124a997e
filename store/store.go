package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

// WorkflowRepository persists workflows.
type WorkflowRepository interface {
	// SaveWorkflow inserts or replaces a workflow.
	SaveWorkflow(ctx context.Context, w *workflow.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	// ListWorkflows returns workflows, most recently updated first.
	ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error)
	// DeleteWorkflow removes a workflow together with its executions.
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionRepository persists execution records.
type ExecutionRepository interface {
	// SaveExecution inserts or replaces an execution.
	SaveExecution(ctx context.Context, e *workflow.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*workflow.WorkflowExecution, error)
	// ListExecutions returns the executions of one workflow, newest first.
	// An empty workflowID lists every execution.
	ListExecutions(ctx context.Context, workflowID string) ([]*workflow.WorkflowExecution, error)
	DeleteExecution(ctx context.Context, id string) error
}

// Store bundles both repositories.
type Store interface {
	WorkflowRepository
	ExecutionRepository
	Close() error
}

// Pinger is implemented by stores backed by a remote connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Driver names accepted by Config.Driver.
const (
	DriverMemory = "memory"
	DriverGorm   = "gorm"
	DriverRedis  = "redis"
)

// Config selects the storage backend.
type Config struct {
	// Driver: memory, gorm, redis
	Driver   string         `yaml:"driver" env:"DRIVER"`
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	Redis    RedisConfig    `yaml:"redis" env:"REDIS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN 连接串；sqlite 为文件路径或 file::memory:
	DSN string `yaml:"dsn" env:"DSN"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 执行记录过期时间，0 表示不过期
	ExecutionTTL time.Duration `yaml:"execution_ttl" env:"EXECUTION_TTL"`
}

// DefaultConfig returns the in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Driver: DriverMemory,
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "agentcanvas.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "agentcanvas:",
		},
	}
}

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverGorm:
		return OpenGorm(cfg.Database, logger)
	case DriverRedis:
		return OpenRedis(ctx, cfg.Redis, logger)
	}
	return nil, types.Errorf(types.ErrInvalidRequest, "unknown store driver: %s", cfg.Driver)
}

func workflowNotFound(id string) error {
	return types.Errorf(types.ErrWorkflowNotFound, "workflow %s not found", id)
}

func executionNotFound(id string) error {
	return types.Errorf(types.ErrExecutionNotFound, "execution %s not found", id)
}

func storageError(err error, format string, args ...any) error {
	return types.WrapError(err, types.ErrStorage, fmt.Sprintf(format, args...))
}

func sortWorkflows(ws []*workflow.Workflow) {
	sort.SliceStable(ws, func(i, j int) bool {
		if !ws[i].UpdatedAt.Equal(ws[j].UpdatedAt) {
			return ws[i].UpdatedAt.After(ws[j].UpdatedAt)
		}
		return ws[i].ID < ws[j].ID
	})
}

func sortExecutions(es []*workflow.WorkflowExecution) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].StartedAt.Equal(es[j].StartedAt) {
			return es[i].StartedAt.After(es[j].StartedAt)
		}
		return es[i].ID < es[j].ID
	})
}
