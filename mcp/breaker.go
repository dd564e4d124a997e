package mcp

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// CircuitState 熔断器状态
type CircuitState int

const (
	// CircuitClosed 正常状态，允许请求通过
	CircuitClosed CircuitState = iota
	// CircuitOpen 熔断状态，拒绝所有请求
	CircuitOpen
	// CircuitHalfOpen 半开状态，允许探测请求
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// FailureThreshold 连续失败次数阈值，达到后触发熔断
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// RecoveryTimeout 熔断后等待恢复的时间
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	// HalfOpenMaxProbes 半开状态允许的探测请求数
	HalfOpenMaxProbes int `yaml:"half_open_max_probes" env:"HALF_OPEN_MAX_PROBES"`
	// SuccessThreshold 半开状态下连续成功多少次后恢复
	SuccessThreshold int `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenMaxProbes: 3,
		SuccessThreshold:  2,
	}
}

// breaker 单个服务器的熔断器
type breaker struct {
	serverID    string
	cfg         BreakerConfig
	clock       clock.Clock
	state       CircuitState
	failures    int // 连续失败次数
	successes   int // 半开状态下连续成功次数
	probes      int // 半开状态下已探测次数
	lastFailure time.Time
	logger      *zap.Logger
	mu          sync.Mutex
}

func newBreaker(serverID string, cfg BreakerConfig, clk clock.Clock, logger *zap.Logger) *breaker {
	return &breaker{
		serverID: serverID,
		cfg:      cfg,
		clock:    clk,
		logger:   logger.With(zap.String("server_id", serverID)),
	}
}

// allow 检查是否允许请求通过
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		// 检查是否到了恢复时间
		elapsed := b.clock.Since(b.lastFailure)
		if elapsed < b.cfg.RecoveryTimeout {
			return fmt.Errorf("circuit open for server %s: %d consecutive failures, retry after %v",
				b.serverID, b.failures, b.cfg.RecoveryTimeout-elapsed)
		}
		b.transitionTo(CircuitHalfOpen, "recovery timeout elapsed")
		b.probes = 1
		b.successes = 0
		return nil

	case CircuitHalfOpen:
		if b.probes >= b.cfg.HalfOpenMaxProbes {
			return fmt.Errorf("circuit half-open for server %s: max probes (%d) reached",
				b.serverID, b.cfg.HalfOpenMaxProbes)
		}
		b.probes++
	}
	return nil
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		b.failures = 0
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionTo(CircuitClosed, fmt.Sprintf("%d consecutive successes in half-open", b.successes))
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.clock.Now()

	switch b.state {
	case CircuitClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionTo(CircuitOpen, fmt.Sprintf("%d consecutive failures", b.failures))
		}
	case CircuitHalfOpen:
		// 半开状态下任何失败都重新熔断
		b.successes = 0
		b.transitionTo(CircuitOpen, "failure in half-open state")
	}
}

func (b *breaker) current() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionTo 状态转换（必须在锁内调用）
func (b *breaker) transitionTo(next CircuitState, reason string) {
	b.logger.Info("circuit breaker state change",
		zap.String("old_state", b.state.String()),
		zap.String("new_state", next.String()),
		zap.String("reason", reason),
		zap.Int("failures", b.failures))
	b.state = next
}
