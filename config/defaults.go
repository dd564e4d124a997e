// =============================================================================
// 📦 AgentCanvas 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/agentcanvas/guardrails"
	"github.com/BaSui01/agentcanvas/llm"
	"github.com/BaSui01/agentcanvas/mcp"
	"github.com/BaSui01/agentcanvas/store"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/clipboard"
	"github.com/BaSui01/agentcanvas/workflow/history"
	"github.com/BaSui01/agentcanvas/workflow/layout"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Executor:   workflow.DefaultExecutorConfig(),
		Layout:     layout.DefaultConfig(),
		History:    HistoryConfig{MaxSize: history.DefaultMaxSize},
		Clipboard:  ClipboardConfig{OffsetX: clipboard.DefaultOffset.X, OffsetY: clipboard.DefaultOffset.Y},
		Session:    SessionConfig{IdleTTL: 30 * time.Minute},
		Store:      store.DefaultConfig(),
		LLM:        llm.DefaultConfig(),
		Guardrails: guardrails.DefaultConfig(),
		MCP:        DefaultMCPConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    MetricsConfig{Enabled: true, Namespace: "agentcanvas"},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultMCPConfig 返回默认 MCP 配置
func DefaultMCPConfig() MCPConfig {
	return MCPConfig{
		AutoConnect: true,
		Breaker:     mcp.DefaultBreakerConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentcanvas",
		SampleRate:   0.1,
	}
}
