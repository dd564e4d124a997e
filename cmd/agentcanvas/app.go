package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/config"
	"github.com/BaSui01/agentcanvas/guardrails"
	"github.com/BaSui01/agentcanvas/internal/metrics"
	"github.com/BaSui01/agentcanvas/internal/telemetry"
	"github.com/BaSui01/agentcanvas/llm"
	"github.com/BaSui01/agentcanvas/mcp"
	"github.com/BaSui01/agentcanvas/service"
	"github.com/BaSui01/agentcanvas/store"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/layout"
	"github.com/BaSui01/agentcanvas/workflow/session"
	"github.com/BaSui01/agentcanvas/workflow/version"
)

// App 持有一次进程生命周期内的全部组件
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     store.Store
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
	registry  *mcp.Registry
	executor  *workflow.Executor
	sessions  *session.Registry
	service   *service.Service
}

// newApp 按配置装配组件。withMetrics 为 false 时不注册 Prometheus 指标，
// 供 run 等一次性命令使用
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, withMetrics bool) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st

	if withMetrics && cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	a.telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
		a.telemetry = nil
	}

	gen, err := llm.New(cfg.LLM, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("build text generator: %w", err)
	}

	mcpOpts := []mcp.Option{mcp.WithBreakerConfig(cfg.MCP.Breaker)}
	if a.metrics != nil {
		gen = llm.WithMetrics(gen, cfg.LLM.Provider, a.metrics)
		mcpOpts = append(mcpOpts, mcp.WithCallRecorder(a.metrics))
	}
	a.registry = mcp.NewRegistry(logger, mcpOpts...)
	for _, name := range cfg.MCP.Servers {
		if _, err := a.registry.ConnectServer(ctx, mcp.ConnectRequest{
			Name:     name,
			URL:      "stdio://" + name,
			Protocol: mcp.ProtocolStdio,
		}); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("connect MCP server %s: %w", name, err)
		}
	}

	checker, err := guardrails.NewChecker(cfg.Guardrails, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("build guardrails: %w", err)
	}

	execOpts := []workflow.ExecutorOption{
		workflow.WithTextGenerator(gen),
		workflow.WithToolCaller(mcp.NewNodeCaller(a.registry, cfg.MCP.AutoConnect)),
		workflow.WithGuardrails(checker),
		workflow.WithIDGenerator(uuid.NewString),
	}
	if a.telemetry != nil {
		execOpts = append(execOpts, workflow.WithTracerProvider(a.telemetry.TracerProvider()))
	}
	if a.metrics != nil {
		execOpts = append(execOpts, workflow.WithRecorder(a.metrics))
	}
	a.executor = workflow.NewExecutor(cfg.Executor, logger, execOpts...)

	a.sessions = session.NewRegistry(session.Options{
		IdleTTL:     cfg.Session.IdleTTL,
		HistorySize: cfg.History.MaxSize,
		PasteOffset: workflow.Position{X: cfg.Clipboard.OffsetX, Y: cfg.Clipboard.OffsetY},
	}, logger)

	svcOpts := []service.Option{
		service.WithSessions(a.sessions),
		service.WithVersions(version.NewStore(nil, logger)),
		service.WithLayout(layout.New(cfg.Layout)),
	}
	if a.metrics != nil {
		svcOpts = append(svcOpts, service.WithOperationRecorder(a.metrics))
	}
	a.service = service.New(st, a.executor, logger, svcOpts...)

	logger.Info("application initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("llm", cfg.LLM.Provider),
		zap.Int("mcp_servers", len(cfg.MCP.Servers)),
		zap.Bool("metrics", a.metrics != nil),
		zap.Bool("telemetry", a.telemetry != nil && a.telemetry.Enabled()),
	)
	return a, nil
}

// Close 按依赖逆序释放资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.service != nil {
		a.service.Close()
	} else if a.sessions != nil {
		a.sessions.Stop()
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
