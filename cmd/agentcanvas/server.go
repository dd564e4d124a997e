package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcanvas/api/handlers"
	"github.com/BaSui01/agentcanvas/config"
	"github.com/BaSui01/agentcanvas/internal/server"
	"github.com/BaSui01/agentcanvas/store"
)

// skipAuthPaths 探针与指标端点不需要认证
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// buildHandler 注册所有路由并包上中间件链
func buildHandler(ctx context.Context, a *App, logger *zap.Logger) http.Handler {
	cfg := a.cfg
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(Version, logger)
	if p, ok := a.store.(store.Pinger); ok {
		health.RegisterCheck(handlers.CheckFunc{CheckName: "store", Fn: p.Ping})
	}
	health.Register(mux)

	handlers.NewWorkflowHandler(a.service, logger).Register(mux)
	handlers.NewTemplateHandler(a.service, logger).Register(mux)
	handlers.NewVersionHandler(a.service, logger).Register(mux)
	handlers.NewExecutionHandler(a.service, logger, originPatterns(cfg.Server.CORSAllowedOrigins)...).Register(mux)
	handlers.NewMCPHandler(a.registry, logger).Register(mux)

	var rec HTTPRecorder
	if a.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		rec = a.metrics
	}

	middlewares := []Middleware{
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
	}
	if a.telemetry.Enabled() {
		middlewares = append(middlewares, OTelTracing(a.telemetry.TracerProvider(), otel.GetTextMapPropagator()))
	}
	middlewares = append(middlewares,
		RequestLogger(logger, rec),
		CORS(cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst, logger),
		APIKeyAuth(cfg.Server.APIKeys, skipAuthPaths, logger),
		JWTAuth(cfg.JWT, skipAuthPaths, logger),
	)
	return Chain(mux, middlewares...)
}

// originPatterns 把 CORS 来源转换为 websocket.AcceptOptions 的 host 模式
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}

// serverConfig 从应用配置派生 HTTP 监听参数
func serverConfig(cfg config.ServerConfig) server.Config {
	return server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTPPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     2 * cfg.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.ShutdownTimeout,
		CertFile:        cfg.TLSCertFile,
		KeyFile:         cfg.TLSKeyFile,
	}
}

// serve 运行 HTTP 服务与配置热重载，ctx 取消后优雅退出
func serve(ctx context.Context, a *App, configPath string, level zap.AtomicLevel, logger *zap.Logger) error {
	var reloader *config.Reloader
	if configPath != "" {
		var err error
		reloader, err = config.NewReloader(configPath, a.cfg, level, logger)
		if err != nil {
			return err
		}
		reloader.OnReload(func(old, next *config.Config) {
			for _, field := range config.Diff(old, next) {
				if !strings.HasPrefix(field, "Log.") {
					logger.Warn("config change takes effect after restart", zap.String("field", field))
				}
			}
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	mgr := server.NewManager(buildHandler(ctx, a, logger), serverConfig(a.cfg.Server), logger)
	if err := mgr.Listen(); err != nil {
		return err
	}
	g.Go(func() error { return mgr.Run(ctx) })

	if reloader != nil {
		if err := reloader.Start(ctx); err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				<-ctx.Done()
				reloader.Stop()
				return nil
			})
		}
	}

	logger.Info("AgentCanvas serving",
		zap.String("addr", mgr.Addr()),
		zap.Bool("tls", a.cfg.Server.TLSCertFile != ""),
		zap.Bool("jwt", a.cfg.JWT.Enabled()),
		zap.Bool("hot_reload", configPath != ""),
	)
	return g.Wait()
}
