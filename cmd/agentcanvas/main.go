// =============================================================================
// AgentCanvas 主入口
// =============================================================================
// 画布 HTTP 服务与离线工作流工具
//
// 使用方法:
//
//	agentcanvas serve                         # 启动服务
//	agentcanvas --config config.yaml serve    # 指定配置文件
//	agentcanvas run flow.json --input "hi"    # 本地执行工作流
//	agentcanvas validate flow.yaml            # 检查工作流
//	agentcanvas templates                     # 列出内置模板
//	agentcanvas version                       # 显示版本信息
//	agentcanvas health                        # 健康检查
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentcanvas/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "agentcanvas",
		Usage:                 "Visual AI agent workflow canvas",
		Version:               Version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (YAML)",
				Sources: cli.EnvVars("AGENTCANVAS_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Override log level (debug, info, warn, error)",
				Sources: cli.EnvVars("AGENTCANVAS_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newRunCommand(),
			newValidateCommand(),
			newLayoutCommand(),
			newTemplatesCommand(),
			newNewCommand(),
			newConvertCommand(),
			newVersionCommand(),
			newHealthCommand(),
		},
	}
}

// loadConfig 按 默认值 → YAML → 环境变量 → 命令行 的顺序加载配置
func loadConfig(command *cli.Command) (*config.Config, error) {
	loader := config.NewLoader()
	if path := command.String("config"); path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if lvl := command.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建进程 logger，返回的 AtomicLevel 供配置热重载调整级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zapcore.InfoLevel)
		}
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	zapConfig := zap.Config{
		Level:             level,
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, level
}
