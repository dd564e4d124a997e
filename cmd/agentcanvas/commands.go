package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcanvas/config"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/layout"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the AgentCanvas HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port (overrides server.http_port)",
				Sources: cli.EnvVars("AGENTCANVAS_PORT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}
			if port := command.Int("port"); port > 0 {
				cfg.Server.HTTPPort = port
			}

			logger, level := initLogger(cfg.Log)
			defer logger.Sync()

			logger.Info("Starting AgentCanvas",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			a, err := newApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Error("shutdown error", zap.Error(err))
				}
				logger.Info("AgentCanvas stopped")
			}()
			return serve(ctx, a, command.String("config"), level, logger)
		},
	}
}

// offlineApp 为一次性命令装配应用：内存存储、无指标、日志写到 stderr
func offlineApp(ctx context.Context, command *cli.Command) (*App, *zap.Logger, error) {
	cfg, err := loadConfig(command)
	if err != nil {
		return nil, nil, err
	}
	cfg.Store = config.DefaultConfig().Store
	cfg.Log.OutputPaths = []string{"stderr"}
	if command.String("log-level") == "" {
		cfg.Log.Level = "warn"
	}
	logger, _ := initLogger(cfg.Log)
	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

// runResult 是 run 命令每个输入的一行输出
type runResult struct {
	Input       string                   `json:"input"`
	ExecutionID string                   `json:"executionId"`
	Status      workflow.ExecutionStatus `json:"status"`
	Output      string                   `json:"output,omitempty"`
	Error       string                   `json:"error,omitempty"`
	ErrorCode   string                   `json:"errorCode,omitempty"`
	Steps       int                      `json:"steps"`
}

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a workflow file once per --input",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "User input; repeat to run several executions",
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "Maximum concurrent executions",
				Value: 4,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Deadline for each execution, 0 for none",
			},
			&cli.BoolFlag{
				Name:  "logs",
				Usage: "Print the full execution records instead of summaries",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			data, format, err := readWorkflowFile(command)
			if err != nil {
				return err
			}
			a, logger, err := offlineApp(ctx, command)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))
			defer logger.Sync()

			w, err := a.service.Import(ctx, data, format)
			if err != nil {
				return err
			}

			inputs := command.StringSlice("input")
			if len(inputs) == 0 {
				inputs = []string{""}
			}
			execs := make([]*workflow.WorkflowExecution, len(inputs))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(1, command.Int("parallel")))
			timeout := command.Duration("timeout")
			for i, input := range inputs {
				g.Go(func() error {
					runCtx := gctx
					if timeout > 0 {
						var cancel context.CancelFunc
						runCtx, cancel = context.WithTimeout(gctx, timeout)
						defer cancel()
					}
					exec, err := a.service.Execute(runCtx, w.ID, input, nil)
					if err != nil {
						return err
					}
					execs[i] = exec
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := command.Root().Writer
			enc := json.NewEncoder(out)
			if command.Bool("logs") {
				enc.SetIndent("", "  ")
				return enc.Encode(execs)
			}
			failed := 0
			for i, exec := range execs {
				if exec.Status == workflow.StatusFailed {
					failed++
				}
				if err := enc.Encode(summarize(inputs[i], exec)); err != nil {
					return err
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d executions failed", failed, len(execs)), 2)
			}
			return nil
		},
	}
}

func summarize(input string, exec *workflow.WorkflowExecution) runResult {
	res := runResult{
		Input:       input,
		ExecutionID: exec.ID,
		Status:      exec.Status,
		Error:       exec.Error,
		ErrorCode:   string(exec.ErrorCode),
		Steps:       exec.Steps,
	}
	if msgs := exec.Context.Messages; len(msgs) > 0 {
		res.Output = msgs[len(msgs)-1].Content
	}
	return res
}

// readWorkflowFile 读取首个参数指向的工作流文件，按扩展名判断格式
func readWorkflowFile(command *cli.Command) ([]byte, string, error) {
	path := command.Args().First()
	if path == "" {
		return nil, "", cli.Exit("workflow file is required", 1)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read workflow: %w", err)
	}
	return data, formatOf(path), nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

func parseWorkflow(data []byte, format string) (*workflow.Workflow, error) {
	if format == "yaml" {
		return workflow.ImportYAML(data, workflow.ImportOptions{})
	}
	return workflow.Import(data, workflow.ImportOptions{})
}

// writeWorkflow 以 format 渲染工作流，写到 path；path 为空或 "-" 时写到 out
func writeWorkflow(out io.Writer, path, format string, w *workflow.Workflow) error {
	var (
		data []byte
		err  error
	)
	if format == "yaml" {
		data, err = workflow.ExportYAML(w)
	} else {
		data, err = workflow.Export(w)
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		_, err = out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func newValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a workflow file for structural and graph problems",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Treat warnings as errors",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			data, format, err := readWorkflowFile(command)
			if err != nil {
				return err
			}
			w, err := parseWorkflow(data, format)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			out := command.Root().Writer
			issues := workflow.Lint(w)
			errorsFound, warnings := 0, 0
			for _, is := range issues {
				if is.Level == workflow.IssueError {
					errorsFound++
				} else {
					warnings++
				}
				where := ""
				if is.NodeID != "" {
					where = " [" + is.NodeID + "]"
				}
				fmt.Fprintf(out, "%s%s: %s\n", is.Level, where, is.Message)
			}
			if errorsFound > 0 || (command.Bool("strict") && warnings > 0) {
				return cli.Exit(fmt.Sprintf("%s: %d error(s), %d warning(s)", w.Name, errorsFound, warnings), 1)
			}
			fmt.Fprintf(out, "%s: OK (%d nodes, %d connections, %d warning(s))\n",
				w.Name, len(w.Nodes), len(w.Connections), warnings)
			return nil
		},
	}
}

// =============================================================================
// 📐 layout 命令
// =============================================================================

func newLayoutCommand() *cli.Command {
	return &cli.Command{
		Name:      "layout",
		Usage:     "Auto-arrange the nodes of a workflow file",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file, stdout when empty",
			},
			&cli.StringFlag{
				Name:  "orientation",
				Usage: "vertical or horizontal (overrides layout.orientation)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}
			data, format, err := readWorkflowFile(command)
			if err != nil {
				return err
			}
			w, err := parseWorkflow(data, format)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			lc := cfg.Layout
			if o := command.String("orientation"); o != "" {
				lc.Orientation = layout.Orientation(o)
			}
			w.Nodes = layout.New(lc).Apply(w.Nodes, w.Connections)
			return writeWorkflow(command.Root().Writer, command.String("output"), format, w)
		},
	}
}

// =============================================================================
// 📚 templates / new 命令
// =============================================================================

func newTemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "List the built-in workflow templates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only list templates of this category",
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Search name, description and tags",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			var list []*workflow.Template
			switch {
			case command.String("query") != "":
				list = workflow.SearchTemplates(command.String("query"))
			case command.String("category") != "":
				list = workflow.TemplatesByCategory(workflow.TemplateCategory(command.String("category")))
			default:
				list = workflow.Templates()
			}

			tw := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tNODES\tUSES\tNAME")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", t.ID, t.Category, len(t.Nodes), t.UsageCount, t.Name)
			}
			return tw.Flush()
		},
	}
}

func newNewCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a workflow file from a built-in template",
		ArgsUsage: "<template-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Workflow name, defaults to the template name",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file; .yaml/.yml selects YAML, stdout when empty",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			tpl, ok := workflow.TemplateByID(id)
			if !ok {
				return cli.Exit(fmt.Sprintf("unknown template %q, see 'agentcanvas templates'", id), 1)
			}
			w, err := tpl.Instantiate(command.String("name"), workflow.ImportOptions{})
			if err != nil {
				return err
			}
			output := command.String("output")
			return writeWorkflow(command.Root().Writer, output, formatOf(output), w)
		},
	}
}

// =============================================================================
// 🔁 convert 命令
// =============================================================================

func newConvertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a workflow file between JSON and YAML",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file, stdout when empty",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Target format (json, yaml); defaults to the other one",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			data, format, err := readWorkflowFile(command)
			if err != nil {
				return err
			}
			w, err := parseWorkflow(data, format)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			target := command.String("to")
			switch {
			case target == "yml":
				target = "yaml"
			case target == "" && command.String("output") != "":
				target = formatOf(command.String("output"))
			case target == "" && format == "yaml":
				target = "json"
			case target == "":
				target = "yaml"
			}
			if target != "json" && target != "yaml" {
				return cli.Exit(fmt.Sprintf("unknown format %q", target), 1)
			}
			return writeWorkflow(command.Root().Writer, command.String("output"), target, w)
		},
	}
}

// =============================================================================
// 📋 version / health 命令
// =============================================================================

func newVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(ctx context.Context, command *cli.Command) error {
			out := command.Root().Writer
			fmt.Fprintf(out, "AgentCanvas %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
			return nil
		},
	}
}

func newHealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check a running server's readiness",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Server address",
				Value: "http://localhost:8080",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(command.String("addr"), "/")+"/ready", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Health check failed: %v", err), 1)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return cli.Exit(fmt.Sprintf("Health check failed: status %d", resp.StatusCode), 1)
			}
			fmt.Fprintln(command.Root().Writer, "OK")
			return nil
		},
	}
}
