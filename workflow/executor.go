package workflow

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow/expr"
)

// ApprovalMode selects how user-approval nodes behave.
type ApprovalMode string

const (
	// ApprovalAuto pauses for one update and approves immediately.
	ApprovalAuto ApprovalMode = "auto"
	// ApprovalSuspend stops the run in the paused state until Resume.
	ApprovalSuspend ApprovalMode = "suspend"
)

// DanglingPolicy decides the outcome of a run whose path stops before an
// end node.
type DanglingPolicy string

const (
	DanglingFail     DanglingPolicy = "fail"
	DanglingComplete DanglingPolicy = "complete"
)

// ExecutorConfig holds the executor defaults.
type ExecutorConfig struct {
	// DefaultModel is used by agent nodes that name no model.
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// DefaultSystemPrompt is used by agent nodes without a prompt.
	DefaultSystemPrompt string `yaml:"default_system_prompt" env:"DEFAULT_SYSTEM_PROMPT"`
	// MaxSteps bounds the node visits of one execution, summed across every
	// Resume. Zero disables the bound.
	MaxSteps       int            `yaml:"max_steps" env:"MAX_STEPS"`
	ApprovalMode   ApprovalMode   `yaml:"approval_mode" env:"APPROVAL_MODE"`
	DanglingPolicy DanglingPolicy `yaml:"dangling_policy" env:"DANGLING_POLICY"`
}

// DefaultExecutorConfig returns the executor defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultModel:        "openai/gpt-4o",
		DefaultSystemPrompt: "You are a helpful assistant.",
		MaxSteps:            1000,
		ApprovalMode:        ApprovalAuto,
		DanglingPolicy:      DanglingFail,
	}
}

// ApprovalDecision is the human answer to a suspended user-approval node.
type ApprovalDecision struct {
	Approved  bool   `json:"approved"`
	Comment   string `json:"comment,omitempty"`
	DecidedBy string `json:"decidedBy,omitempty"`
}

// Executor runs workflows one node at a time along a single path. It holds
// no per-run state and may be shared by concurrent runs.
type Executor struct {
	cfg        ExecutorConfig
	generator  TextGenerator
	tools      ToolCaller
	guardrails GuardrailChecker
	conditions ConditionEvaluator
	files      FileSearcher
	recorder   Recorder
	tracer     trace.Tracer
	clock      clock.Clock
	newID      func() string
	logger     *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTextGenerator sets the backend for agent nodes.
func WithTextGenerator(g TextGenerator) ExecutorOption {
	return func(e *Executor) { e.generator = g }
}

// WithToolCaller sets the backend for mcp nodes. Without one, mcp nodes
// succeed without calling anything.
func WithToolCaller(c ToolCaller) ExecutorOption {
	return func(e *Executor) { e.tools = c }
}

// WithGuardrails sets the backend for guardrail nodes. Without one, every
// check passes.
func WithGuardrails(g GuardrailChecker) ExecutorOption {
	return func(e *Executor) { e.guardrails = g }
}

// WithConditionEvaluator replaces the expression evaluator.
func WithConditionEvaluator(c ConditionEvaluator) ExecutorOption {
	return func(e *Executor) { e.conditions = c }
}

// WithFileSearcher sets the backend for file-search nodes.
func WithFileSearcher(f FileSearcher) ExecutorOption {
	return func(e *Executor) { e.files = f }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *Executor) { e.tracer = tp.Tracer("agentcanvas/workflow") }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithIDGenerator overrides how execution and log ids are minted.
func WithIDGenerator(f func() string) ExecutorOption {
	return func(e *Executor) { e.newID = f }
}

// NewExecutor creates an Executor. Zero fields of cfg take their defaults.
func NewExecutor(cfg ExecutorConfig, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultExecutorConfig()
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.DefaultSystemPrompt == "" {
		cfg.DefaultSystemPrompt = def.DefaultSystemPrompt
	}
	if cfg.ApprovalMode == "" {
		cfg.ApprovalMode = def.ApprovalMode
	}
	if cfg.DanglingPolicy == "" {
		cfg.DanglingPolicy = def.DanglingPolicy
	}

	e := &Executor{
		cfg:        cfg,
		guardrails: passGuardrails{},
		conditions: expr.New(),
		files:      stubFileSearcher{},
		recorder:   nopRecorder{},
		tracer:     otel.Tracer("agentcanvas/workflow"),
		clock:      clock.New(),
		newID:      uuid.NewString,
		logger:     logger.With(zap.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() ExecutorConfig {
	return e.cfg
}

// Execute runs wf from its start node with the given input. It never
// returns an error: every failure, including a panic, is reported through
// the returned record's status and logs. onUpdate may be nil.
func (e *Executor) Execute(ctx context.Context, wf *Workflow, input string, onUpdate UpdateFunc) (execution *WorkflowExecution) {
	if wf == nil {
		wf = &Workflow{}
	}
	now := e.clock.Now()
	r := e.newRun(wf, onUpdate, &WorkflowExecution{
		ID:         e.newID(),
		WorkflowID: wf.ID,
		Status:     StatusRunning,
		StartedAt:  now,
		Context: ExecutionContext{
			Input:     input,
			Variables: make(map[string]any),
			Messages: []types.Message{
				{Role: types.RoleUser, Content: input, Timestamp: now},
			},
		},
		Logs: []ExecutionLog{},
	})

	ctx, span := e.tracer.Start(types.WithExecutionID(ctx, r.exec.ID), "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("execution.id", r.exec.ID),
		),
	)
	defer func() {
		if rec := recover(); rec != nil {
			r.crash(rec)
		}
		r.finish(span)
		execution = r.exec
	}()

	e.logger.Info("workflow execution started",
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", r.exec.ID),
	)

	start, ok := r.wf.StartNode()
	if !ok {
		r.fail(SystemNodeID, types.ErrMissingStartNode, "No start node found in workflow", 0)
		return r.exec
	}

	r.last = start.ID
	r.exec.Steps = 1
	r.log(start.ID, LogInfo, "Workflow execution started", nil, 0)
	r.loop(ctx, r.wf.NextNode(start.ID))
	return r.exec
}

// Resume continues an execution suspended at a user-approval node. A
// rejection fails the run. Structural problems, such as an execution that
// is not awaiting approval, are returned as errors and leave the record
// untouched.
func (e *Executor) Resume(ctx context.Context, wf *Workflow, execution *WorkflowExecution, decision ApprovalDecision, onUpdate UpdateFunc) (result *WorkflowExecution, err error) {
	if execution == nil || execution.Status != StatusPaused || execution.AwaitingNodeID == "" {
		return nil, types.NewError(types.ErrNotAwaitingApproval, "execution is not awaiting approval")
	}
	if wf == nil || !wf.HasNode(execution.AwaitingNodeID) {
		return nil, types.Errorf(types.ErrNodeNotFound, "approval node %s not found", execution.AwaitingNodeID)
	}

	r := e.newRun(wf, onUpdate, execution.Clone())
	node, _ := r.wf.Node(r.exec.AwaitingNodeID)

	ctx, span := e.tracer.Start(types.WithExecutionID(ctx, r.exec.ID), "workflow.resume",
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("execution.id", r.exec.ID),
			attribute.Bool("approval.approved", decision.Approved),
		),
	)
	defer func() {
		if rec := recover(); rec != nil {
			r.crash(rec)
		}
		r.finish(span)
		result = r.exec
	}()

	r.exec.AwaitingNodeID = ""
	r.exec.Status = StatusRunning
	r.last = node.ID

	if !decision.Approved {
		msg := "User approval rejected"
		if decision.Comment != "" {
			msg += ": " + decision.Comment
		}
		r.fail(node.ID, types.ErrApprovalRejected, msg, 0)
		return r.exec, nil
	}

	data := map[string]any{"approved": true}
	if decision.Comment != "" {
		data["comment"] = decision.Comment
	}
	if decision.DecidedBy != "" {
		data["approvedBy"] = decision.DecidedBy
	}
	r.log(node.ID, LogSuccess, "User approval received", data, 0)
	r.exec.Context.Variables[node.ID] = cloneMap(data)
	r.notify()

	r.loop(ctx, r.wf.NextNode(node.ID))
	return r.exec, nil
}

func (e *Executor) newRun(wf *Workflow, onUpdate UpdateFunc, exec *WorkflowExecution) *run {
	if exec.Context.Variables == nil {
		exec.Context.Variables = make(map[string]any)
	}
	return &run{
		e:        e,
		wf:       wf.Clone(),
		exec:     exec,
		onUpdate: onUpdate,
	}
}

// run is the mutable state of one Execute or Resume call.
type run struct {
	e        *Executor
	wf       *Workflow
	exec     *WorkflowExecution
	onUpdate UpdateFunc
	last     string
}

func (r *run) loop(ctx context.Context, current *Node) {
	for current != nil && current.Type != NodeTypeEnd {
		if err := ctx.Err(); err != nil {
			r.fail(current.ID, types.ErrExecutionCancelled, "Execution cancelled: "+err.Error(), 0)
			return
		}
		if max := r.e.cfg.MaxSteps; max > 0 && r.exec.Steps >= max {
			r.fail(current.ID, types.ErrStepLimitExceeded, fmt.Sprintf("Step limit of %d exceeded", max), 0)
			return
		}
		r.exec.Steps++
		r.last = current.ID

		r.exec.CurrentNodeID = current.ID
		r.notify()

		res := r.runNode(ctx, current)
		r.exec.Logs = append(r.exec.Logs, res.logs...)

		if res.err != nil {
			r.e.logger.Warn("node failed",
				zap.String("execution_id", r.exec.ID),
				zap.String("node_id", current.ID),
				zap.String("node_type", string(current.Type)),
				zap.Error(res.err),
			)
			r.fail(current.ID, res.code, errorMessage(res.err), res.duration)
			return
		}

		if !emptyOutput(res.output) {
			r.exec.Context.Variables[current.ID] = res.output
		}

		if res.suspend {
			r.exec.Status = StatusPaused
			r.exec.AwaitingNodeID = current.ID
			r.notify()
			return
		}

		if res.next != "" {
			current, _ = r.wf.Node(res.next)
		} else {
			current = r.wf.NextNode(current.ID)
		}
		r.notify()
	}

	if current == nil {
		if r.e.cfg.DanglingPolicy == DanglingComplete {
			r.complete(r.last)
			return
		}
		r.fail(r.last, types.ErrGraphExhausted, "Workflow ended without reaching an end node", 0)
		return
	}
	r.complete(current.ID)
}

func (r *run) complete(nodeID string) {
	now := r.e.clock.Now()
	r.exec.Status = StatusCompleted
	r.exec.CompletedAt = &now
	r.exec.CurrentNodeID = nodeID
	r.log(nodeID, LogSuccess, "Workflow execution completed", nil, 0)
	r.notify()
}

func (r *run) fail(nodeID string, code types.ErrorCode, msg string, durationMs int64) {
	now := r.e.clock.Now()
	r.exec.Status = StatusFailed
	r.exec.CompletedAt = &now
	r.exec.Error = msg
	r.exec.ErrorCode = code
	r.log(nodeID, LogError, msg, nil, durationMs)
	r.notify()
}

// crash turns a recovered panic into a failed record and reports it once
// more. A panic raised by onUpdate here is swallowed.
func (r *run) crash(rec any) {
	msg := fmt.Sprintf("%v", rec)
	if err, ok := rec.(error); ok {
		msg = err.Error()
	}
	r.e.logger.Error("workflow execution panicked",
		zap.String("execution_id", r.exec.ID),
		zap.String("panic", msg),
	)
	now := r.e.clock.Now()
	r.exec.Status = StatusFailed
	r.exec.CompletedAt = &now
	r.exec.Error = msg
	r.exec.ErrorCode = types.ErrInternalError
	r.log(SystemNodeID, LogError, msg, nil, 0)

	func() {
		defer func() { _ = recover() }()
		r.notify()
	}()
}

func (r *run) finish(span trace.Span) {
	defer span.End()

	elapsed := r.e.clock.Since(r.exec.StartedAt)
	r.e.recorder.RecordExecution(r.exec.WorkflowID, r.exec.Status, elapsed)

	span.SetAttributes(attribute.String("execution.status", string(r.exec.Status)))
	if r.exec.Status == StatusFailed {
		span.SetStatus(codes.Error, r.exec.Error)
	}

	r.e.logger.Info("workflow execution finished",
		zap.String("workflow_id", r.exec.WorkflowID),
		zap.String("execution_id", r.exec.ID),
		zap.String("status", string(r.exec.Status)),
		zap.Int("steps", r.exec.Steps),
		zap.Duration("elapsed", elapsed),
	)
}

func (r *run) log(nodeID string, typ LogType, msg string, data map[string]any, durationMs int64) {
	r.exec.Logs = append(r.exec.Logs, r.newLog(nodeID, typ, msg, data, durationMs))
}

func (r *run) newLog(nodeID string, typ LogType, msg string, data map[string]any, durationMs int64) ExecutionLog {
	return ExecutionLog{
		ID:        r.e.newID(),
		NodeID:    nodeID,
		Timestamp: r.e.clock.Now(),
		Type:      typ,
		Message:   msg,
		Data:      data,
		Duration:  durationMs,
	}
}

func (r *run) notify() {
	if r.onUpdate != nil {
		r.onUpdate(r.exec.Clone())
	}
}

func emptyOutput(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// errorMessage renders err for an execution log without the code prefix.
func errorMessage(err error) string {
	if e, ok := types.AsError(err); ok {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}
