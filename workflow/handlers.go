package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/agentcanvas/types"
)

// nodeResult is what a node handler hands back to the loop.
type nodeResult struct {
	logs     []ExecutionLog
	output   any
	next     string
	suspend  bool
	err      error
	code     types.ErrorCode
	duration int64
}

// step collects the logs of one node visit.
type step struct {
	r       *run
	node    *Node
	started time.Time
	logs    []ExecutionLog
}

func (s *step) info(msg string) {
	s.logs = append(s.logs, s.r.newLog(s.node.ID, LogInfo, msg, nil, 0))
}

func (s *step) success(msg string, data map[string]any) {
	s.logs = append(s.logs, s.r.newLog(s.node.ID, LogSuccess, msg, data, s.elapsed()))
}

func (s *step) elapsed() int64 {
	return s.r.e.clock.Since(s.started).Milliseconds()
}

func (s *step) done(output any) nodeResult {
	return nodeResult{logs: s.logs, output: output}
}

func (s *step) route(next string) nodeResult {
	return nodeResult{logs: s.logs, next: next}
}

func (s *step) failure(err error, code types.ErrorCode) nodeResult {
	if c := types.GetErrorCode(err); c != "" {
		code = c
	}
	return nodeResult{logs: s.logs, err: err, code: code, duration: s.elapsed()}
}

func (r *run) runNode(ctx context.Context, node *Node) (res nodeResult) {
	s := &step{r: r, node: node, started: r.e.clock.Now()}

	ctx, span := r.e.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.type", string(node.Type)),
		),
	)
	defer func() {
		if rec := recover(); rec != nil {
			res = s.failure(fmt.Errorf("node panicked: %v", rec), types.ErrInternalError)
		}
		r.e.recorder.RecordNode(node.Type, res.err == nil, r.e.clock.Since(s.started))
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, errorMessage(res.err))
		}
		span.End()
	}()

	switch node.Type {
	case NodeTypeAgent:
		return r.agent(ctx, s)
	case NodeTypeGuardrail:
		return r.guardrail(ctx, s)
	case NodeTypeCondition:
		return r.condition(s)
	case NodeTypeUserApproval:
		return r.approval(s)
	case NodeTypeMCP:
		return r.mcp(ctx, s)
	case NodeTypeFileSearch:
		return r.fileSearch(ctx, s)
	default:
		s.info(fmt.Sprintf("Skipping node type: %s", node.Type))
		return s.done(nil)
	}
}

func (r *run) agent(ctx context.Context, s *step) nodeResult {
	s.info(fmt.Sprintf("Executing agent: %s", s.node.Data.Label))

	if r.e.generator == nil {
		return s.failure(types.NewError(types.ErrUpstreamError, "no text generator configured"), types.ErrUpstreamError)
	}

	model := s.node.Data.Model
	if model == "" {
		model = r.e.cfg.DefaultModel
	}
	prompt := s.node.Data.SystemPrompt
	if prompt == "" {
		prompt = r.e.cfg.DefaultSystemPrompt
	}

	text, err := r.e.generator.Generate(ctx, model, prompt, slices.Clone(r.exec.Context.Messages))
	if err != nil {
		return s.failure(types.WrapError(err, types.ErrUpstreamError, "Agent execution failed"), types.ErrUpstreamError)
	}

	msg := types.NewAssistantMessage(text)
	msg.Name = s.node.ID
	msg.Timestamp = r.e.clock.Now()
	r.exec.Context.Messages = append(r.exec.Context.Messages, msg)

	s.success("Agent response generated", map[string]any{"response": text, "model": model})
	return s.done(text)
}

func (r *run) guardrail(ctx context.Context, s *step) nodeResult {
	kind := s.node.Data.GuardrailType
	if kind == "" {
		kind = GuardrailJailbreak
	}
	s.info(fmt.Sprintf("Checking guardrail: %s", kind))

	verdict, err := r.e.guardrails.Check(ctx, kind, types.LastContent(r.exec.Context.Messages))
	if err != nil {
		return s.failure(types.WrapError(err, types.ErrInternalError, "Guardrail check errored"), types.ErrInternalError)
	}
	if !verdict.Passed {
		msg := "Guardrail check failed"
		if verdict.Reason != "" {
			msg += ": " + verdict.Reason
		}
		return s.failure(types.NewError(types.ErrGuardrailViolated, msg), types.ErrGuardrailViolated)
	}

	s.success("Guardrail check passed", map[string]any{"guardrailType": string(kind)})
	return s.done(nil)
}

func (r *run) condition(s *step) nodeResult {
	cond := strings.TrimSpace(s.node.Data.Condition)
	if cond == "" {
		cond = "true"
	}
	s.info(fmt.Sprintf("Evaluating condition: %s", cond))

	result, err := r.e.conditions.Evaluate(cond, r.conditionVars())
	if err != nil {
		return s.failure(types.WrapError(err, types.ErrConditionInvalid, "Condition evaluation failed"), types.ErrConditionInvalid)
	}

	want := "false"
	if result {
		want = "true"
	}
	outgoing := r.wf.Outgoing(s.node.ID)
	next := ""
	for _, c := range outgoing {
		if strings.EqualFold(c.Label, want) {
			next = c.TargetID
			break
		}
	}
	if next == "" && len(outgoing) > 0 {
		next = outgoing[0].TargetID
	}

	s.success(fmt.Sprintf("Condition evaluated to: %t", result), map[string]any{"result": result})
	return s.route(next)
}

// conditionVars exposes the run state to condition expressions. Node
// outputs are reachable both as variables.<id> and as <id> when the id does
// not shadow a built-in name.
func (r *run) conditionVars() map[string]any {
	vars := map[string]any{
		"input":     r.exec.Context.Input,
		"last":      types.LastContent(r.exec.Context.Messages),
		"variables": r.exec.Context.Variables,
	}
	for k, v := range r.exec.Context.Variables {
		if _, taken := vars[k]; !taken {
			vars[k] = v
		}
	}
	return vars
}

func (r *run) approval(s *step) nodeResult {
	s.info("Pausing for user approval")

	if r.e.cfg.ApprovalMode == ApprovalSuspend {
		s.logs = append(s.logs, r.newLog(s.node.ID, LogInfo, "Awaiting user approval", nil, 0))
		return nodeResult{logs: s.logs, suspend: true}
	}

	r.exec.Status = StatusPaused
	r.notify()
	s.success("User approval received (simulated)", nil)
	r.exec.Status = StatusRunning
	return s.done(map[string]any{"approved": true, "simulated": true})
}

func (r *run) mcp(ctx context.Context, s *step) nodeResult {
	server := s.node.Data.MCPServer
	s.info(fmt.Sprintf("Calling MCP server: %s", server))

	if r.e.tools == nil {
		s.success("MCP server call completed (simulated)", nil)
		return s.done(nil)
	}

	args := cloneMap(s.node.Data.Arguments)
	if len(args) == 0 {
		args = map[string]any{"input": types.LastContent(r.exec.Context.Messages)}
	}
	call := ToolCall{Server: server, Tool: s.node.Data.Tool, Arguments: args}
	s.logs = append(s.logs, r.newLog(s.node.ID, LogToolCall, fmt.Sprintf("Calling tool: %s", call.Tool), map[string]any{
		"server":    server,
		"tool":      call.Tool,
		"arguments": cloneMap(args),
	}, 0))

	result, err := r.e.tools.CallTool(ctx, call)
	if err != nil {
		return s.failure(types.WrapError(err, types.ErrUpstreamError, "MCP server call failed"), types.ErrUpstreamError)
	}
	s.logs = append(s.logs, r.newLog(s.node.ID, LogToolResult, "Tool returned", map[string]any{
		"tool":   call.Tool,
		"result": result,
	}, s.elapsed()))

	s.success("MCP server call completed", map[string]any{
		"server":    server,
		"tool":      call.Tool,
		"arguments": args,
		"result":    result,
	})
	return s.done(result)
}

func (r *run) fileSearch(ctx context.Context, s *step) nodeResult {
	s.info("Searching files")

	query := s.node.Data.Query
	if query == "" {
		query = types.LastContent(r.exec.Context.Messages)
	}

	found, err := r.e.files.Search(ctx, query, s.node.Data.FileTypes)
	if err != nil {
		return s.failure(types.WrapError(err, types.ErrUpstreamError, "File search failed"), types.ErrUpstreamError)
	}

	s.success("File search completed", map[string]any{"filesFound": found.FilesFound})

	out := map[string]any{
		"query":      found.Query,
		"filesFound": found.FilesFound,
	}
	if len(found.FileTypes) > 0 {
		out["fileTypes"] = slices.Clone(found.FileTypes)
	}
	if len(found.Files) > 0 {
		out["files"] = slices.Clone(found.Files)
	}
	return s.done(out)
}
