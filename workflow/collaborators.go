package workflow

import (
	"context"
	"time"

	"github.com/BaSui01/agentcanvas/types"
)

// TextGenerator produces the reply of an agent node.
type TextGenerator interface {
	Generate(ctx context.Context, model, systemPrompt string, messages []types.Message) (string, error)
}

// ToolCall names one tool invocation made by an mcp node.
type ToolCall struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCaller executes tool calls for mcp nodes.
type ToolCaller interface {
	CallTool(ctx context.Context, call ToolCall) (any, error)
}

// GuardrailVerdict is the outcome of one guardrail check.
type GuardrailVerdict struct {
	Passed   bool     `json:"passed"`
	Reason   string   `json:"reason,omitempty"`
	Findings []string `json:"findings,omitempty"`
}

// GuardrailChecker runs the guardrail selected by a guardrail node against
// the latest message content.
type GuardrailChecker interface {
	Check(ctx context.Context, guardrailType GuardrailType, content string) (GuardrailVerdict, error)
}

// ConditionEvaluator decides the branch taken by a condition node.
type ConditionEvaluator interface {
	Evaluate(expression string, vars map[string]any) (bool, error)
}

// FileSearchResult is what a file-search node records as its output.
type FileSearchResult struct {
	Query      string   `json:"query"`
	FileTypes  []string `json:"fileTypes,omitempty"`
	FilesFound int      `json:"filesFound"`
	Files      []string `json:"files,omitempty"`
}

// FileSearcher backs file-search nodes.
type FileSearcher interface {
	Search(ctx context.Context, query string, fileTypes []string) (FileSearchResult, error)
}

// Recorder receives execution metrics.
type Recorder interface {
	RecordExecution(workflowID string, status ExecutionStatus, duration time.Duration)
	RecordNode(nodeType NodeType, success bool, duration time.Duration)
}

// UpdateFunc observes an execution after each step. It receives a copy, so
// it may keep or mutate the value freely.
type UpdateFunc func(execution *WorkflowExecution)

type passGuardrails struct{}

func (passGuardrails) Check(context.Context, GuardrailType, string) (GuardrailVerdict, error) {
	return GuardrailVerdict{Passed: true}, nil
}

// stubFileSearcher reports a fixed hit count without touching any index.
type stubFileSearcher struct{}

func (stubFileSearcher) Search(_ context.Context, query string, fileTypes []string) (FileSearchResult, error) {
	return FileSearchResult{Query: query, FileTypes: fileTypes, FilesFound: 5}, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordExecution(string, ExecutionStatus, time.Duration) {}
func (nopRecorder) RecordNode(NodeType, bool, time.Duration)              {}
