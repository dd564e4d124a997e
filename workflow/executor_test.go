package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
)

// --- fakes ---

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string
	reply   func(model string, messages []types.Message) (string, error)
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, model, systemPrompt string, messages []types.Message) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, model)
	g.prompts = append(g.prompts, systemPrompt)
	g.mu.Unlock()
	if g.reply != nil {
		return g.reply(model, messages)
	}
	return "reply to " + types.LastContent(messages), nil
}

type fakeTools struct {
	calls  []ToolCall
	result any
	err    error
}

func (f *fakeTools) CallTool(_ context.Context, call ToolCall) (any, error) {
	f.calls = append(f.calls, call)
	return f.result, f.err
}

type denyGuardrails struct{ reason string }

func (d denyGuardrails) Check(context.Context, GuardrailType, string) (GuardrailVerdict, error) {
	return GuardrailVerdict{Passed: false, Reason: d.reason}, nil
}

type countingRecorder struct {
	mu         sync.Mutex
	executions []ExecutionStatus
	nodes      map[NodeType]int
}

func (c *countingRecorder) RecordExecution(_ string, status ExecutionStatus, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executions = append(c.executions, status)
}

func (c *countingRecorder) RecordNode(t NodeType, _ bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodes == nil {
		c.nodes = make(map[NodeType]int)
	}
	c.nodes[t]++
}

// --- fixtures ---

func n(id string, typ NodeType) Node {
	return Node{ID: id, Type: typ, Data: NodeData{Label: id}}
}

func c(src, dst, label string) Connection {
	return Connection{ID: src + "->" + dst, SourceID: src, TargetID: dst, Label: label}
}

func linear(nodes ...Node) *Workflow {
	w := &Workflow{ID: "wf", Name: "test", Nodes: nodes}
	for i := 0; i+1 < len(nodes); i++ {
		w.Connections = append(w.Connections, c(nodes[i].ID, nodes[i+1].ID, ""))
	}
	return w
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		i++
		return fmt.Sprintf("id-%d", i)
	}
}

func newTestExecutor(cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	base := []ExecutorOption{
		WithTextGenerator(&fakeGenerator{}),
		WithClock(clock.NewMock()),
		WithIDGenerator(sequentialIDs()),
	}
	return NewExecutor(cfg, zap.NewNop(), append(base, opts...)...)
}

func logsFor(exec *WorkflowExecution, nodeID string) []ExecutionLog {
	var out []ExecutionLog
	for _, l := range exec.Logs {
		if l.NodeID == nodeID {
			out = append(out, l)
		}
	}
	return out
}

func logTypes(logs []ExecutionLog) []LogType {
	out := make([]LogType, len(logs))
	for i, l := range logs {
		out[i] = l.Type
	}
	return out
}

func messages(logs []ExecutionLog) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Message
	}
	return out
}

// --- tests ---

func TestExecute_LinearAgentRun(t *testing.T) {
	gen := &fakeGenerator{}
	e := newTestExecutor(ExecutorConfig{}, WithTextGenerator(gen))
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	exec := e.Execute(context.Background(), w, "hello", nil)

	require.Equal(t, StatusCompleted, exec.Status)
	require.NotNil(t, exec.CompletedAt)
	assert.Equal(t, "wf", exec.WorkflowID)
	assert.Equal(t, "e", exec.CurrentNodeID)
	assert.Equal(t, "reply to hello", exec.Context.Variables["a"])
	require.Len(t, exec.Context.Messages, 2)
	assert.Equal(t, types.RoleAssistant, exec.Context.Messages[1].Role)
	assert.Equal(t, []string{"openai/gpt-4o"}, gen.calls)
	assert.Equal(t, []string{"You are a helpful assistant."}, gen.prompts)

	assert.Equal(t, []string{"Workflow execution started"}, messages(logsFor(exec, "s")))
	assert.Equal(t, []string{"Executing agent: a", "Agent response generated"}, messages(logsFor(exec, "a")))
	assert.Equal(t, []string{"Workflow execution completed"}, messages(logsFor(exec, "e")))
}

func TestExecute_AgentNodeOverridesDefaults(t *testing.T) {
	gen := &fakeGenerator{}
	e := newTestExecutor(ExecutorConfig{}, WithTextGenerator(gen))
	agent := n("a", NodeTypeAgent)
	agent.Data.Model = "anthropic/claude"
	agent.Data.SystemPrompt = "Be brief."
	w := linear(n("s", NodeTypeStart), agent, n("e", NodeTypeEnd))

	exec := e.Execute(context.Background(), w, "q", nil)

	require.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, []string{"anthropic/claude"}, gen.calls)
	assert.Equal(t, []string{"Be brief."}, gen.prompts)
}

func TestExecute_MissingStartNode(t *testing.T) {
	e := newTestExecutor(ExecutorConfig{})
	w := linear(n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	exec := e.Execute(context.Background(), w, "x", nil)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrMissingStartNode, exec.ErrorCode)
	require.NotNil(t, exec.CompletedAt)
	require.Len(t, exec.Logs, 1)
	assert.Equal(t, SystemNodeID, exec.Logs[0].NodeID)
	assert.Equal(t, LogError, exec.Logs[0].Type)
	assert.Empty(t, exec.Context.Variables)
}

func TestExecute_NilWorkflow(t *testing.T) {
	e := newTestExecutor(ExecutorConfig{})
	exec := e.Execute(context.Background(), nil, "x", nil)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrMissingStartNode, exec.ErrorCode)
}

func TestExecute_AgentFailureIsContained(t *testing.T) {
	gen := &fakeGenerator{reply: func(string, []types.Message) (string, error) {
		return "", errors.New("model unavailable")
	}}
	e := newTestExecutor(ExecutorConfig{}, WithTextGenerator(gen))
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("b", NodeTypeAgent), n("e", NodeTypeEnd))

	exec := e.Execute(context.Background(), w, "x", nil)

	require.Equal(t, StatusFailed, exec.Status)
	require.NotNil(t, exec.CompletedAt)
	assert.Equal(t, types.ErrUpstreamError, exec.ErrorCode)
	assert.Equal(t, "Agent execution failed: model unavailable", exec.Error)

	aLogs := logsFor(exec, "a")
	require.NotEmpty(t, aLogs)
	last := aLogs[len(aLogs)-1]
	assert.Equal(t, LogError, last.Type)
	assert.Equal(t, exec.Error, last.Message)
	assert.Empty(t, logsFor(exec, "b"), "nothing runs after a failed node")
	assert.NotContains(t, exec.Context.Variables, "a")
}

func TestExecute_NoGeneratorFailsAgentNode(t *testing.T) {
	e := NewExecutor(ExecutorConfig{}, nil, WithClock(clock.NewMock()))
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	exec := e.Execute(context.Background(), w, "x", nil)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrUpstreamError, exec.ErrorCode)
}

func TestExecute_ConditionBranches(t *testing.T) {
	build := func(cond string) *Workflow {
		cn := n("cond", NodeTypeCondition)
		cn.Data.Condition = cond
		return &Workflow{
			ID: "wf",
			Nodes: []Node{
				n("s", NodeTypeStart), cn, n("agentA", NodeTypeAgent), n("agentB", NodeTypeAgent), n("e", NodeTypeEnd),
			},
			Connections: []Connection{
				c("s", "cond", ""),
				c("cond", "agentB", "false"),
				c("cond", "agentA", "true"),
				c("agentA", "e", ""),
				c("agentB", "e", ""),
			},
		}
	}

	tests := []struct {
		name   string
		cond   string
		input  string
		taken  string
		skiped string
	}{
		{"true branch", `input == "yes"`, "yes", "agentA", "agentB"},
		{"false branch", `input == "yes"`, "no", "agentB", "agentA"},
		{"empty condition is true", ``, "anything", "agentA", "agentB"},
		{"literal false", `false`, "x", "agentB", "agentA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(ExecutorConfig{})
			exec := e.Execute(context.Background(), build(tt.cond), tt.input, nil)

			require.Equal(t, StatusCompleted, exec.Status)
			assert.NotEmpty(t, logsFor(exec, tt.taken))
			assert.Empty(t, logsFor(exec, tt.skiped))
		})
	}
}

func TestExecute_ConditionFallsBackToFirstOutgoing(t *testing.T) {
	cn := n("cond", NodeTypeCondition)
	cn.Data.Condition = "false"
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{n("s", NodeTypeStart), cn, n("x", NodeTypeAgent), n("e", NodeTypeEnd)},
		Connections: []Connection{
			c("s", "cond", ""),
			c("cond", "x", "maybe"),
			c("x", "e", ""),
		},
	}
	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)

	require.Equal(t, StatusCompleted, exec.Status)
	assert.NotEmpty(t, logsFor(exec, "x"))
	assert.Contains(t, messages(logsFor(exec, "cond")), "Condition evaluated to: false")
}

func TestExecute_ConditionUsesNodeOutputs(t *testing.T) {
	gen := &fakeGenerator{reply: func(string, []types.Message) (string, error) { return "technical", nil }}
	cn := n("cond", NodeTypeCondition)
	cn.Data.Condition = `classifier === 'technical' && variables.classifier == last`
	w := &Workflow{
		ID: "wf",
		Nodes: []Node{
			n("s", NodeTypeStart), n("classifier", NodeTypeAgent), cn,
			n("tech", NodeTypeAgent), n("other", NodeTypeAgent), n("e", NodeTypeEnd),
		},
		Connections: []Connection{
			c("s", "classifier", ""),
			c("classifier", "cond", ""),
			c("cond", "tech", "true"),
			c("cond", "other", "false"),
			c("tech", "e", ""),
			c("other", "e", ""),
		},
	}

	exec := newTestExecutor(ExecutorConfig{}, WithTextGenerator(gen)).Execute(context.Background(), w, "help", nil)

	require.Equal(t, StatusCompleted, exec.Status)
	assert.NotEmpty(t, logsFor(exec, "tech"))
	assert.Empty(t, logsFor(exec, "other"))
}

func TestExecute_InvalidConditionFails(t *testing.T) {
	cn := n("cond", NodeTypeCondition)
	cn.Data.Condition = `(input ==`
	w := linear(n("s", NodeTypeStart), cn, n("e", NodeTypeEnd))

	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrConditionInvalid, exec.ErrorCode)
	assert.True(t, strings.HasPrefix(exec.Error, "Condition evaluation failed"))
}

func TestExecute_GuardrailVerdicts(t *testing.T) {
	g := n("g", NodeTypeGuardrail)
	g.Data.GuardrailType = GuardrailPII
	w := linear(n("s", NodeTypeStart), g, n("e", NodeTypeEnd))

	passed := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "fine", nil)
	require.Equal(t, StatusCompleted, passed.Status)
	assert.Equal(t, []string{"Checking guardrail: pii", "Guardrail check passed"}, messages(logsFor(passed, "g")))

	failed := newTestExecutor(ExecutorConfig{}, WithGuardrails(denyGuardrails{reason: "email address detected"})).
		Execute(context.Background(), w, "me@example.com", nil)
	require.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, types.ErrGuardrailViolated, failed.ErrorCode)
	assert.Equal(t, "Guardrail check failed: email address detected", failed.Error)
}

func TestExecute_GuardrailDefaultsToJailbreak(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("g", NodeTypeGuardrail), n("e", NodeTypeEnd))
	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)
	assert.Contains(t, messages(logsFor(exec, "g")), "Checking guardrail: jailbreak")
}

func TestExecute_AutoApprovalPausesOnce(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("ok", NodeTypeUserApproval), n("e", NodeTypeEnd))

	var statuses []ExecutionStatus
	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", func(x *WorkflowExecution) {
		statuses = append(statuses, x.Status)
	})

	require.Equal(t, StatusCompleted, exec.Status)
	assert.Contains(t, statuses, StatusPaused)
	assert.Equal(t, StatusCompleted, statuses[len(statuses)-1])
	assert.Equal(t,
		[]string{"Pausing for user approval", "User approval received (simulated)"},
		messages(logsFor(exec, "ok")),
	)
}

func TestExecute_MCPNode(t *testing.T) {
	m := n("m", NodeTypeMCP)
	m.Data.MCPServer = "Filesystem"
	w := linear(n("s", NodeTypeStart), m, n("e", NodeTypeEnd))

	t.Run("simulated without a tool caller", func(t *testing.T) {
		exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)
		require.Equal(t, StatusCompleted, exec.Status)
		assert.Contains(t, messages(logsFor(exec, "m")), "MCP server call completed (simulated)")
	})

	t.Run("calls the tool with the last message", func(t *testing.T) {
		tools := &fakeTools{result: map[string]any{"content": "file body"}}
		exec := newTestExecutor(ExecutorConfig{}, WithToolCaller(tools)).Execute(context.Background(), w, "readme.md", nil)

		require.Equal(t, StatusCompleted, exec.Status)
		require.Len(t, tools.calls, 1)
		assert.Equal(t, "Filesystem", tools.calls[0].Server)
		assert.Equal(t, map[string]any{"input": "readme.md"}, tools.calls[0].Arguments)
		assert.Equal(t, map[string]any{"content": "file body"}, exec.Context.Variables["m"])

		logs := logsFor(exec, "m")
		assert.Equal(t, []LogType{LogInfo, LogToolCall, LogToolResult, LogSuccess}, logTypes(logs))
		assert.Equal(t, map[string]any{
			"server":    "Filesystem",
			"tool":      "",
			"arguments": map[string]any{"input": "readme.md"},
		}, logs[1].Data)
		assert.Equal(t, map[string]any{"content": "file body"}, logs[2].Data["result"])
	})

	t.Run("tool failure fails the run", func(t *testing.T) {
		tools := &fakeTools{err: types.NewError(types.ErrToolNotFound, "tool nope not found")}
		exec := newTestExecutor(ExecutorConfig{}, WithToolCaller(tools)).Execute(context.Background(), w, "", nil)

		assert.Equal(t, StatusFailed, exec.Status)
		assert.Equal(t, types.ErrToolNotFound, exec.ErrorCode)
		assert.Equal(t, []LogType{LogInfo, LogToolCall, LogError}, logTypes(logsFor(exec, "m")))
	})
}

func TestExecute_FileSearchAndUnknownTypes(t *testing.T) {
	fs := n("fs", NodeTypeFileSearch)
	fs.Data.Query = "invoices"
	w := linear(n("s", NodeTypeStart), fs, n("odd", NodeType("webhook")), n("e", NodeTypeEnd))

	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)

	require.Equal(t, StatusCompleted, exec.Status)
	out, ok := exec.Context.Variables["fs"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, out["filesFound"])
	assert.Equal(t, "invoices", out["query"])
	assert.Equal(t, []string{"Skipping node type: webhook"}, messages(logsFor(exec, "odd")))
}

func TestExecute_DanglingPolicy(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent))

	failed := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, types.ErrGraphExhausted, failed.ErrorCode)
	assert.Equal(t, "a", failed.Logs[len(failed.Logs)-1].NodeID)

	completed := newTestExecutor(ExecutorConfig{DanglingPolicy: DanglingComplete}).Execute(context.Background(), w, "", nil)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
}

func TestExecute_ConnectionToMissingNodeIsIgnored(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))
	w.Connections = append([]Connection{c("s", "ghost", "")}, w.Connections...)

	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)

	assert.Equal(t, StatusCompleted, exec.Status)
}

func TestExecute_StepLimitStopsCycles(t *testing.T) {
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{n("s", NodeTypeStart), n("a", NodeTypeAgent), n("b", NodeTypeAgent)},
		Connections: []Connection{
			c("s", "a", ""), c("a", "b", ""), c("b", "a", ""),
		},
	}

	exec := newTestExecutor(ExecutorConfig{MaxSteps: 7}).Execute(context.Background(), w, "", nil)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrStepLimitExceeded, exec.ErrorCode)
	assert.Equal(t, "Step limit of 7 exceeded", exec.Error)
}

func TestExecute_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{reply: func(string, []types.Message) (string, error) {
		cancel()
		return "done", nil
	}}
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("b", NodeTypeAgent), n("e", NodeTypeEnd))

	exec := newTestExecutor(ExecutorConfig{}, WithTextGenerator(gen)).Execute(ctx, w, "", nil)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrExecutionCancelled, exec.ErrorCode)
	assert.Equal(t, "done", exec.Context.Variables["a"])
	assert.Equal(t, "b", exec.Logs[len(exec.Logs)-1].NodeID)
}

func TestExecute_PanicInUpdateSinkIsRecovered(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	var exec *WorkflowExecution
	require.NotPanics(t, func() {
		exec = newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", func(*WorkflowExecution) {
			panic("sink exploded")
		})
	})

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrInternalError, exec.ErrorCode)
	last := exec.Logs[len(exec.Logs)-1]
	assert.Equal(t, SystemNodeID, last.NodeID)
	assert.Equal(t, "sink exploded", last.Message)
}

func TestExecute_CrashIsReportedToSink(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	calls := 0
	var updates []*WorkflowExecution
	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", func(x *WorkflowExecution) {
		calls++
		if calls == 1 {
			panic("sink exploded")
		}
		updates = append(updates, x)
	})

	require.Equal(t, StatusFailed, exec.Status)
	require.Len(t, updates, 1, "the crash is reported once after recovery")
	assert.Equal(t, StatusFailed, updates[0].Status)
	assert.Equal(t, types.ErrInternalError, updates[0].ErrorCode)
	assert.Equal(t, "sink exploded", updates[0].Logs[len(updates[0].Logs)-1].Message)
}

func TestExecute_PanicInHandlerFailsNode(t *testing.T) {
	gen := &fakeGenerator{reply: func(string, []types.Message) (string, error) { panic("boom") }}
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	exec := newTestExecutor(ExecutorConfig{}, WithTextGenerator(gen)).Execute(context.Background(), w, "", nil)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrInternalError, exec.ErrorCode)
	assert.Equal(t, "a", exec.Logs[len(exec.Logs)-1].NodeID)
}

func TestExecute_UpdatesAreSnapshots(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	var updates []*WorkflowExecution
	exec := newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", func(x *WorkflowExecution) {
		updates = append(updates, x)
	})

	// entering a, after a, completion
	require.Len(t, updates, 3)
	assert.Equal(t, "a", updates[0].CurrentNodeID)
	assert.Len(t, updates[0].Logs, 1)
	assert.Equal(t, StatusRunning, updates[1].Status)
	assert.Equal(t, StatusCompleted, updates[2].Status)

	updates[2].Logs[0].Message = "tampered"
	assert.Equal(t, "Workflow execution started", exec.Logs[0].Message)
}

func TestExecute_DoesNotMutateWorkflow(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))
	before := w.Clone()

	newTestExecutor(ExecutorConfig{}).Execute(context.Background(), w, "", nil)

	assert.Equal(t, before, w)
}

func TestExecute_LogDurations(t *testing.T) {
	mock := clock.NewMock()
	gen := &fakeGenerator{reply: func(string, []types.Message) (string, error) {
		mock.Add(1500 * time.Millisecond)
		return "ok", nil
	}}
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	exec := newTestExecutor(ExecutorConfig{}, WithTextGenerator(gen), WithClock(mock)).Execute(context.Background(), w, "", nil)

	aLogs := logsFor(exec, "a")
	require.Len(t, aLogs, 2)
	assert.Equal(t, int64(1500), aLogs[1].Duration)
	assert.Equal(t, mock.Now(), *exec.CompletedAt)
}

func TestSuspendAndResume(t *testing.T) {
	w := linear(n("s", NodeTypeStart), n("approve", NodeTypeUserApproval), n("a", NodeTypeAgent), n("e", NodeTypeEnd))
	e := newTestExecutor(ExecutorConfig{ApprovalMode: ApprovalSuspend})

	paused := e.Execute(context.Background(), w, "draft", nil)
	require.Equal(t, StatusPaused, paused.Status)
	assert.Equal(t, "approve", paused.AwaitingNodeID)
	assert.Nil(t, paused.CompletedAt)
	assert.Empty(t, logsFor(paused, "a"))
	for _, l := range paused.Logs {
		assert.Contains(t, []LogType{LogInfo, LogSuccess, LogError, LogToolCall, LogToolResult}, l.Type)
	}
	approveLogs := logsFor(paused, "approve")
	require.NotEmpty(t, approveLogs)
	assert.Equal(t, LogInfo, approveLogs[len(approveLogs)-1].Type)
	assert.Equal(t, "Awaiting user approval", approveLogs[len(approveLogs)-1].Message)

	t.Run("approve continues after the node", func(t *testing.T) {
		done, err := e.Resume(context.Background(), w, paused, ApprovalDecision{Approved: true, Comment: "lgtm", DecidedBy: "alice"}, nil)
		require.NoError(t, err)

		assert.Equal(t, StatusCompleted, done.Status)
		assert.Empty(t, done.AwaitingNodeID)
		assert.Equal(t, map[string]any{"approved": true, "comment": "lgtm", "approvedBy": "alice"}, done.Context.Variables["approve"])
		assert.NotEmpty(t, logsFor(done, "a"))
		assert.Equal(t, StatusPaused, paused.Status, "the input record is not modified")
	})

	t.Run("reject fails the run", func(t *testing.T) {
		done, err := e.Resume(context.Background(), w, paused, ApprovalDecision{Approved: false, Comment: "too long"}, nil)
		require.NoError(t, err)

		assert.Equal(t, StatusFailed, done.Status)
		assert.Equal(t, types.ErrApprovalRejected, done.ErrorCode)
		assert.Equal(t, "User approval rejected: too long", done.Error)
		assert.Empty(t, logsFor(done, "a"))
	})

	t.Run("structural errors", func(t *testing.T) {
		_, err := e.Resume(context.Background(), w, &WorkflowExecution{Status: StatusCompleted}, ApprovalDecision{Approved: true}, nil)
		assert.True(t, types.IsErrorCode(err, types.ErrNotAwaitingApproval))

		other := linear(n("s", NodeTypeStart), n("e", NodeTypeEnd))
		_, err = e.Resume(context.Background(), other, paused, ApprovalDecision{Approved: true}, nil)
		assert.True(t, types.IsErrorCode(err, types.ErrNodeNotFound))
	})
}

func TestResume_StepBudgetSpansResumes(t *testing.T) {
	// s -> ap -> a -> ap 的审批环
	w := &Workflow{
		ID:    "wf",
		Nodes: []Node{n("s", NodeTypeStart), n("ap", NodeTypeUserApproval), n("a", NodeTypeAgent)},
		Connections: []Connection{
			c("s", "ap", ""), c("ap", "a", ""), c("a", "ap", ""),
		},
	}
	e := newTestExecutor(ExecutorConfig{MaxSteps: 5, ApprovalMode: ApprovalSuspend})

	exec := e.Execute(context.Background(), w, "", nil)
	require.Equal(t, StatusPaused, exec.Status)
	assert.Equal(t, 2, exec.Steps, "start and ap")

	resumes := 0
	for exec.Status == StatusPaused && resumes < 10 {
		var err error
		exec, err = e.Resume(context.Background(), w, exec, ApprovalDecision{Approved: true}, nil)
		require.NoError(t, err)
		resumes++
	}

	// 每段各自计数时这个环永远不会触发上限
	assert.Equal(t, 2, resumes)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, types.ErrStepLimitExceeded, exec.ErrorCode)
	assert.Equal(t, 5, exec.Steps)
	assert.Equal(t, "ap", exec.Logs[len(exec.Logs)-1].NodeID)
}

func TestExecute_TracingAndMetrics(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	rec := &countingRecorder{}

	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("g", NodeTypeGuardrail), n("e", NodeTypeEnd))
	exec := newTestExecutor(ExecutorConfig{}, WithTracerProvider(tp), WithRecorder(rec)).
		Execute(context.Background(), w, "", nil)
	require.Equal(t, StatusCompleted, exec.Status)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"workflow.node", "workflow.node", "workflow.execute"}, names)
	assert.Equal(t, []ExecutionStatus{StatusCompleted}, rec.executions)
	assert.Equal(t, map[NodeType]int{NodeTypeAgent: 1, NodeTypeGuardrail: 1}, rec.nodes)
}

func TestExecute_ConcurrentRunsShareExecutor(t *testing.T) {
	e := NewExecutor(ExecutorConfig{}, nil, WithTextGenerator(&fakeGenerator{}))
	w := linear(n("s", NodeTypeStart), n("a", NodeTypeAgent), n("e", NodeTypeEnd))

	var wg sync.WaitGroup
	results := make([]*WorkflowExecution, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Execute(context.Background(), w, fmt.Sprintf("in-%d", i), nil)
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i, r := range results {
		require.Equal(t, StatusCompleted, r.Status)
		assert.Equal(t, fmt.Sprintf("reply to in-%d", i), r.Context.Variables["a"])
		ids[r.ID] = true
	}
	assert.Len(t, ids, len(results))
}
