package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("mcp-%d", n)
	}
}

func newTestRegistry(opts ...Option) (*Registry, *clock.Mock) {
	clk := clock.NewMock()
	opts = append([]Option{WithClock(clk), WithIDGenerator(sequentialIDs())}, opts...)
	return NewRegistry(nil, opts...), clk
}

func connect(t *testing.T, r *Registry, name string) *Server {
	t.Helper()
	s, err := r.ConnectServer(context.Background(), ConnectRequest{Name: name, URL: "http://localhost:3000", Protocol: ProtocolHTTP})
	require.NoError(t, err)
	return s
}

func toolNames(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func TestRegistry_ConnectDiscoversTools(t *testing.T) {
	r, clk := newTestRegistry()

	fs := connect(t, r, "Filesystem")
	assert.Equal(t, "mcp-1", fs.ID)
	assert.Equal(t, StatusConnected, fs.Status)
	assert.Equal(t, clk.Now(), fs.ConnectedAt)
	assert.Len(t, fs.Capabilities, 3)
	assert.Equal(t, []string{"read_file", "write_file", "list_directory"}, toolNames(r.ToolsByServer(fs.ID)))

	mem := connect(t, r, "Memory")
	assert.Equal(t, []string{"store_memory", "recall_memory", "create_relation"}, toolNames(r.ToolsByServer(mem.ID)))

	other := connect(t, r, "Custom")
	assert.Empty(t, r.ToolsByServer(other.ID))

	assert.Len(t, r.Servers(), 3)
	assert.Equal(t, []string{
		"create_relation", "list_directory", "read_file", "recall_memory", "store_memory", "write_file",
	}, toolNames(r.AllTools()))
}

func TestRegistry_ConnectValidation(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	_, err := r.ConnectServer(ctx, ConnectRequest{URL: "x"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
	_, err = r.ConnectServer(ctx, ConnectRequest{Name: "x", URL: "x", Protocol: "grpc"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	s, err := r.ConnectServer(ctx, ConnectRequest{Name: "x", URL: "x"})
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP, s.Protocol)
}

func TestRegistry_Disconnect(t *testing.T) {
	r, _ := newTestRegistry()
	fs := connect(t, r, "Filesystem")

	require.NoError(t, r.DisconnectServer(fs.ID))
	got, ok := r.Server(fs.ID)
	require.True(t, ok)
	assert.Equal(t, StatusDisconnected, got.Status)
	assert.Empty(t, r.ToolsByServer(fs.ID))
	assert.Empty(t, r.AllTools())

	_, err := r.CallTool(context.Background(), "read_file", map[string]any{"path": "/a"})
	assert.EqualError(t, err, "[TOOL_NOT_FOUND] Tool read_file not found")

	_, err = r.CallServerTool(context.Background(), fs.ID, "read_file", map[string]any{"path": "/a"})
	assert.EqualError(t, err, "[UPSTREAM_ERROR] MCP server not connected")

	assert.True(t, types.IsErrorCode(r.DisconnectServer("nope"), types.ErrToolNotFound))
}

func TestRegistry_CallToolResponses(t *testing.T) {
	r, _ := newTestRegistry()
	connect(t, r, "Filesystem")
	connect(t, r, "Memory")
	ctx := context.Background()

	tests := []struct {
		tool string
		args map[string]any
		want any
	}{
		{"read_file", map[string]any{"path": "/etc/hosts"},
			map[string]any{"content": "File content from MCP server", "mimeType": "text/plain"}},
		{"write_file", map[string]any{"path": "/tmp/a", "content": "x"},
			map[string]any{"success": true, "path": "/tmp/a"}},
		{"list_directory", map[string]any{"path": "/"},
			map[string]any{"files": []string{"file1.txt", "file2.txt", "subdirectory/"}}},
		{"store_memory", map[string]any{"key": "k", "value": "v", "metadata": map[string]any{"a": 1}},
			map[string]any{"success": true, "key": "k"}},
		{"create_relation", map[string]any{"from": "Alice", "relation": "knows", "to": "Bob"},
			map[string]any{"success": true, "relation": "Alice -> knows -> Bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got, err := r.CallTool(ctx, tt.tool, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := r.CallTool(ctx, "recall_memory", map[string]any{"query": "q"})
	require.NoError(t, err)
	results := got.(map[string]any)["results"].([]map[string]any)
	require.Len(t, results, 2)
	assert.Equal(t, 0.95, results[0]["relevance"])
}

func TestRegistry_ArgumentValidation(t *testing.T) {
	r, _ := newTestRegistry()
	connect(t, r, "Filesystem")
	ctx := context.Background()

	_, err := r.CallTool(ctx, "write_file", map[string]any{"path": "/tmp/a"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrToolValidation))
	assert.Contains(t, err.Error(), "content")

	_, err = r.CallTool(ctx, "read_file", map[string]any{"path": 42})
	assert.True(t, types.IsErrorCode(err, types.ErrToolValidation))

	_, err = r.CallTool(ctx, "read_file", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrToolValidation))
}

func TestRegistry_UnknownTool(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.CallTool(context.Background(), "delete_everything", nil)
	assert.EqualError(t, err, "[TOOL_NOT_FOUND] Tool delete_everything not found")
}

func TestRegistry_CancelledContext(t *testing.T) {
	r, _ := newTestRegistry()
	s := connect(t, r, "Filesystem")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.CallServerTool(ctx, s.ID, "read_file", map[string]any{"path": "/"})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingInvoker struct {
	mu   sync.Mutex
	fail bool
}

func (f *failingInvoker) set(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *failingInvoker) Invoke(ctx context.Context, s Server, tool string, args map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return SimulatedInvoker{}.Invoke(ctx, s, tool, args)
}

func TestRegistry_CircuitBreaker(t *testing.T) {
	inv := &failingInvoker{fail: true}
	r, clk := newTestRegistry(
		WithInvoker(inv),
		WithBreakerConfig(BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute, HalfOpenMaxProbes: 1, SuccessThreshold: 1}),
	)
	s := connect(t, r, "Filesystem")
	ctx := context.Background()
	args := map[string]any{"path": "/"}

	for i := 0; i < 2; i++ {
		_, err := r.CallServerTool(ctx, s.ID, "read_file", args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	}
	assert.Equal(t, CircuitOpen, r.BreakerStates()[s.ID])

	_, err := r.CallServerTool(ctx, s.ID, "read_file", args)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "circuit open")

	inv.set(false)
	clk.Add(time.Minute)
	_, err = r.CallServerTool(ctx, s.ID, "read_file", args)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, r.BreakerStates()[s.ID])
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewMock()
	b := newBreaker("s", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second, HalfOpenMaxProbes: 2, SuccessThreshold: 2}, clk, zap.NewNop())

	b.recordFailure()
	assert.Equal(t, CircuitOpen, b.current())
	clk.Add(time.Second)
	require.NoError(t, b.allow())
	assert.Equal(t, CircuitHalfOpen, b.current())
	require.NoError(t, b.allow())
	assert.Error(t, b.allow(), "probe budget spent")

	b.recordFailure()
	assert.Equal(t, CircuitOpen, b.current())
	assert.Equal(t, "open", b.current().String())
}

func TestNodeCaller(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves by name and defaults to first tool", func(t *testing.T) {
		r, _ := newTestRegistry()
		connect(t, r, "Filesystem")
		c := NewNodeCaller(r, false)

		got, err := c.CallTool(ctx, workflow.ToolCall{Server: "filesystem", Arguments: map[string]any{"input": "/etc/hosts"}})
		require.NoError(t, err)
		assert.Equal(t, "File content from MCP server", got.(map[string]any)["content"])
	})

	t.Run("unknown server without auto connect", func(t *testing.T) {
		r, _ := newTestRegistry()
		_, err := NewNodeCaller(r, false).CallTool(ctx, workflow.ToolCall{Server: "database-server"})
		assert.True(t, types.IsErrorCode(err, types.ErrToolNotFound))
	})

	t.Run("auto connects", func(t *testing.T) {
		r, _ := newTestRegistry()
		c := NewNodeCaller(r, true)

		got, err := c.CallTool(ctx, workflow.ToolCall{Server: "database-server", Arguments: map[string]any{"input": "sales?"}})
		require.NoError(t, err)
		assert.Equal(t, 2, got.(map[string]any)["rowCount"])

		_, err = c.CallTool(ctx, workflow.ToolCall{Server: "database-server", Arguments: map[string]any{"input": "again"}})
		require.NoError(t, err)
		require.Len(t, r.Servers(), 1)
		assert.Equal(t, ProtocolStdio, r.Servers()[0].Protocol)
	})

	t.Run("server without tools", func(t *testing.T) {
		r, _ := newTestRegistry()
		connect(t, r, "Custom")
		_, err := NewNodeCaller(r, false).CallTool(ctx, workflow.ToolCall{Server: "Custom"})
		assert.EqualError(t, err, "[TOOL_NOT_FOUND] MCP server Custom exposes no tools")
	})

	t.Run("explicit tool keeps arguments", func(t *testing.T) {
		r, _ := newTestRegistry()
		connect(t, r, "web-search")
		got, err := NewNodeCaller(r, false).CallTool(ctx, workflow.ToolCall{
			Server: "web-search", Tool: "web_search", Arguments: map[string]any{"query": "go", "limit": 3},
		})
		require.NoError(t, err)
		assert.Contains(t, got.(map[string]any)["results"].([]map[string]any)[0]["snippet"], "go")
	})
}

func TestNodeCaller_DrivesMCPNode(t *testing.T) {
	r, _ := newTestRegistry()
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "s", Type: workflow.NodeTypeStart, Data: workflow.NodeData{Label: "s"}},
			{ID: "m", Type: workflow.NodeTypeMCP, Data: workflow.NodeData{Label: "m", MCPServer: "Memory", Tool: "recall_memory",
				Arguments: map[string]any{"query": "prefs"}}},
			{ID: "e", Type: workflow.NodeTypeEnd, Data: workflow.NodeData{Label: "e"}},
		},
		Connections: []workflow.Connection{
			{ID: "c1", SourceID: "s", TargetID: "m"},
			{ID: "c2", SourceID: "m", TargetID: "e"},
		},
	}
	exec := workflow.NewExecutor(workflow.ExecutorConfig{}, nil, workflow.WithToolCaller(NewNodeCaller(r, true))).
		Execute(context.Background(), w, "hi", nil)

	require.Equal(t, workflow.StatusCompleted, exec.Status, exec.Error)
	assert.Contains(t, exec.Context.Variables, "m")
}
