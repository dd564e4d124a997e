// MockToolCaller 是 workflow.ToolCaller 的测试模拟实现。
//
// 按 "server/tool" 注册结果或错误，并记录每次调用。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

// ToolFunc 工具执行函数类型
type ToolFunc func(ctx context.Context, call workflow.ToolCall) (any, error)

// MockToolCaller 是工具调用器的模拟实现
type MockToolCaller struct {
	mu sync.RWMutex

	funcs   map[string]ToolFunc
	results map[string]any
	errors  map[string]error

	calls []workflow.ToolCall

	defaultResult any
}

var _ workflow.ToolCaller = (*MockToolCaller)(nil)

// NewMockToolCaller 创建新的 MockToolCaller。未注册的工具返回 TOOL_NOT_FOUND
func NewMockToolCaller() *MockToolCaller {
	return &MockToolCaller{
		funcs:   make(map[string]ToolFunc),
		results: make(map[string]any),
		errors:  make(map[string]error),
	}
}

func key(server, tool string) string { return server + "/" + tool }

// WithResult 为 server/tool 注册固定结果
func (m *MockToolCaller) WithResult(server, tool string, result any) *MockToolCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key(server, tool)] = result
	return m
}

// WithError 为 server/tool 注册错误
func (m *MockToolCaller) WithError(server, tool string, err error) *MockToolCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key(server, tool)] = err
	return m
}

// WithFunc 为 server/tool 注册执行函数
func (m *MockToolCaller) WithFunc(server, tool string, fn ToolFunc) *MockToolCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[key(server, tool)] = fn
	return m
}

// WithDefaultResult 未注册的工具返回 result 而不是错误
func (m *MockToolCaller) WithDefaultResult(result any) *MockToolCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResult = result
	return m
}

// CallTool implements workflow.ToolCaller.
func (m *MockToolCaller) CallTool(ctx context.Context, call workflow.ToolCall) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	m.mu.RLock()
	k := key(call.Server, call.Tool)
	fn, hasFn := m.funcs[k]
	err, hasErr := m.errors[k]
	result, hasResult := m.results[k]
	def := m.defaultResult
	m.mu.RUnlock()

	switch {
	case hasFn:
		return fn(ctx, call)
	case hasErr:
		return nil, err
	case hasResult:
		return result, nil
	case def != nil:
		return def, nil
	}
	return nil, types.Errorf(types.ErrToolNotFound, "tool %s not registered", k)
}

// Calls 返回调用记录副本
func (m *MockToolCaller) Calls() []workflow.ToolCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]workflow.ToolCall(nil), m.calls...)
}
