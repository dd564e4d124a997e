// MockGenerator 是 workflow.TextGenerator 的测试模拟实现。
//
// 支持固定响应、自定义函数、延迟与错误注入。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

// ErrMockFailure 是 FailAfter 注入的默认错误
var ErrMockFailure = errors.New("mock generator failure")

// GeneratorCall 记录单次调用
type GeneratorCall struct {
	Model        string
	SystemPrompt string
	Messages     []types.Message
}

// GenerateFunc 自定义生成逻辑
type GenerateFunc func(ctx context.Context, model, systemPrompt string, messages []types.Message) (string, error)

// MockGenerator 是文本生成器的模拟实现
type MockGenerator struct {
	mu sync.Mutex

	response  string
	err       error
	fn        GenerateFunc
	delay     time.Duration
	failAfter int

	calls []GeneratorCall
}

var _ workflow.TextGenerator = (*MockGenerator)(nil)

// NewMockGenerator 创建新的 MockGenerator，默认回复 "Mock response"
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{response: "Mock response"}
}

// WithResponse 设置固定回复
func (m *MockGenerator) WithResponse(response string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 每次调用都返回 err
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 用 fn 生成回复，优先于 WithResponse
func (m *MockGenerator) WithFunc(fn GenerateFunc) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithDelay 每次调用前等待 d，ctx 取消时提前返回
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// FailAfter 前 n 次调用成功，之后返回 ErrMockFailure
func (m *MockGenerator) FailAfter(n int) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// Generate implements workflow.TextGenerator.
func (m *MockGenerator) Generate(ctx context.Context, model, systemPrompt string, messages []types.Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, GeneratorCall{
		Model:        model,
		SystemPrompt: systemPrompt,
		Messages:     append([]types.Message(nil), messages...),
	})
	n := len(m.calls)
	response, err, fn, delay, failAfter := m.response, m.err, m.fn, m.delay, m.failAfter
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if failAfter > 0 && n > failAfter {
		return "", ErrMockFailure
	}
	if err != nil {
		return "", err
	}
	if fn != nil {
		return fn(ctx, model, systemPrompt, messages)
	}
	return response, nil
}

// Calls 返回调用记录副本
func (m *MockGenerator) Calls() []GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GeneratorCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
