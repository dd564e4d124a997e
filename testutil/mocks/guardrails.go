package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentcanvas/workflow"
)

// GuardrailCall 记录单次检查
type GuardrailCall struct {
	Type    workflow.GuardrailType
	Content string
}

// MockGuardrails 是 workflow.GuardrailChecker 的模拟实现，默认全部通过
type MockGuardrails struct {
	mu       sync.Mutex
	verdicts map[workflow.GuardrailType]workflow.GuardrailVerdict
	err      error
	calls    []GuardrailCall
}

var _ workflow.GuardrailChecker = (*MockGuardrails)(nil)

// NewMockGuardrails 创建新的 MockGuardrails
func NewMockGuardrails() *MockGuardrails {
	return &MockGuardrails{verdicts: make(map[workflow.GuardrailType]workflow.GuardrailVerdict)}
}

// Block 让 typ 类型的检查失败
func (m *MockGuardrails) Block(typ workflow.GuardrailType, reason string) *MockGuardrails {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[typ] = workflow.GuardrailVerdict{Passed: false, Reason: reason, Findings: []string{reason}}
	return m
}

// WithError 每次检查返回 err
func (m *MockGuardrails) WithError(err error) *MockGuardrails {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Check implements workflow.GuardrailChecker.
func (m *MockGuardrails) Check(_ context.Context, typ workflow.GuardrailType, content string) (workflow.GuardrailVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, GuardrailCall{Type: typ, Content: content})
	if m.err != nil {
		return workflow.GuardrailVerdict{}, m.err
	}
	if v, ok := m.verdicts[typ]; ok {
		return v, nil
	}
	return workflow.GuardrailVerdict{Passed: true}, nil
}

// Calls 返回检查记录副本
func (m *MockGuardrails) Calls() []GuardrailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GuardrailCall(nil), m.calls...)
}
