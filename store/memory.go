package store

import (
	"context"
	"sync"

	"github.com/BaSui01/agentcanvas/workflow"
)

// Memory keeps everything in process. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	workflows  map[string]*workflow.Workflow
	executions map[string]*workflow.WorkflowExecution
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows:  make(map[string]*workflow.Workflow),
		executions: make(map[string]*workflow.WorkflowExecution),
	}
}

func (m *Memory) SaveWorkflow(_ context.Context, w *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[w.ID] = w.Clone()
	return nil
}

func (m *Memory) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[id]
	if !ok {
		return nil, workflowNotFound(id)
	}
	return w.Clone(), nil
}

func (m *Memory) ListWorkflows(context.Context) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	out := make([]*workflow.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		out = append(out, w.Clone())
	}
	m.mu.RUnlock()
	sortWorkflows(out)
	return out, nil
}

// DeleteWorkflow removes the workflow and its executions.
func (m *Memory) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return workflowNotFound(id)
	}
	delete(m.workflows, id)
	for eid, e := range m.executions {
		if e.WorkflowID == id {
			delete(m.executions, eid)
		}
	}
	return nil
}

func (m *Memory) SaveExecution(_ context.Context, e *workflow.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ID] = e.Clone()
	return nil
}

func (m *Memory) GetExecution(_ context.Context, id string) (*workflow.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, executionNotFound(id)
	}
	return e.Clone(), nil
}

func (m *Memory) ListExecutions(_ context.Context, workflowID string) ([]*workflow.WorkflowExecution, error) {
	m.mu.RLock()
	out := make([]*workflow.WorkflowExecution, 0)
	for _, e := range m.executions {
		if workflowID == "" || e.WorkflowID == workflowID {
			out = append(out, e.Clone())
		}
	}
	m.mu.RUnlock()
	sortExecutions(out)
	return out, nil
}

func (m *Memory) DeleteExecution(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[id]; !ok {
		return executionNotFound(id)
	}
	delete(m.executions, id)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
