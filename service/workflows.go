package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/history"
)

// CreateWorkflowRequest describes a new workflow.
type CreateWorkflowRequest struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	Nodes       []workflow.Node       `json:"nodes"`
	Connections []workflow.Connection `json:"connections"`
}

// UpdateWorkflowRequest changes workflow metadata. Nil fields are kept.
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
}

// CreateWorkflow stores a new workflow at version 1. Nodes and connections
// follow the import rules.
func (s *Service) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (w *workflow.Workflow, err error) {
	defer func() { s.ops.RecordOperation("create_workflow", err == nil) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	doc := workflow.Document{
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	}
	if err := doc.Validate(); err != nil {
		return nil, types.WrapError(err, types.ErrInvalidRequest, "invalid workflow")
	}
	now := s.clock.Now()
	w = &workflow.Workflow{
		ID:          s.newID(),
		Name:        req.Name,
		Description: req.Description,
		Nodes:       workflow.CloneNodes(req.Nodes),
		Connections: workflow.CloneConnections(req.Connections),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if w.Nodes == nil {
		w.Nodes = []workflow.Node{}
	}
	if w.Connections == nil {
		w.Connections = []workflow.Connection{}
	}
	return s.insert(ctx, w)
}

// CreateFromTemplate instantiates a built-in template. An empty name keeps
// the template's name.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID, name string) (w *workflow.Workflow, err error) {
	defer func() { s.ops.RecordOperation("create_from_template", err == nil) }()

	tpl, ok := workflow.TemplateByID(templateID)
	if !ok {
		return nil, types.Errorf(types.ErrTemplateNotFound, "template %s not found", templateID)
	}
	w, err = tpl.Instantiate(name, s.importOptions())
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, w)
}

// Import creates a workflow from a JSON or YAML document. Format "yaml" (or
// "yml") selects YAML, anything else JSON.
func (s *Service) Import(ctx context.Context, data []byte, format string) (w *workflow.Workflow, err error) {
	defer func() { s.ops.RecordOperation("import", err == nil) }()

	switch strings.ToLower(format) {
	case "yaml", "yml":
		w, err = workflow.ImportYAML(data, s.importOptions())
	default:
		w, err = workflow.Import(data, s.importOptions())
	}
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, w)
}

// Export renders a stored workflow as a JSON document and returns it with
// its download file name.
func (s *Service) Export(ctx context.Context, workflowID string) ([]byte, string, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, "", err
	}
	data, err := workflow.Export(w)
	if err != nil {
		return nil, "", types.WrapError(err, types.ErrInternalError, "failed to export workflow")
	}
	return data, workflow.ExportFilename(w.Name), nil
}

// ExportYAML renders a stored workflow as YAML.
func (s *Service) ExportYAML(ctx context.Context, workflowID string) ([]byte, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	data, err := workflow.ExportYAML(w)
	if err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "failed to export workflow")
	}
	return data, nil
}

func (s *Service) importOptions() workflow.ImportOptions {
	return workflow.ImportOptions{NewID: s.newID, Now: s.clock.Now}
}

func (s *Service) insert(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	if err := s.store.SaveWorkflow(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("workflow created", zap.String("workflow_id", w.ID), zap.String("name", w.Name))
	return w, nil
}

// GetWorkflow returns a stored workflow.
func (s *Service) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	return s.store.GetWorkflow(ctx, workflowID)
}

// ListWorkflows returns all workflows, most recently updated first.
func (s *Service) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	return s.store.ListWorkflows(ctx)
}

// UpdateWorkflow renames or redescribes a workflow.
func (s *Service) UpdateWorkflow(ctx context.Context, workflowID string, req UpdateWorkflowRequest) (*workflow.Workflow, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update_workflow", workflowID, func(w *workflow.Workflow) error {
		if req.Name != nil {
			w.Name = *req.Name
		}
		if req.Description != nil {
			w.Description = *req.Description
		}
		return nil
	})
}

// DeleteWorkflow removes a workflow with its executions, versions and
// editing session.
func (s *Service) DeleteWorkflow(ctx context.Context, workflowID string) (err error) {
	defer func() { s.ops.RecordOperation("delete_workflow", err == nil) }()

	unlock := s.lock(workflowID)
	defer unlock()

	if err := s.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return err
	}
	s.versions.DeleteAll(workflowID)
	s.sessions.Close(workflowID)
	s.locks.Delete(workflowID)
	s.logger.Info("workflow deleted", zap.String("workflow_id", workflowID))
	return nil
}

// Lint reports likely problems with a stored workflow.
func (s *Service) Lint(ctx context.Context, workflowID string) ([]workflow.Issue, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return workflow.Lint(w), nil
}

// AutoLayout repositions every node by graph depth.
func (s *Service) AutoLayout(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	return s.mutate(ctx, "auto_layout", workflowID, func(w *workflow.Workflow) error {
		w.Nodes = s.layout.Apply(w.Nodes, w.Connections)
		return nil
	})
}

// Undo restores the state before the last edit. It reports false when
// there is nothing to undo. The version number is not rolled back.
func (s *Service) Undo(ctx context.Context, workflowID string) (*workflow.Workflow, bool, error) {
	return s.travel(ctx, "undo", workflowID, (*history.Manager).Undo)
}

// Redo reapplies the last undone edit. It reports false when there is
// nothing to redo.
func (s *Service) Redo(ctx context.Context, workflowID string) (*workflow.Workflow, bool, error) {
	return s.travel(ctx, "redo", workflowID, (*history.Manager).Redo)
}

func (s *Service) travel(ctx context.Context, op, workflowID string, step func(*history.Manager, *workflow.Workflow) (*workflow.Workflow, bool)) (w *workflow.Workflow, ok bool, err error) {
	defer func() { s.ops.RecordOperation(op, err == nil) }()

	unlock := s.lock(workflowID)
	defer unlock()

	current, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, false, err
	}
	restored, ok := step(s.sessions.Get(workflowID).History, current)
	if !ok {
		return current, false, nil
	}
	restored.ID = current.ID
	restored.Version = current.Version
	restored.CreatedAt = current.CreatedAt
	restored.UpdatedAt = s.clock.Now()
	if err := s.store.SaveWorkflow(ctx, restored); err != nil {
		return nil, false, err
	}
	return restored, true, nil
}

// HistoryStatus reports whether undo and redo are available.
func (s *Service) HistoryStatus(ctx context.Context, workflowID string) (history.Status, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return history.Status{}, err
	}
	return s.sessions.Get(workflowID).History.Status(), nil
}

// CloseSession discards the undo history and clipboard of a workflow. It
// reports whether a session was open.
func (s *Service) CloseSession(workflowID string) bool {
	return s.sessions.Close(workflowID)
}
