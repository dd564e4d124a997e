package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/version"
)

// CreateVersionRequest annotates a new snapshot.
type CreateVersionRequest struct {
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
}

// CreateVersion snapshots the workflow under its current version number
// and then bumps the number, so consecutive snapshots are distinct.
func (s *Service) CreateVersion(ctx context.Context, workflowID string, req CreateVersionRequest) (v *workflow.WorkflowVersion, err error) {
	defer func() { s.ops.RecordOperation("create_version", err == nil) }()

	unlock := s.lock(workflowID)
	defer unlock()

	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	v = s.versions.Create(w, req.Description, req.CreatedBy)
	w.Version++
	w.UpdatedAt = s.clock.Now()
	if err := s.store.SaveWorkflow(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("version created", zap.String("workflow_id", workflowID), zap.Int("version", v.Version))
	return v, nil
}

// ListVersions returns the workflow's versions, newest first.
func (s *Service) ListVersions(ctx context.Context, workflowID string) ([]*workflow.WorkflowVersion, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.versions.List(workflowID), nil
}

// GetVersion returns one version by number.
func (s *Service) GetVersion(_ context.Context, workflowID string, number int) (*workflow.WorkflowVersion, error) {
	v, ok := s.versions.Get(workflowID, number)
	if !ok {
		return nil, versionNotFound(workflowID, number)
	}
	return v, nil
}

// CompareVersions diffs v1 against v2.
func (s *Service) CompareVersions(_ context.Context, workflowID string, v1, v2 int) (*version.Comparison, error) {
	cmp, ok := s.versions.Compare(workflowID, v1, v2)
	if !ok {
		return nil, types.Errorf(types.ErrVersionNotFound, "versions %d and %d of workflow %s must both exist", v1, v2, workflowID)
	}
	return cmp, nil
}

// TagVersion adds a tag to a version. Tagging twice is harmless.
func (s *Service) TagVersion(_ context.Context, workflowID string, number int, tag string) error {
	if tag == "" {
		return types.NewError(types.ErrInvalidRequest, "tag is required")
	}
	if !s.versions.Tag(workflowID, number, tag) {
		return versionNotFound(workflowID, number)
	}
	return nil
}

// DeleteVersion removes every snapshot with the given number.
func (s *Service) DeleteVersion(_ context.Context, workflowID string, number int) error {
	if !s.versions.Delete(workflowID, number) {
		return versionNotFound(workflowID, number)
	}
	return nil
}

// RestoreVersion replaces the workflow's graph with a snapshot. The edit
// can be undone like any other.
func (s *Service) RestoreVersion(ctx context.Context, workflowID string, number int) (*workflow.Workflow, error) {
	v, ok := s.versions.Get(workflowID, number)
	if !ok {
		return nil, versionNotFound(workflowID, number)
	}
	return s.mutate(ctx, "restore_version", workflowID, func(w *workflow.Workflow) error {
		w.Nodes = workflow.CloneNodes(v.Nodes)
		w.Connections = workflow.CloneConnections(v.Connections)
		if w.Nodes == nil {
			w.Nodes = []workflow.Node{}
		}
		if w.Connections == nil {
			w.Connections = []workflow.Connection{}
		}
		return nil
	})
}

func versionNotFound(workflowID string, number int) error {
	return types.Errorf(types.ErrVersionNotFound, "version %d of workflow %s not found", number, workflowID)
}
