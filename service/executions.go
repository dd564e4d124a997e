package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/workflow"
)

// Execute runs a stored workflow. The execution record is saved after
// every step and once more when the run stops; onUpdate, when set, sees
// the same snapshots. Only lookup and final save failures are returned;
// run failures are reported in the record.
func (s *Service) Execute(ctx context.Context, workflowID, input string, onUpdate workflow.UpdateFunc) (*workflow.WorkflowExecution, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	exec := s.executor.Execute(ctx, w, input, s.persisting(ctx, onUpdate))
	if err := s.store.SaveExecution(context.WithoutCancel(ctx), exec); err != nil {
		return exec, err
	}
	s.logger.Info("execution finished",
		zap.String("workflow_id", workflowID),
		zap.String("execution_id", exec.ID),
		zap.String("status", string(exec.Status)))
	return exec, nil
}

// Resume answers a suspended user-approval node and continues the run
// against the workflow as it is stored now.
func (s *Service) Resume(ctx context.Context, executionID string, decision workflow.ApprovalDecision, onUpdate workflow.UpdateFunc) (*workflow.WorkflowExecution, error) {
	prev, err := s.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	w, err := s.store.GetWorkflow(ctx, prev.WorkflowID)
	if err != nil {
		return nil, err
	}
	exec, err := s.executor.Resume(ctx, w, prev, decision, s.persisting(ctx, onUpdate))
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveExecution(context.WithoutCancel(ctx), exec); err != nil {
		return exec, err
	}
	s.logger.Info("execution resumed",
		zap.String("execution_id", exec.ID),
		zap.Bool("approved", decision.Approved),
		zap.String("status", string(exec.Status)))
	return exec, nil
}

// persisting saves intermediate snapshots. A failed intermediate save is
// logged; the final save decides the outcome.
func (s *Service) persisting(ctx context.Context, onUpdate workflow.UpdateFunc) workflow.UpdateFunc {
	saveCtx := context.WithoutCancel(ctx)
	return func(e *workflow.WorkflowExecution) {
		if err := s.store.SaveExecution(saveCtx, e); err != nil {
			s.logger.Warn("failed to save execution snapshot",
				zap.String("execution_id", e.ID),
				zap.Error(err))
		}
		if onUpdate != nil {
			onUpdate(e)
		}
	}
}

// GetExecution returns a stored execution.
func (s *Service) GetExecution(ctx context.Context, executionID string) (*workflow.WorkflowExecution, error) {
	return s.store.GetExecution(ctx, executionID)
}

// ListExecutions returns a workflow's executions, newest first. An empty
// workflowID lists all executions.
func (s *Service) ListExecutions(ctx context.Context, workflowID string) ([]*workflow.WorkflowExecution, error) {
	return s.store.ListExecutions(ctx, workflowID)
}

// DeleteExecution removes an execution record.
func (s *Service) DeleteExecution(ctx context.Context, executionID string) error {
	return s.store.DeleteExecution(ctx, executionID)
}
