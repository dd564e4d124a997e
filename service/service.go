package service

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/store"
	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/layout"
	"github.com/BaSui01/agentcanvas/workflow/session"
	"github.com/BaSui01/agentcanvas/workflow/version"
)

// OperationRecorder observes canvas editing operations.
type OperationRecorder interface {
	RecordOperation(operation string, success bool)
}

type nopOperations struct{}

func (nopOperations) RecordOperation(string, bool) {}

// Service is the application layer over workflows, sessions, versions and
// executions. It is safe for concurrent use.
type Service struct {
	store    store.Store
	executor *workflow.Executor
	sessions *session.Registry
	versions *version.Store
	layout   *layout.Engine
	ops      OperationRecorder
	validate *validator.Validate
	clock    clock.Clock
	newID    func() string
	logger   *zap.Logger

	locks sync.Map // workflow id -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithSessions sets the registry that owns undo history and clipboards.
func WithSessions(r *session.Registry) Option {
	return func(s *Service) { s.sessions = r }
}

// WithVersions sets the version store.
func WithVersions(v *version.Store) Option {
	return func(s *Service) { s.versions = v }
}

// WithLayout sets the auto-layout engine.
func WithLayout(e *layout.Engine) Option {
	return func(s *Service) { s.layout = e }
}

// WithOperationRecorder sets the editing metrics sink.
func WithOperationRecorder(r OperationRecorder) Option {
	return func(s *Service) { s.ops = r }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator overrides how workflow, node and connection ids are minted.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// New creates a Service. Collaborators not set through options get
// in-process defaults.
func New(st store.Store, exec *workflow.Executor, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    st,
		executor: exec,
		ops:      nopOperations{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    clock.New(),
		newID:    uuid.NewString,
		logger:   logger.With(zap.String("component", "service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = workflow.NewExecutor(workflow.ExecutorConfig{}, logger, workflow.WithClock(s.clock))
	}
	if s.sessions == nil {
		s.sessions = session.NewRegistry(session.Options{Clock: s.clock}, logger)
	}
	if s.versions == nil {
		s.versions = version.NewStore(s.clock, logger)
	}
	if s.layout == nil {
		s.layout = layout.New(layout.DefaultConfig())
	}
	return s
}

// Close stops the session registry. The store is owned by the caller.
func (s *Service) Close() {
	s.sessions.Stop()
}

func (s *Service) lock(workflowID string) func() {
	v, _ := s.locks.LoadOrStore(workflowID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// mutate loads the workflow, applies fn and saves the result. The
// pre-mutation state enters the history only once the save succeeded, so a
// failed fn or a failed save leaves both the store and the history untouched.
func (s *Service) mutate(ctx context.Context, op, workflowID string, fn func(w *workflow.Workflow) error) (w *workflow.Workflow, err error) {
	defer func() { s.ops.RecordOperation(op, err == nil) }()

	unlock := s.lock(workflowID)
	defer unlock()

	current, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	next.UpdatedAt = s.clock.Now()
	if err := s.store.SaveWorkflow(ctx, next); err != nil {
		return nil, err
	}
	s.sessions.Get(workflowID).History.SaveState(current)
	s.logger.Debug("workflow updated", zap.String("workflow_id", workflowID), zap.String("operation", op))
	return next, nil
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return types.WrapError(err, types.ErrInvalidRequest, "invalid request")
	}
	return nil
}
