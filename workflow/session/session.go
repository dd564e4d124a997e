// Package session owns the per-workflow editing state: one undo history and
// one clipboard for every open workflow.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/clipboard"
	"github.com/BaSui01/agentcanvas/workflow/history"
)

// Session is the editing state of one workflow.
type Session struct {
	WorkflowID string
	OpenedAt   time.Time
	History    *history.Manager
	Clipboard  *clipboard.Manager
}

func (s *Session) dispose() {
	s.History.Clear()
	s.Clipboard.Clear()
}

// Options configures a Registry.
type Options struct {
	// IdleTTL evicts sessions not touched for this long. Zero keeps them
	// until Close.
	IdleTTL     time.Duration
	HistorySize int
	PasteOffset workflow.Position
	Clock       clock.Clock
}

// Registry hands out sessions keyed by workflow id, creating them on first
// use.
type Registry struct {
	mu     sync.Mutex
	cache  *ttlcache.Cache[string, *Session]
	opts   Options
	logger *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewRegistry creates a Registry. When opts.IdleTTL is positive a
// background eviction loop runs until Stop.
func NewRegistry(opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.PasteOffset == (workflow.Position{}) {
		opts.PasteOffset = clipboard.DefaultOffset
	}

	r := &Registry{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Session](opts.IdleTTL),
		),
		opts:   opts,
		logger: logger.With(zap.String("component", "session_registry")),
	}

	r.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		if reason == ttlcache.EvictionReasonExpired {
			r.logger.Debug("session expired", zap.String("workflow_id", item.Key()))
		}
		item.Value().dispose()
	})

	if opts.IdleTTL > 0 {
		r.done = make(chan struct{})
		go func() {
			defer close(r.done)
			r.cache.Start()
		}()
	}
	return r
}

// Get returns the session for workflowID, creating it if needed. Each call
// resets the idle timer.
func (r *Registry) Get(workflowID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item := r.cache.Get(workflowID); item != nil {
		return item.Value()
	}

	s := &Session{
		WorkflowID: workflowID,
		OpenedAt:   r.opts.Clock.Now(),
		History:    history.NewManager(r.opts.HistorySize, history.WithClock(r.opts.Clock)),
		Clipboard: clipboard.NewManager(
			clipboard.WithOffset(r.opts.PasteOffset),
			clipboard.WithClock(r.opts.Clock),
		),
	}
	r.cache.Set(workflowID, s, ttlcache.DefaultTTL)
	r.logger.Debug("session opened", zap.String("workflow_id", workflowID))
	return s
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(workflowID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item := r.cache.Get(workflowID); item != nil {
		return item.Value(), true
	}
	return nil, false
}

// Close disposes the session of workflowID. It reports whether one existed.
func (r *Registry) Close(workflowID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.Get(workflowID) == nil {
		return false
	}
	r.cache.Delete(workflowID)
	r.logger.Debug("session closed", zap.String("workflow_id", workflowID))
	return true
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Stop ends the eviction loop. It is safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		if r.done != nil {
			r.cache.Stop()
			<-r.done
		}
	})
}
