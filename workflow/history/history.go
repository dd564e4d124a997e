// Package history implements bounded undo/redo over workflow snapshots.
package history

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/BaSui01/agentcanvas/workflow"
)

// DefaultMaxSize is the undo depth used when none is configured.
const DefaultMaxSize = 50

// Entry is one snapshot on a stack.
type Entry struct {
	Workflow  *workflow.Workflow
	Timestamp time.Time
}

// Status reports stack availability.
type Status struct {
	CanUndo   bool `json:"canUndo"`
	CanRedo   bool `json:"canRedo"`
	UndoDepth int  `json:"undoDepth"`
	RedoDepth int  `json:"redoDepth"`
}

// Manager holds the undo and redo stacks for one workflow. Every entry is an
// independent deep copy. SaveState must be called with the state from before
// a mutation is applied.
type Manager struct {
	mu      sync.Mutex
	undo    []Entry
	redo    []Entry
	maxSize int
	clock   clock.Clock
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used to timestamp entries.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager returns a Manager keeping at most maxSize undo entries.
// A non-positive maxSize selects DefaultMaxSize.
func NewManager(maxSize int, opts ...Option) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	m := &Manager{maxSize: maxSize, clock: clock.New()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SaveState records w as the most recent undo point and clears redo.
// The oldest entry is evicted once the stack exceeds its bound.
func (m *Manager) SaveState(w *workflow.Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.undo = append(m.undo, m.entry(w))
	if len(m.undo) > m.maxSize {
		m.undo = m.undo[len(m.undo)-m.maxSize:]
	}
	m.redo = nil
}

// Undo returns the previous state and remembers current for Redo. It returns
// false when there is nothing to undo.
func (m *Manager) Undo(current *workflow.Workflow) (*workflow.Workflow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.undo) == 0 {
		return nil, false
	}
	m.redo = append(m.redo, m.entry(current))
	top := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	return top.Workflow, true
}

// Redo is the inverse of Undo.
func (m *Manager) Redo(current *workflow.Workflow) (*workflow.Workflow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.redo) == 0 {
		return nil, false
	}
	m.undo = append(m.undo, m.entry(current))
	if len(m.undo) > m.maxSize {
		m.undo = m.undo[len(m.undo)-m.maxSize:]
	}
	top := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	return top.Workflow, true
}

// CanUndo reports whether Undo would return a state.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports whether Redo would return a state.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Status returns a snapshot of both stacks' state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		CanUndo:   len(m.undo) > 0,
		CanRedo:   len(m.redo) > 0,
		UndoDepth: len(m.undo),
		RedoDepth: len(m.redo),
	}
}

// Clear empties both stacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = nil
	m.redo = nil
}

func (m *Manager) entry(w *workflow.Workflow) Entry {
	return Entry{Workflow: w.Clone(), Timestamp: m.clock.Now()}
}
