// Package clipboard is a single-slot copy buffer for workflow nodes and the
// connections between them.
package clipboard

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/BaSui01/agentcanvas/workflow"
)

// DefaultOffset is the shift applied to pasted nodes.
var DefaultOffset = workflow.Position{X: 50, Y: 50}

// Selection is a copied subgraph. Connections only ever join two of its
// Nodes.
type Selection struct {
	Nodes       []workflow.Node       `json:"nodes"`
	Connections []workflow.Connection `json:"connections"`
}

type content struct {
	sel      Selection
	copiedAt time.Time
}

// Manager holds at most one copied node set. Paste never modifies the
// stored nodes, so repeated pastes land at the same offset.
type Manager struct {
	mu     sync.Mutex
	data   *content
	offset workflow.Position
	newID  func() string
	clock  clock.Clock
}

// Option configures a Manager.
type Option func(*Manager)

// WithOffset overrides the paste offset.
func WithOffset(p workflow.Position) Option {
	return func(m *Manager) { m.offset = p }
}

// WithIDGenerator overrides how pasted node ids are minted.
func WithIDGenerator(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

// WithClock overrides the clock used to stamp copies.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager returns an empty clipboard.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		offset: DefaultOffset,
		newID:  uuid.NewString,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Copy replaces the clipboard content with a deep copy of nodes.
func (m *Manager) Copy(nodes []workflow.Node) {
	m.CopySelection(nodes, nil)
}

// CopySelection replaces the clipboard content with a deep copy of nodes and
// of those connections whose ends are both among nodes.
func (m *Manager) CopySelection(nodes []workflow.Node, connections []workflow.Connection) {
	cp := workflow.CloneNodes(nodes)
	if cp == nil {
		cp = []workflow.Node{}
	}
	in := make(map[string]bool, len(cp))
	for _, n := range cp {
		in[n.ID] = true
	}
	conns := []workflow.Connection{}
	for _, c := range connections {
		if in[c.SourceID] && in[c.TargetID] {
			conns = append(conns, c)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = &content{sel: Selection{Nodes: cp, Connections: conns}, copiedAt: m.clock.Now()}
}

// Paste returns fresh copies of the stored nodes, each with a new id and its
// position shifted by the offset. It returns false when nothing was copied.
func (m *Manager) Paste() ([]workflow.Node, bool) {
	sel, ok := m.PasteSelection()
	return sel.Nodes, ok
}

// PasteSelection is Paste plus the copied connections, rewired onto the new
// node ids and given ids of their own.
func (m *Manager) PasteSelection() (Selection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return Selection{}, false
	}
	nodes := workflow.CloneNodes(m.data.sel.Nodes)
	remap := make(map[string]string, len(nodes))
	for i := range nodes {
		id := m.newID()
		remap[nodes[i].ID] = id
		nodes[i].ID = id
		nodes[i].Position.X += m.offset.X
		nodes[i].Position.Y += m.offset.Y
	}
	conns := workflow.CloneConnections(m.data.sel.Connections)
	for i := range conns {
		conns[i].ID = m.newID()
		conns[i].SourceID = remap[conns[i].SourceID]
		conns[i].TargetID = remap[conns[i].TargetID]
	}
	return Selection{Nodes: nodes, Connections: conns}, true
}

// HasContent reports whether Paste would return nodes.
func (m *Manager) HasContent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data != nil
}

// CopiedAt returns when the current content was copied.
func (m *Manager) CopiedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return time.Time{}, false
	}
	return m.data.copiedAt, true
}

// Clear discards the clipboard content.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
}
