// Package version keeps immutable snapshots of workflows and diffs them.
package version

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/workflow"
)

// Changes lists nodes and connections present on one side of a comparison only.
type Changes struct {
	Nodes       []workflow.Node       `json:"nodes"`
	Connections []workflow.Connection `json:"connections"`
}

// NodeChange pairs the two sides of a node whose content differs.
type NodeChange struct {
	Old workflow.Node `json:"old"`
	New workflow.Node `json:"new"`
}

// Comparison is the difference between two versions, keyed by id.
// Connections are only ever added or removed, never modified.
type Comparison struct {
	Added    Changes      `json:"added"`
	Removed  Changes      `json:"removed"`
	Modified []NodeChange `json:"modified"`
}

// Store holds versions per workflow id in creation order. Versions handed
// out are copies; the stored snapshots never change after creation except
// for their tags.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]*workflow.WorkflowVersion
	clock    clock.Clock
	logger   *zap.Logger
}

// NewStore returns an empty Store.
func NewStore(clk clock.Clock, logger *zap.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		versions: make(map[string][]*workflow.WorkflowVersion),
		clock:    clk,
		logger:   logger.With(zap.String("component", "version_store")),
	}
}

// Create snapshots w under its current version number.
func (s *Store) Create(w *workflow.Workflow, description, createdBy string) *workflow.WorkflowVersion {
	v := &workflow.WorkflowVersion{
		ID:          uuid.NewString(),
		WorkflowID:  w.ID,
		Version:     w.Version,
		Name:        fmt.Sprintf("v%d", w.Version),
		Description: description,
		Nodes:       workflow.CloneNodes(w.Nodes),
		Connections: workflow.CloneConnections(w.Connections),
		CreatedAt:   s.clock.Now(),
		CreatedBy:   createdBy,
		Tags:        []string{},
	}

	s.mu.Lock()
	s.versions[w.ID] = append(s.versions[w.ID], v)
	s.mu.Unlock()

	s.logger.Debug("version created",
		zap.String("workflow_id", w.ID),
		zap.Int("version", v.Version),
	)
	return v.Clone()
}

// List returns the workflow's versions, highest version number first.
// Equal numbers keep creation order.
func (s *Store) List(workflowID string) []*workflow.WorkflowVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.versions[workflowID]
	out := make([]*workflow.WorkflowVersion, len(stored))
	for i, v := range stored {
		out[i] = v.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version > out[j].Version
	})
	return out
}

// Get returns the earliest-created version with the given number.
func (s *Store) Get(workflowID string, number int) (*workflow.WorkflowVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v := s.find(workflowID, number); v != nil {
		return v.Clone(), true
	}
	return nil, false
}

// Compare diffs version v1 against v2. It returns false if either is missing.
func (s *Store) Compare(workflowID string, v1, v2 int) (*Comparison, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, b := s.find(workflowID, v1), s.find(workflowID, v2)
	if a == nil || b == nil {
		return nil, false
	}
	return Diff(a, b), true
}

// Tag adds tag to the version if it is not already present. Only the
// earliest version with that number is tagged.
func (s *Store) Tag(workflowID string, number int, tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.find(workflowID, number)
	if v == nil {
		return false
	}
	if !slices.Contains(v.Tags, tag) {
		v.Tags = append(v.Tags, tag)
	}
	return true
}

// Delete removes every version with the given number.
func (s *Store) Delete(workflowID string, number int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.versions[workflowID]
	kept := slices.DeleteFunc(slices.Clone(stored), func(v *workflow.WorkflowVersion) bool {
		return v.Version == number
	})
	if len(kept) == len(stored) {
		return false
	}
	s.versions[workflowID] = kept
	return true
}

// DeleteAll drops every version of a workflow.
func (s *Store) DeleteAll(workflowID string) {
	s.mu.Lock()
	delete(s.versions, workflowID)
	s.mu.Unlock()
}

func (s *Store) find(workflowID string, number int) *workflow.WorkflowVersion {
	for _, v := range s.versions[workflowID] {
		if v.Version == number {
			return v
		}
	}
	return nil
}

// Diff computes the id-keyed difference from a to b. Modified entries follow
// b's node order.
func Diff(a, b *workflow.WorkflowVersion) *Comparison {
	aNodes := indexNodes(a.Nodes)
	bNodes := indexNodes(b.Nodes)
	aConns := indexConnections(a.Connections)
	bConns := indexConnections(b.Connections)

	cmp := &Comparison{
		Added:    Changes{Nodes: []workflow.Node{}, Connections: []workflow.Connection{}},
		Removed:  Changes{Nodes: []workflow.Node{}, Connections: []workflow.Connection{}},
		Modified: []NodeChange{},
	}

	for _, n := range b.Nodes {
		old, ok := aNodes[n.ID]
		switch {
		case !ok:
			cmp.Added.Nodes = append(cmp.Added.Nodes, n.Clone())
		case !old.Equal(n):
			cmp.Modified = append(cmp.Modified, NodeChange{Old: old.Clone(), New: n.Clone()})
		}
	}
	for _, n := range a.Nodes {
		if _, ok := bNodes[n.ID]; !ok {
			cmp.Removed.Nodes = append(cmp.Removed.Nodes, n.Clone())
		}
	}
	for _, c := range b.Connections {
		if _, ok := aConns[c.ID]; !ok {
			cmp.Added.Connections = append(cmp.Added.Connections, c)
		}
	}
	for _, c := range a.Connections {
		if _, ok := bConns[c.ID]; !ok {
			cmp.Removed.Connections = append(cmp.Removed.Connections, c)
		}
	}
	return cmp
}

// indexNodes maps id to the first node carrying it.
func indexNodes(nodes []workflow.Node) map[string]workflow.Node {
	m := make(map[string]workflow.Node, len(nodes))
	for _, n := range nodes {
		if _, dup := m[n.ID]; !dup {
			m[n.ID] = n
		}
	}
	return m
}

func indexConnections(conns []workflow.Connection) map[string]struct{} {
	m := make(map[string]struct{}, len(conns))
	for _, c := range conns {
		m[c.ID] = struct{}{}
	}
	return m
}
