package workflow

import (
	"reflect"
	"slices"

	"github.com/BaSui01/agentcanvas/types"
)

// Clone returns a deep copy of the node. Nil slices and maps stay nil.
func (n Node) Clone() Node {
	out := n
	out.Data.Tools = slices.Clone(n.Data.Tools)
	out.Data.FileTypes = slices.Clone(n.Data.FileTypes)
	if n.Data.Arguments != nil {
		out.Data.Arguments = cloneMap(n.Data.Arguments)
	}
	return out
}

// Equal reports whether two nodes are structurally identical. A nil slice
// or map equals an empty one.
func (n Node) Equal(o Node) bool {
	if n.ID != o.ID || n.Type != o.Type || n.Position != o.Position {
		return false
	}
	a, b := n.Data, o.Data
	if a.Label != b.Label || a.Description != b.Description ||
		a.Model != b.Model || a.SystemPrompt != b.SystemPrompt ||
		a.GuardrailType != b.GuardrailType || a.Condition != b.Condition ||
		a.MCPServer != b.MCPServer || a.Tool != b.Tool || a.Query != b.Query {
		return false
	}
	if !slices.Equal(a.Tools, b.Tools) || !slices.Equal(a.FileTypes, b.FileTypes) {
		return false
	}
	if len(a.Arguments) == 0 && len(b.Arguments) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Arguments, b.Arguments)
}

// CloneNodes deep-copies a node list.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// CloneConnections copies a connection list. Connections hold no references.
func CloneConnections(conns []Connection) []Connection {
	return slices.Clone(conns)
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Nodes = CloneNodes(w.Nodes)
	out.Connections = CloneConnections(w.Connections)
	return &out
}

// Clone returns a deep copy of the version.
func (v *WorkflowVersion) Clone() *WorkflowVersion {
	if v == nil {
		return nil
	}
	out := *v
	out.Nodes = CloneNodes(v.Nodes)
	out.Connections = CloneConnections(v.Connections)
	out.Tags = slices.Clone(v.Tags)
	return &out
}

// Clone returns a deep copy of the execution record.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	if e == nil {
		return nil
	}
	out := *e
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	out.Context.Messages = slices.Clone(e.Context.Messages)
	out.Context.Variables = cloneMap(e.Context.Variables)
	out.Logs = make([]ExecutionLog, len(e.Logs))
	for i, l := range e.Logs {
		if l.Data != nil {
			l.Data = cloneMap(l.Data)
		}
		out.Logs[i] = l
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the JSON-shaped containers it knows about. Other values
// are treated as immutable.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	case []types.Message:
		return slices.Clone(val)
	default:
		return v
	}
}
