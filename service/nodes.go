package service

import (
	"context"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/clipboard"
)

// AddNodeRequest describes a node to place on the canvas.
type AddNodeRequest struct {
	Type     workflow.NodeType `json:"type" validate:"required"`
	Position workflow.Position `json:"position"`
	Data     workflow.NodeData `json:"data"`
}

// UpdateNodeRequest changes a node's position or payload. The node type
// cannot change. Nil fields are kept.
type UpdateNodeRequest struct {
	Position *workflow.Position `json:"position,omitempty"`
	Data     *workflow.NodeData `json:"data,omitempty"`
}

// AddConnectionRequest describes an edge between two existing nodes.
type AddConnectionRequest struct {
	SourceID string `json:"sourceId" validate:"required"`
	TargetID string `json:"targetId" validate:"required"`
	Label    string `json:"label,omitempty"`
}

// AddNode appends a node with a fresh id.
func (s *Service) AddNode(ctx context.Context, workflowID string, req AddNodeRequest) (*workflow.Node, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, types.Errorf(types.ErrInvalidRequest, "unknown node type %q", req.Type)
	}
	if req.Data.Label == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "node label is required")
	}

	node := workflow.Node{ID: s.newID(), Type: req.Type, Position: req.Position, Data: req.Data}
	if _, err := s.mutate(ctx, "add_node", workflowID, func(w *workflow.Workflow) error {
		w.Nodes = append(w.Nodes, node.Clone())
		return nil
	}); err != nil {
		return nil, err
	}
	return &node, nil
}

// UpdateNode edits a node in place.
func (s *Service) UpdateNode(ctx context.Context, workflowID, nodeID string, req UpdateNodeRequest) (*workflow.Node, error) {
	if req.Data != nil && req.Data.Label == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "node label is required")
	}
	var updated workflow.Node
	_, err := s.mutate(ctx, "update_node", workflowID, func(w *workflow.Workflow) error {
		n, ok := w.Node(nodeID)
		if !ok {
			return nodeNotFound(nodeID)
		}
		if req.Position != nil {
			n.Position = *req.Position
		}
		if req.Data != nil {
			n.Data = workflow.Node{Data: *req.Data}.Clone().Data
		}
		updated = n.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteNode removes a node and every connection attached to it.
func (s *Service) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	_, err := s.mutate(ctx, "delete_node", workflowID, func(w *workflow.Workflow) error {
		if !w.RemoveNode(nodeID) {
			return nodeNotFound(nodeID)
		}
		return nil
	})
	return err
}

// AddConnection links two nodes of the workflow.
func (s *Service) AddConnection(ctx context.Context, workflowID string, req AddConnectionRequest) (*workflow.Connection, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	conn := workflow.Connection{ID: s.newID(), SourceID: req.SourceID, TargetID: req.TargetID, Label: req.Label}
	_, err := s.mutate(ctx, "add_connection", workflowID, func(w *workflow.Workflow) error {
		for _, id := range []string{req.SourceID, req.TargetID} {
			if !w.HasNode(id) {
				return nodeNotFound(id)
			}
		}
		w.Connections = append(w.Connections, conn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// DeleteConnection removes one connection.
func (s *Service) DeleteConnection(ctx context.Context, workflowID, connectionID string) error {
	_, err := s.mutate(ctx, "delete_connection", workflowID, func(w *workflow.Workflow) error {
		if !w.RemoveConnection(connectionID) {
			return types.Errorf(types.ErrConnectionNotFound, "connection %s not found", connectionID)
		}
		return nil
	})
	return err
}

// Copy puts the named nodes of the workflow on its clipboard, together with
// the connections between them, and returns how many nodes were copied.
// Unknown ids are skipped.
func (s *Service) Copy(ctx context.Context, workflowID string, nodeIDs []string) (n int, err error) {
	defer func() { s.ops.RecordOperation("copy", err == nil) }()

	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	nodes := w.NodesByID(nodeIDs)
	s.sessions.Get(workflowID).Clipboard.CopySelection(nodes, w.Connections)
	return len(nodes), nil
}

// Paste appends the clipboard content to the workflow and returns what was
// pasted. Copied connections are rewired onto the pasted nodes. It reports
// false when the clipboard is empty.
func (s *Service) Paste(ctx context.Context, workflowID string) (clipboard.Selection, bool, error) {
	sel, ok := s.sessions.Get(workflowID).Clipboard.PasteSelection()
	if !ok {
		if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
			return clipboard.Selection{}, false, err
		}
		return clipboard.Selection{}, false, nil
	}
	_, err := s.mutate(ctx, "paste", workflowID, func(w *workflow.Workflow) error {
		w.Nodes = append(w.Nodes, workflow.CloneNodes(sel.Nodes)...)
		w.Connections = append(w.Connections, workflow.CloneConnections(sel.Connections)...)
		return nil
	})
	if err != nil {
		return clipboard.Selection{}, false, err
	}
	return sel, true, nil
}

func nodeNotFound(id string) error {
	return types.Errorf(types.ErrNodeNotFound, "node %s not found", id)
}
