package workflow

// Connections that reference a node id missing from the workflow are dead:
// every helper here ignores them instead of failing.

// NodeIndex returns the position of the node with the given id, or -1.
func (w *Workflow) NodeIndex(id string) int {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Node returns a pointer into w.Nodes for the node with the given id.
func (w *Workflow) Node(id string) (*Node, bool) {
	if i := w.NodeIndex(id); i >= 0 {
		return &w.Nodes[i], true
	}
	return nil, false
}

// HasNode reports whether a node with the given id exists.
func (w *Workflow) HasNode(id string) bool {
	return w.NodeIndex(id) >= 0
}

// ConnectionIndex returns the position of the connection with the given id, or -1.
func (w *Workflow) ConnectionIndex(id string) int {
	for i := range w.Connections {
		if w.Connections[i].ID == id {
			return i
		}
	}
	return -1
}

// Endpoints resolves a connection to its source and target nodes. Either
// side is nil when the referenced node does not exist.
func (w *Workflow) Endpoints(c Connection) (source, target *Node) {
	source, _ = w.Node(c.SourceID)
	target, _ = w.Node(c.TargetID)
	return source, target
}

// Outgoing returns the live connections leaving nodeID, in list order.
func (w *Workflow) Outgoing(nodeID string) []Connection {
	var out []Connection
	for _, c := range w.Connections {
		if c.SourceID == nodeID && w.HasNode(c.TargetID) {
			out = append(out, c)
		}
	}
	return out
}

// Incoming returns the live connections entering nodeID, in list order.
func (w *Workflow) Incoming(nodeID string) []Connection {
	var in []Connection
	for _, c := range w.Connections {
		if c.TargetID == nodeID && w.HasNode(c.SourceID) {
			in = append(in, c)
		}
	}
	return in
}

// StartNode returns the first node of type start.
func (w *Workflow) StartNode() (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].Type == NodeTypeStart {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// NextNode follows the first live connection leaving nodeID. It returns nil
// when the node has no live outgoing connection.
func (w *Workflow) NextNode(nodeID string) *Node {
	for _, c := range w.Connections {
		if c.SourceID != nodeID {
			continue
		}
		if target, ok := w.Node(c.TargetID); ok {
			return target
		}
	}
	return nil
}

// NodesByID returns the nodes whose ids are listed, in workflow order.
// Unknown ids are skipped.
func (w *Workflow) NodesByID(ids []string) []Node {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Node
	for _, n := range w.Nodes {
		if _, ok := want[n.ID]; ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// RemoveNode deletes the node and every connection touching it. It reports
// whether the node existed.
func (w *Workflow) RemoveNode(id string) bool {
	i := w.NodeIndex(id)
	if i < 0 {
		return false
	}
	w.Nodes = append(w.Nodes[:i], w.Nodes[i+1:]...)
	kept := w.Connections[:0]
	for _, c := range w.Connections {
		if c.SourceID != id && c.TargetID != id {
			kept = append(kept, c)
		}
	}
	w.Connections = kept
	return true
}

// RemoveConnection deletes the connection with the given id.
func (w *Workflow) RemoveConnection(id string) bool {
	i := w.ConnectionIndex(id)
	if i < 0 {
		return false
	}
	w.Connections = append(w.Connections[:i], w.Connections[i+1:]...)
	return true
}
