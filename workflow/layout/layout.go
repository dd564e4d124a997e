// Package layout places workflow nodes on the canvas by breadth-first depth.
package layout

import (
	"github.com/BaSui01/agentcanvas/workflow"
)

// Orientation selects the axis levels advance along.
type Orientation string

const (
	// Vertical stacks levels top to bottom and spreads a level left to right.
	Vertical Orientation = "vertical"
	// Horizontal stacks levels left to right and spreads a level top to bottom.
	Horizontal Orientation = "horizontal"
)

// Config holds the geometry used by Engine.
type Config struct {
	NodeWidth     float64     `yaml:"node_width" env:"NODE_WIDTH"`
	NodeHeight    float64     `yaml:"node_height" env:"NODE_HEIGHT"`
	HorizontalGap float64     `yaml:"horizontal_gap" env:"HORIZONTAL_GAP"`
	VerticalGap   float64     `yaml:"vertical_gap" env:"VERTICAL_GAP"`
	MarginX       float64     `yaml:"margin_x" env:"MARGIN_X"`
	MarginY       float64     `yaml:"margin_y" env:"MARGIN_Y"`
	Orientation   Orientation `yaml:"orientation" env:"ORIENTATION"`
}

// DefaultConfig returns the canvas defaults.
func DefaultConfig() Config {
	return Config{
		NodeWidth:     280,
		NodeHeight:    80,
		HorizontalGap: 200,
		VerticalGap:   120,
		MarginX:       100,
		MarginY:       100,
		Orientation:   Vertical,
	}
}

// Engine computes node positions. It is stateless and safe for concurrent use.
type Engine struct {
	cfg Config
}

// New returns an Engine using cfg.
func New(cfg Config) *Engine {
	if cfg.Orientation == "" {
		cfg.Orientation = Vertical
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine's geometry.
func (e *Engine) Config() Config {
	return e.cfg
}

// Apply returns a copy of nodes with positions assigned by level. Node order
// and every field other than Position are preserved. An empty input is
// returned unchanged.
func (e *Engine) Apply(nodes []workflow.Node, connections []workflow.Connection) []workflow.Node {
	if len(nodes) == 0 {
		return nodes
	}

	pos := make(map[string]workflow.Position, len(nodes))
	for level, ids := range Levels(nodes, connections) {
		for i, id := range ids {
			pos[id] = e.position(level, i)
		}
	}

	out := workflow.CloneNodes(nodes)
	for i := range out {
		if p, ok := pos[out[i].ID]; ok {
			out[i].Position = p
		}
	}
	return out
}

func (e *Engine) position(level, index int) workflow.Position {
	stepX := e.cfg.NodeWidth + e.cfg.HorizontalGap
	stepY := e.cfg.NodeHeight + e.cfg.VerticalGap
	if e.cfg.Orientation == Horizontal {
		return workflow.Position{
			X: e.cfg.MarginX + float64(level)*stepX,
			Y: e.cfg.MarginY + float64(index)*stepY,
		}
	}
	return workflow.Position{
		X: e.cfg.MarginX + float64(index)*stepX,
		Y: e.cfg.MarginY + float64(level)*stepY,
	}
}

// Levels groups node ids by breadth-first depth from the roots, where a root
// is any start node or any node without a live incoming connection. A node's level is the
// depth at which it is first dequeued. Nodes unreachable from any root are
// appended as one extra level in their original order. Connections to or
// from unknown ids are ignored.
func Levels(nodes []workflow.Node, connections []workflow.Connection) [][]string {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}

	children := make(map[string][]string, len(nodes))
	hasIncoming := make(map[string]bool, len(nodes))
	for _, c := range connections {
		_, srcOK := known[c.SourceID]
		_, dstOK := known[c.TargetID]
		if !srcOK || !dstOK {
			continue
		}
		children[c.SourceID] = append(children[c.SourceID], c.TargetID)
		hasIncoming[c.TargetID] = true
	}

	type item struct {
		id    string
		level int
	}
	var queue []item
	for _, n := range nodes {
		if n.Type == workflow.NodeTypeStart || !hasIncoming[n.ID] {
			queue = append(queue, item{id: n.ID})
		}
	}

	var levels [][]string
	visited := make(map[string]bool, len(nodes))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		for len(levels) <= cur.level {
			levels = append(levels, nil)
		}
		levels[cur.level] = append(levels[cur.level], cur.id)

		for _, child := range children[cur.id] {
			if !visited[child] {
				queue = append(queue, item{id: child, level: cur.level + 1})
			}
		}
	}

	var orphans []string
	for _, n := range nodes {
		if !visited[n.ID] {
			visited[n.ID] = true
			orphans = append(orphans, n.ID)
		}
	}
	if len(orphans) > 0 {
		levels = append(levels, orphans)
	}
	return levels
}

// Center returns the viewport offset that centers the nodes' bounding box
// in a viewport of the given size. It returns the zero position for no nodes.
func (e *Engine) Center(nodes []workflow.Node, viewportWidth, viewportHeight float64) workflow.Position {
	if len(nodes) == 0 {
		return workflow.Position{}
	}

	minX, minY := nodes[0].Position.X, nodes[0].Position.Y
	maxX, maxY := minX+e.cfg.NodeWidth, minY+e.cfg.NodeHeight
	for _, n := range nodes[1:] {
		minX = min(minX, n.Position.X)
		minY = min(minY, n.Position.Y)
		maxX = max(maxX, n.Position.X+e.cfg.NodeWidth)
		maxY = max(maxY, n.Position.Y+e.cfg.NodeHeight)
	}

	return workflow.Position{
		X: (viewportWidth-(maxX-minX))/2 - minX,
		Y: (viewportHeight-(maxY-minY))/2 - minY,
	}
}
