package clipboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentcanvas/workflow"
)

func sampleNodes() []workflow.Node {
	return []workflow.Node{
		{
			ID:       "a",
			Type:     workflow.NodeTypeAgent,
			Position: workflow.Position{X: 10, Y: 20},
			Data:     workflow.NodeData{Label: "Agent", Tools: []string{"search"}},
		},
		{
			ID:       "b",
			Type:     workflow.NodeTypeEnd,
			Position: workflow.Position{X: 300, Y: 20},
			Data:     workflow.NodeData{Label: "End"},
		},
	}
}

func TestManager_PasteEmpty(t *testing.T) {
	m := NewManager()
	got, ok := m.Paste()
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.False(t, m.HasContent())
}

func TestManager_PasteRemapsAndOffsets(t *testing.T) {
	seq := 0
	m := NewManager(WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("new-%d", seq)
	}))
	m.Copy(sampleNodes())

	first, ok := m.Paste()
	require.True(t, ok)
	require.Len(t, first, 2)
	assert.Equal(t, "new-1", first[0].ID)
	assert.Equal(t, workflow.Position{X: 60, Y: 70}, first[0].Position)
	assert.Equal(t, "Agent", first[0].Data.Label)

	second, ok := m.Paste()
	require.True(t, ok)
	assert.Equal(t, "new-3", second[0].ID)
	assert.Equal(t, first[0].Position, second[0].Position, "offset is not cumulative")
}

func TestManager_CopyIsIsolated(t *testing.T) {
	m := NewManager()
	nodes := sampleNodes()
	m.Copy(nodes)

	nodes[0].Data.Tools[0] = "mutated"
	nodes[0].Position.X = 999

	got, _ := m.Paste()
	assert.Equal(t, "search", got[0].Data.Tools[0])
	assert.Equal(t, float64(60), got[0].Position.X)

	got[0].Data.Tools[0] = "also mutated"
	again, _ := m.Paste()
	assert.Equal(t, "search", again[0].Data.Tools[0])
}

func TestManager_CopyEmptyListStillCounts(t *testing.T) {
	m := NewManager()
	m.Copy(nil)

	got, ok := m.Paste()
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestManager_ClearAndCopiedAt(t *testing.T) {
	mock := clock.NewMock()
	mock.Add(time.Hour)
	m := NewManager(WithClock(mock), WithOffset(workflow.Position{X: 5}))
	m.Copy(sampleNodes())

	at, ok := m.CopiedAt()
	require.True(t, ok)
	assert.Equal(t, mock.Now(), at)

	got, _ := m.Paste()
	assert.Equal(t, workflow.Position{X: 15, Y: 20}, got[0].Position)

	m.Clear()
	assert.False(t, m.HasContent())
	_, ok = m.CopiedAt()
	assert.False(t, ok)
}

func TestProperty_PasteNeverReusesIDs(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		nodes := make([]workflow.Node, n)
		for i := range nodes {
			nodes[i] = workflow.Node{
				ID:   fmt.Sprintf("src-%d", i),
				Type: workflow.NodeTypeAgent,
				Position: workflow.Position{
					X: rapid.Float64Range(-1000, 1000).Draw(rt, fmt.Sprintf("x_%d", i)),
					Y: rapid.Float64Range(-1000, 1000).Draw(rt, fmt.Sprintf("y_%d", i)),
				},
			}
		}

		m := NewManager()
		m.Copy(nodes)
		pastes := rapid.IntRange(1, 4).Draw(rt, "pastes")

		seen := make(map[string]bool)
		for _, src := range nodes {
			seen[src.ID] = true
		}
		for p := 0; p < pastes; p++ {
			out, ok := m.Paste()
			if !ok || len(out) != len(nodes) {
				rt.Fatalf("paste %d returned %d nodes", p, len(out))
			}
			for i, got := range out {
				if seen[got.ID] {
					rt.Fatalf("id %s reused", got.ID)
				}
				seen[got.ID] = true
				want := workflow.Position{X: nodes[i].Position.X + 50, Y: nodes[i].Position.Y + 50}
				if got.Position != want {
					rt.Fatalf("node %d at %v, want %v", i, got.Position, want)
				}
			}
		}
	})
}

func TestManager_PasteSelectionRewiresConnections(t *testing.T) {
	seq := 0
	m := NewManager(WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("new-%d", seq)
	}))
	m.CopySelection(sampleNodes(), []workflow.Connection{
		{ID: "c1", SourceID: "a", TargetID: "b", Label: "done"},
		{ID: "c2", SourceID: "start", TargetID: "a"},
		{ID: "c3", SourceID: "b", TargetID: "elsewhere"},
	})

	sel, ok := m.PasteSelection()
	require.True(t, ok)
	require.Len(t, sel.Nodes, 2)
	assert.Equal(t, []workflow.Connection{
		{ID: "new-3", SourceID: "new-1", TargetID: "new-2", Label: "done"},
	}, sel.Connections, "only connections inside the selection survive")

	again, _ := m.PasteSelection()
	assert.Equal(t, again.Nodes[0].ID, again.Connections[0].SourceID)
	assert.Equal(t, again.Nodes[1].ID, again.Connections[0].TargetID)
	assert.NotEqual(t, sel.Connections[0].ID, again.Connections[0].ID)

	nodes, ok := m.Paste()
	require.True(t, ok)
	assert.Len(t, nodes, 2)
}

func TestProperty_PastedConnectionsStayInside(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		nodes := make([]workflow.Node, n)
		for i := range nodes {
			nodes[i] = workflow.Node{ID: fmt.Sprintf("src-%d", i), Type: workflow.NodeTypeAgent}
		}
		// 端点取值包含选区外的 ext
		endpoint := func(label string) string {
			i := rapid.IntRange(0, n).Draw(rt, label)
			if i == n {
				return "ext"
			}
			return nodes[i].ID
		}
		var conns []workflow.Connection
		internal := 0
		for i := rapid.IntRange(0, 12).Draw(rt, "m"); i > 0; i-- {
			c := workflow.Connection{ID: fmt.Sprintf("c-%d", i), SourceID: endpoint(fmt.Sprintf("src_%d", i)), TargetID: endpoint(fmt.Sprintf("dst_%d", i))}
			if c.SourceID != "ext" && c.TargetID != "ext" {
				internal++
			}
			conns = append(conns, c)
		}

		m := NewManager()
		m.CopySelection(nodes, conns)
		sel, _ := m.PasteSelection()

		pasted := make(map[string]bool, len(sel.Nodes))
		for _, p := range sel.Nodes {
			pasted[p.ID] = true
		}
		if len(sel.Connections) != internal {
			rt.Fatalf("pasted %d connections, want %d", len(sel.Connections), internal)
		}
		for _, c := range sel.Connections {
			if !pasted[c.SourceID] || !pasted[c.TargetID] {
				rt.Fatalf("connection %s leaves the pasted set: %s -> %s", c.ID, c.SourceID, c.TargetID)
			}
		}
	})
}
