package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcanvas/types"
)

func fixedImport() ImportOptions {
	return ImportOptions{
		NewID: func() string { return "new-id" },
		Now:   func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func sampleWorkflow() *Workflow {
	agent := n("a", NodeTypeAgent)
	agent.Data.Tools = []string{"web-search"}
	agent.Data.SystemPrompt = "Be helpful."
	agent.Position = Position{X: 10, Y: 20}
	w := linear(n("s", NodeTypeStart), agent, n("e", NodeTypeEnd))
	w.Name = "Support Flow"
	w.Description = "routes tickets"
	w.Version = 4
	w.Connections[0].Label = "go"
	return w
}

func TestExportImport_RoundTrip(t *testing.T) {
	w := sampleWorkflow()

	data, err := Export(w)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sourceId": "s"`)
	assert.Contains(t, string(data), `"systemPrompt": "Be helpful."`)

	got, err := Import(data, fixedImport())
	require.NoError(t, err)

	assert.Equal(t, "new-id", got.ID)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, w.Name, got.Name)
	assert.Equal(t, w.Description, got.Description)
	assert.Equal(t, w.Nodes, got.Nodes)
	assert.Equal(t, w.Connections, got.Connections)
	assert.Equal(t, fixedImport().Now(), got.CreatedAt)
}

func TestExportImport_YAMLRoundTrip(t *testing.T) {
	w := sampleWorkflow()

	data, err := ExportYAML(w)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sourceId: s")

	got, err := ImportYAML(data, fixedImport())
	require.NoError(t, err)
	assert.Equal(t, w.Nodes, got.Nodes)
	assert.Equal(t, w.Connections, got.Connections)
}

func TestExport_EmptyGraphUsesArrays(t *testing.T) {
	data, err := Export(&Workflow{Name: "empty"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nodes": []`)
	assert.Contains(t, string(data), `"connections": []`)
}

func TestImport_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed json", `{"name": "x", "nodes": [`, "failed to parse workflow JSON"},
		{"missing name", `{"nodes": []}`, "name is required"},
		{"unknown node type", `{"name":"x","nodes":[{"id":"n1","type":"webhook","data":{"label":"n"}}]}`, `unknown node type "webhook"`},
		{"missing node id", `{"name":"x","nodes":[{"type":"start","data":{"label":"n"}}]}`, "id is required"},
		{"missing label", `{"name":"x","nodes":[{"id":"n1","type":"start","data":{}}]}`, "label is required"},
		{"duplicate node ids", `{"name":"x","nodes":[
			{"id":"n1","type":"start","data":{"label":"a"}},
			{"id":"n1","type":"end","data":{"label":"b"}}]}`, "duplicate node id: n1"},
		{"duplicate connection ids", `{"name":"x","nodes":[],"connections":[
			{"id":"c1","sourceId":"a","targetId":"b"},
			{"id":"c1","sourceId":"b","targetId":"a"}]}`, "duplicate connection id: c1"},
		{"connection without target", `{"name":"x","connections":[{"id":"c1","sourceId":"a"}]}`, "targetId is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Import([]byte(tt.body), fixedImport())
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidImport), "code: %s", types.GetErrorCode(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestImport_AllowsDanglingConnections(t *testing.T) {
	body := `{"name":"x","nodes":[{"id":"s","type":"start","data":{"label":"s"}}],
		"connections":[{"id":"c1","sourceId":"s","targetId":"gone"}]}`
	got, err := Import([]byte(body), fixedImport())
	require.NoError(t, err)
	assert.Len(t, got.Connections, 1)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "customer-support-routing.json", ExportFilename("Customer Support  Routing"))
	assert.Equal(t, "workflow.json", ExportFilename(""))
}

func TestLint(t *testing.T) {
	t.Run("clean workflow", func(t *testing.T) {
		assert.Empty(t, Lint(sampleWorkflow()))
	})

	t.Run("problems are reported", func(t *testing.T) {
		cond := n("c", NodeTypeCondition)
		cond.Data.Condition = "(a =="
		w := &Workflow{
			Name:  "broken",
			Nodes: []Node{n("a", NodeTypeAgent), cond, n("island", NodeTypeAgent)},
			Connections: []Connection{
				c("a", "c", ""),
				c("c", "missing", ""),
			},
		}

		var msgs []string
		for _, is := range Lint(w) {
			msgs = append(msgs, string(is.Level)+": "+is.Message)
		}
		joined := strings.Join(msgs, "\n")
		assert.Contains(t, joined, "error: workflow has no start node")
		assert.Contains(t, joined, "warning: workflow has no end node")
		assert.Contains(t, joined, "references a missing node")
		assert.Contains(t, joined, "error: invalid condition")
	})

	t.Run("unreachable nodes", func(t *testing.T) {
		w := sampleWorkflow()
		w.Nodes = append(w.Nodes, n("orphan", NodeTypeAgent))
		issues := Lint(w)
		require.Len(t, issues, 1)
		assert.Equal(t, "orphan", issues[0].NodeID)
		assert.Equal(t, IssueWarning, issues[0].Level)
	})
}
