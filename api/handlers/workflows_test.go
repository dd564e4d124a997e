package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcanvas/api"
	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/history"
)

func TestWorkflowHandler_CRUD(t *testing.T) {
	a := newTestAPI(t, workflow.ExecutorConfig{})
	wf := a.linear(t)
	assert.Equal(t, "id-1", wf.ID)
	assert.Equal(t, 1, wf.Version)

	rec := a.do(t, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]*workflow.Workflow](t, rec), 1)

	rec = a.do(t, http.MethodPatch, "/api/v1/workflows/"+wf.ID, `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decodeData[*workflow.Workflow](t, rec).Name)

	rec = a.do(t, http.MethodDelete, "/api/v1/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrWorkflowNotFound), decodeErr(t, rec).Code)
}

func TestWorkflowHandler_CreateRejectsBadInput(t *testing.T) {
	a := newTestAPI(t, workflow.ExecutorConfig{})

	rec := a.do(t, http.MethodPost, "/api/v1/workflows", `{"description":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/workflows", `{"name":"x","unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrInvalidRequest), decodeErr(t, rec).Code)
}

func TestWorkflowHandler_ImportExport(t *testing.T) {
	a := newTestAPI(t, workflow.ExecutorConfig{})
	wf := a.linear(t)

	rec := a.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="linear.json"`, rec.Header().Get("Content-Disposition"))
	exported := rec.Body.String()
	assert.Contains(t, exported, `"sourceId": "s"`)

	rec = a.do(t, http.MethodPost, "/api/v1/workflows/import", exported)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	imported := decodeData[*workflow.Workflow](t, rec)
	assert.NotEqual(t, wf.ID, imported.ID)
	assert.Len(t, imported.Nodes, 3)

	rec = a.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID+"/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="linear.yaml"`, rec.Header().Get("Content-Disposition"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/import", strings.NewReader(rec.Body.String()))
	req.Header.Set("Content-Type", "application/yaml")
	yamlRec := httptest.NewRecorder()
	a.mux.ServeHTTP(yamlRec, req)
	require.Equal(t, http.StatusCreated, yamlRec.Code, yamlRec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/v1/workflows/import", `{"nodes":[`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrInvalidImport), decodeErr(t, rec).Code)
}

func TestWorkflowHandler_NodesAndConnections(t *testing.T) {
	a := newTestAPI(t, workflow.ExecutorConfig{})
	wf := a.linear(t)
	base := "/api/v1/workflows/" + wf.ID

	rec := a.do(t, http.MethodPost, base+"/nodes", `{"type":"guardrail","position":{"x":5,"y":6},"data":{"label":"Check"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	node := decodeData[*workflow.Node](t, rec)
	assert.Equal(t, workflow.NodeTypeGuardrail, node.Type)

	rec = a.do(t, http.MethodPatch, base+"/nodes/"+node.ID, `{"position":{"x":10,"y":20}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, workflow.Position{X: 10, Y: 20}, decodeData[*workflow.Node](t, rec).Position)

	rec = a.do(t, http.MethodPost, base+"/connections", `{"sourceId":"a","targetId":"`+node.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conn := decodeData[*workflow.Connection](t, rec)

	rec = a.do(t, http.MethodPost, base+"/connections", `{"sourceId":"a","targetId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodDelete, base+"/connections/"+conn.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodDelete, base+"/nodes/"+node.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodDelete, base+"/nodes/"+node.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrNodeNotFound), decodeErr(t, rec).Code)
}

func TestWorkflowHandler_LintAndLayout(t *testing.T) {
	a := newTestAPI(t, workflow.ExecutorConfig{})
	wf := a.linear(t)
	base := "/api/v1/workflows/" + wf.ID

	rec := a.do(t, http.MethodGet, base+"/lint", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[api.LintResponse](t, rec).Issues)

	rec = a.do(t, http.MethodPost, base+"/layout", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	laid := decodeData[*workflow.Workflow](t, rec)
	assert.Equal(t, workflow.Position{X: 100, Y: 100}, laid.Nodes[0].Position)
}

func TestWorkflowHandler_ClipboardAndHistory(t *testing.T) {
	a := newTestAPI(t, workflow.ExecutorConfig{})
	wf := a.linear(t)
	base := "/api/v1/workflows/" + wf.ID

	rec := a.do(t, http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeData[api.HistoryResponse](t, rec).Applied)

	rec = a.do(t, http.MethodPost, base+"/copy", api.CopyRequest{NodeIDs: []string{"a", "ghost"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeData[api.CopyResponse](t, rec).Copied)

	rec = a.do(t, http.MethodPost, base+"/paste", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pasted := decodeData[api.PasteResponse](t, rec)
	assert.True(t, pasted.Pasted)
	require.Len(t, pasted.Nodes, 1)
	assert.Empty(t, pasted.Connections, "a lone node carries no connections")

	rec = a.do(t, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeData[history.Status](t, rec)
	assert.True(t, status.CanUndo)
	assert.Equal(t, 1, status.UndoDepth)

	rec = a.do(t, http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	undone := decodeData[api.HistoryResponse](t, rec)
	assert.True(t, undone.Applied)
	assert.Len(t, undone.Workflow.Nodes, 3)
	assert.True(t, undone.History.CanRedo)

	rec = a.do(t, http.MethodPost, base+"/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[api.HistoryResponse](t, rec).Workflow.Nodes, 4)

	rec = a.do(t, http.MethodDelete, base+"/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"closed": true}, decodeData[map[string]bool](t, rec))
}
