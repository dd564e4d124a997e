package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/api"
	"github.com/BaSui01/agentcanvas/service"
	"github.com/BaSui01/agentcanvas/workflow"
)

// =============================================================================
// 🧩 工作流与画布编辑 Handler
// =============================================================================

// WorkflowHandler 处理工作流 CRUD、导入导出与画布编辑
type WorkflowHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(svc *service.Service, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{svc: svc, logger: logger.With(zap.String("handler", "workflows"))}
}

// Register 挂载路由
func (h *WorkflowHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/workflows", h.HandleList)
	mux.HandleFunc("POST /api/v1/workflows", h.HandleCreate)
	mux.HandleFunc("POST /api/v1/workflows/import", h.HandleImport)
	mux.HandleFunc("GET /api/v1/workflows/{id}", h.HandleGet)
	mux.HandleFunc("PATCH /api/v1/workflows/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", h.HandleDelete)
	mux.HandleFunc("GET /api/v1/workflows/{id}/export", h.HandleExport)
	mux.HandleFunc("GET /api/v1/workflows/{id}/lint", h.HandleLint)
	mux.HandleFunc("POST /api/v1/workflows/{id}/layout", h.HandleAutoLayout)

	mux.HandleFunc("POST /api/v1/workflows/{id}/nodes", h.HandleAddNode)
	mux.HandleFunc("PATCH /api/v1/workflows/{id}/nodes/{nodeId}", h.HandleUpdateNode)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}/nodes/{nodeId}", h.HandleDeleteNode)
	mux.HandleFunc("POST /api/v1/workflows/{id}/connections", h.HandleAddConnection)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}/connections/{connId}", h.HandleDeleteConnection)

	mux.HandleFunc("POST /api/v1/workflows/{id}/copy", h.HandleCopy)
	mux.HandleFunc("POST /api/v1/workflows/{id}/paste", h.HandlePaste)
	mux.HandleFunc("POST /api/v1/workflows/{id}/undo", h.HandleUndo)
	mux.HandleFunc("POST /api/v1/workflows/{id}/redo", h.HandleRedo)
	mux.HandleFunc("GET /api/v1/workflows/{id}/history", h.HandleHistory)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}/session", h.HandleCloseSession)
}

// HandleList 列出工作流，最近更新的在前
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListWorkflows(r.Context())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if list == nil {
		list = []*workflow.Workflow{}
	}
	WriteSuccess(w, r, list)
}

// HandleCreate 创建工作流
func (h *WorkflowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateWorkflowRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	wf, err := h.svc.CreateWorkflow(r.Context(), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteData(w, r, http.StatusCreated, wf)
}

// HandleImport 导入文档。format=yaml 或 Content-Type 含 yaml 时按 YAML 解析
func (h *WorkflowHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" && strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = "yaml"
	}
	wf, err := h.svc.Import(r.Context(), data, format)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteData(w, r, http.StatusCreated, wf)
}

// HandleGet 获取工作流
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wf, err := h.svc.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, wf)
}

// HandleUpdate 修改名称或描述
func (h *WorkflowHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateWorkflowRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	wf, err := h.svc.UpdateWorkflow(r.Context(), r.PathValue("id"), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, wf)
}

// HandleDelete 删除工作流及其版本、执行记录与会话
func (h *WorkflowHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExport 以附件形式返回可移植文档
func (h *WorkflowHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		data     []byte
		filename string
		err      error
		ctype    = "application/json"
	)
	switch r.URL.Query().Get("format") {
	case "yaml", "yml":
		data, err = h.svc.ExportYAML(r.Context(), id)
		if err == nil {
			var wf *workflow.Workflow
			if wf, err = h.svc.GetWorkflow(r.Context(), id); err == nil {
				filename = strings.TrimSuffix(workflow.ExportFilename(wf.Name), ".json") + ".yaml"
			}
		}
		ctype = "application/yaml"
	default:
		data, filename, err = h.svc.Export(r.Context(), id)
	}
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleLint 返回静态检查结果
func (h *WorkflowHandler) HandleLint(w http.ResponseWriter, r *http.Request) {
	issues, err := h.svc.Lint(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if issues == nil {
		issues = []workflow.Issue{}
	}
	WriteSuccess(w, r, api.LintResponse{Issues: issues})
}

// HandleAutoLayout 重新排列节点位置
func (h *WorkflowHandler) HandleAutoLayout(w http.ResponseWriter, r *http.Request) {
	wf, err := h.svc.AutoLayout(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, wf)
}

// --- 节点与连线 ---

// HandleAddNode 添加节点
func (h *WorkflowHandler) HandleAddNode(w http.ResponseWriter, r *http.Request) {
	var req service.AddNodeRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	node, err := h.svc.AddNode(r.Context(), r.PathValue("id"), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteData(w, r, http.StatusCreated, node)
}

// HandleUpdateNode 修改节点位置或数据
func (h *WorkflowHandler) HandleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateNodeRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	node, err := h.svc.UpdateNode(r.Context(), r.PathValue("id"), r.PathValue("nodeId"), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, node)
}

// HandleDeleteNode 删除节点及其连线
func (h *WorkflowHandler) HandleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNode(r.Context(), r.PathValue("id"), r.PathValue("nodeId")); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddConnection 添加连线
func (h *WorkflowHandler) HandleAddConnection(w http.ResponseWriter, r *http.Request) {
	var req service.AddConnectionRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	conn, err := h.svc.AddConnection(r.Context(), r.PathValue("id"), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteData(w, r, http.StatusCreated, conn)
}

// HandleDeleteConnection 删除连线
func (h *WorkflowHandler) HandleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteConnection(r.Context(), r.PathValue("id"), r.PathValue("connId")); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- 剪贴板与历史 ---

// HandleCopy 复制节点
func (h *WorkflowHandler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	var req api.CopyRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	n, err := h.svc.Copy(r.Context(), r.PathValue("id"), req.NodeIDs)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.CopyResponse{Copied: n})
}

// HandlePaste 粘贴剪贴板内容
func (h *WorkflowHandler) HandlePaste(w http.ResponseWriter, r *http.Request) {
	sel, pasted, err := h.svc.Paste(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	resp := api.PasteResponse{Pasted: pasted, Nodes: sel.Nodes, Connections: sel.Connections}
	if resp.Nodes == nil {
		resp.Nodes = []workflow.Node{}
	}
	if resp.Connections == nil {
		resp.Connections = []workflow.Connection{}
	}
	WriteSuccess(w, r, resp)
}

// HandleUndo 撤销
func (h *WorkflowHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	h.travel(w, r, h.svc.Undo)
}

// HandleRedo 重做
func (h *WorkflowHandler) HandleRedo(w http.ResponseWriter, r *http.Request) {
	h.travel(w, r, h.svc.Redo)
}

func (h *WorkflowHandler) travel(w http.ResponseWriter, r *http.Request,
	step func(context.Context, string) (*workflow.Workflow, bool, error)) {
	id := r.PathValue("id")
	wf, applied, err := step(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	status, err := h.svc.HistoryStatus(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.HistoryResponse{Applied: applied, Workflow: wf, History: status})
}

// HandleHistory 返回撤销栈状态
func (h *WorkflowHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.HistoryStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, status)
}

// HandleCloseSession 释放编辑会话（历史与剪贴板）
func (h *WorkflowHandler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	closed := h.svc.CloseSession(r.PathValue("id"))
	WriteSuccess(w, r, map[string]bool{"closed": closed})
}
