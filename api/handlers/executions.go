package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/api"
	"github.com/BaSui01/agentcanvas/service"
	"github.com/BaSui01/agentcanvas/workflow"
)

// streamWriteTimeout 限制单帧写入时长，慢客户端不会无限拖住执行
const streamWriteTimeout = 5 * time.Second

// ExecutionHandler 运行工作流、恢复审批并查询执行记录
type ExecutionHandler struct {
	svc            *service.Service
	logger         *zap.Logger
	originPatterns []string
}

// NewExecutionHandler 创建执行处理器。originPatterns 为 WebSocket 允许的跨域来源
func NewExecutionHandler(svc *service.Service, logger *zap.Logger, originPatterns ...string) *ExecutionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionHandler{
		svc:            svc,
		logger:         logger.With(zap.String("handler", "executions")),
		originPatterns: originPatterns,
	}
}

// Register 挂载路由
func (h *ExecutionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", h.HandleExecute)
	mux.HandleFunc("GET /api/v1/workflows/{id}/executions", h.HandleList)
	mux.HandleFunc("GET /api/v1/workflows/{id}/stream", h.HandleStream)
	mux.HandleFunc("GET /api/v1/executions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/executions/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/v1/executions/{id}/resume", h.HandleResume)
}

// HandleExecute 同步运行工作流。运行失败体现在执行记录的 status 中，仍返回 200
func (h *ExecutionHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecuteRequest
	if !decodeOptionalJSON(w, r, &req, h.logger) {
		return
	}
	exec, err := h.svc.Execute(r.Context(), r.PathValue("id"), req.Input, nil)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, exec)
}

func (h *ExecutionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListExecutions(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if list == nil {
		list = []*workflow.WorkflowExecution{}
	}
	WriteSuccess(w, r, list)
}

func (h *ExecutionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	exec, err := h.svc.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, exec)
}

func (h *ExecutionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteExecution(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResume 回答处于 paused 状态的审批节点
func (h *ExecutionHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	var req api.ResumeRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	decision := workflow.ApprovalDecision{
		Approved:  req.Approved,
		Comment:   req.Comment,
		DecidedBy: req.DecidedBy,
	}
	if decision.DecidedBy == "" {
		decision.DecidedBy = userFromRequest(r)
	}
	exec, err := h.svc.Resume(r.Context(), r.PathValue("id"), decision, nil)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, exec)
}

// HandleStream 升级为 WebSocket，按步推送执行快照。
// 每一步发送一帧 {"type":"update"}，最后一帧为终态（或 paused）。
// 客户端断开即取消执行。
func (h *ExecutionHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 只写不读；CloseRead 处理控制帧，并在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	input := r.URL.Query().Get("input")
	workflowID := r.PathValue("id")

	send := func(msg api.StreamMessage) error {
		wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, msg)
	}

	var writeErr error
	exec, err := h.svc.Execute(ctx, workflowID, input, func(e *workflow.WorkflowExecution) {
		if writeErr != nil {
			return
		}
		if writeErr = send(api.StreamMessage{Type: "update", Execution: e}); writeErr != nil {
			h.logger.Debug("stream write failed", zap.String("workflow_id", workflowID), zap.Error(writeErr))
		}
	})
	if err != nil {
		_ = send(api.StreamMessage{Type: "error", Execution: exec, Error: err.Error()})
		conn.Close(websocket.StatusInternalError, "execution failed")
		return
	}
	if writeErr == nil {
		// 最终快照在保存后发送，与 GET /executions/{id} 一致
		_ = send(api.StreamMessage{Type: "update", Execution: exec})
	}
	conn.Close(websocket.StatusNormalClosure, string(exec.Status))
}
