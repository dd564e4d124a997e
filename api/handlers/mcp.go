package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/api"
	"github.com/BaSui01/agentcanvas/mcp"
	"github.com/BaSui01/agentcanvas/types"
)

// MCPHandler 管理 MCP 服务器注册表
type MCPHandler struct {
	registry *mcp.Registry
	logger   *zap.Logger
}

// NewMCPHandler 创建 MCP 处理器
func NewMCPHandler(registry *mcp.Registry, logger *zap.Logger) *MCPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPHandler{registry: registry, logger: logger.With(zap.String("handler", "mcp"))}
}

// Register 挂载路由。{id} 接受服务器 ID 或名称
func (h *MCPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/mcp/servers", h.HandleListServers)
	mux.HandleFunc("POST /api/v1/mcp/servers", h.HandleConnect)
	mux.HandleFunc("GET /api/v1/mcp/servers/{id}", h.HandleGetServer)
	mux.HandleFunc("DELETE /api/v1/mcp/servers/{id}", h.HandleDisconnect)
	mux.HandleFunc("GET /api/v1/mcp/servers/{id}/tools", h.HandleServerTools)
	mux.HandleFunc("POST /api/v1/mcp/servers/{id}/tools/{tool}/call", h.HandleCallTool)
	mux.HandleFunc("GET /api/v1/mcp/tools", h.HandleAllTools)
	mux.HandleFunc("GET /api/v1/mcp/breakers", h.HandleBreakers)
}

func (h *MCPHandler) HandleListServers(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.registry.Servers())
}

func (h *MCPHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req mcp.ConnectRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	s, err := h.registry.ConnectServer(r.Context(), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteData(w, r, http.StatusCreated, s)
}

func (h *MCPHandler) HandleGetServer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.server(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, r, s)
}

func (h *MCPHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.server(w, r)
	if !ok {
		return
	}
	if err := h.registry.DisconnectServer(s.ID); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MCPHandler) HandleServerTools(w http.ResponseWriter, r *http.Request) {
	s, ok := h.server(w, r)
	if !ok {
		return
	}
	tools := h.registry.ToolsByServer(s.ID)
	if tools == nil {
		tools = []mcp.Tool{}
	}
	WriteSuccess(w, r, tools)
}

func (h *MCPHandler) HandleAllTools(w http.ResponseWriter, r *http.Request) {
	tools := h.registry.AllTools()
	if tools == nil {
		tools = []mcp.Tool{}
	}
	WriteSuccess(w, r, tools)
}

// HandleCallTool 直接调用某服务器上的工具，参数按工具 schema 校验
func (h *MCPHandler) HandleCallTool(w http.ResponseWriter, r *http.Request) {
	s, ok := h.server(w, r)
	if !ok {
		return
	}
	var req api.ToolCallRequest
	if !decodeOptionalJSON(w, r, &req, h.logger) {
		return
	}
	result, err := h.registry.CallServerTool(r.Context(), s.ID, r.PathValue("tool"), req.Arguments)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.ToolCallResponse{Result: result})
}

// HandleBreakers 返回每个已连接服务器的熔断状态
func (h *MCPHandler) HandleBreakers(w http.ResponseWriter, r *http.Request) {
	states := h.registry.BreakerStates()
	out := make(map[string]string, len(states))
	for id, st := range states {
		out[id] = st.String()
	}
	WriteSuccess(w, r, out)
}

func (h *MCPHandler) server(w http.ResponseWriter, r *http.Request) (*mcp.Server, bool) {
	ref := r.PathValue("id")
	s, ok := h.registry.FindServer(ref)
	if !ok {
		WriteError(w, r, types.Errorf(types.ErrToolNotFound, "MCP server %s not found", ref), h.logger)
		return nil, false
	}
	return s, true
}
