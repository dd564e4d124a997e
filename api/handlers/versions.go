package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/api"
	"github.com/BaSui01/agentcanvas/service"
)

// VersionHandler 管理工作流版本快照
type VersionHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewVersionHandler 创建版本处理器
func NewVersionHandler(svc *service.Service, logger *zap.Logger) *VersionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VersionHandler{svc: svc, logger: logger.With(zap.String("handler", "versions"))}
}

// Register 挂载路由
func (h *VersionHandler) Register(mux *http.ServeMux) {
	const base = "/api/v1/workflows/{id}/versions"
	mux.HandleFunc("GET "+base, h.HandleList)
	mux.HandleFunc("POST "+base, h.HandleCreate)
	mux.HandleFunc("GET "+base+"/compare", h.HandleCompare)
	mux.HandleFunc("GET "+base+"/{version}", h.HandleGet)
	mux.HandleFunc("DELETE "+base+"/{version}", h.HandleDelete)
	mux.HandleFunc("POST "+base+"/{version}/restore", h.HandleRestore)
	mux.HandleFunc("POST "+base+"/{version}/tags", h.HandleTag)
}

func (h *VersionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, list)
}

func (h *VersionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateVersionRequest
	if !decodeOptionalJSON(w, r, &req, h.logger) {
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = userFromRequest(r)
	}
	v, err := h.svc.CreateVersion(r.Context(), r.PathValue("id"), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteData(w, r, http.StatusCreated, v)
}

func (h *VersionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	n, err := intPathValue(r, "version")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	v, err := h.svc.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, v)
}

// HandleCompare 比较 ?from= 与 ?to= 两个版本
func (h *VersionHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	from, err := intQuery(r, "from")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	to, err := intQuery(r, "to")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	cmp, err := h.svc.CompareVersions(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, cmp)
}

func (h *VersionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	n, err := intPathValue(r, "version")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if err := h.svc.DeleteVersion(r.Context(), r.PathValue("id"), n); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRestore 用快照覆盖当前工作流，返回恢复后的工作流
func (h *VersionHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	n, err := intPathValue(r, "version")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	wf, err := h.svc.RestoreVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, wf)
}

func (h *VersionHandler) HandleTag(w http.ResponseWriter, r *http.Request) {
	n, err := intPathValue(r, "version")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	var req api.TagRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if err := h.svc.TagVersion(r.Context(), r.PathValue("id"), n, req.Tag); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	v, err := h.svc.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, v)
}
