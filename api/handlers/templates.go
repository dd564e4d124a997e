package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/api"
	"github.com/BaSui01/agentcanvas/service"
	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

// TemplateHandler 提供内置模板目录与实例化
type TemplateHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewTemplateHandler 创建模板处理器
func NewTemplateHandler(svc *service.Service, logger *zap.Logger) *TemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateHandler{svc: svc, logger: logger.With(zap.String("handler", "templates"))}
}

// Register 挂载路由
func (h *TemplateHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/templates", h.HandleList)
	mux.HandleFunc("GET /api/v1/templates/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/templates/{id}/instantiate", h.HandleInstantiate)
}

// HandleList 列出模板。支持 category、q（搜索）与 popular（按使用量取前 N 个）
func (h *TemplateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var list []*workflow.Template
	switch {
	case q.Get("q") != "":
		list = workflow.SearchTemplates(q.Get("q"))
	case q.Get("category") != "":
		list = workflow.TemplatesByCategory(workflow.TemplateCategory(q.Get("category")))
	case q.Get("popular") != "":
		n, err := intQuery(r, "popular")
		if err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		list = workflow.PopularTemplates(n)
	default:
		list = workflow.Templates()
	}
	if list == nil {
		list = []*workflow.Template{}
	}
	WriteSuccess(w, r, list)
}

// HandleGet 获取单个模板
func (h *TemplateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tpl, ok := workflow.TemplateByID(r.PathValue("id"))
	if !ok {
		WriteError(w, r, types.Errorf(types.ErrTemplateNotFound, "Template %s not found", r.PathValue("id")), h.logger)
		return
	}
	WriteSuccess(w, r, tpl)
}

// HandleInstantiate 以模板创建新工作流
func (h *TemplateHandler) HandleInstantiate(w http.ResponseWriter, r *http.Request) {
	var req api.InstantiateRequest
	if !decodeOptionalJSON(w, r, &req, h.logger) {
		return
	}
	wf, err := h.svc.CreateFromTemplate(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteData(w, r, http.StatusCreated, wf)
}
