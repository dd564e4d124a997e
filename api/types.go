package api

import (
	"github.com/BaSui01/agentcanvas/workflow"
	"github.com/BaSui01/agentcanvas/workflow/history"
)

// =============================================================================
// 画布编辑
// =============================================================================

// CopyRequest 复制节点到剪贴板
type CopyRequest struct {
	NodeIDs []string `json:"nodeIds"`
}

// CopyResponse 复制结果
type CopyResponse struct {
	Copied int `json:"copied"`
}

// PasteResponse 粘贴结果，剪贴板为空时 Pasted 为 false
type PasteResponse struct {
	Pasted      bool                  `json:"pasted"`
	Nodes       []workflow.Node       `json:"nodes"`
	Connections []workflow.Connection `json:"connections"`
}

// HistoryResponse 撤销/重做结果
type HistoryResponse struct {
	// Applied 为 false 表示没有可撤销或重做的步骤，工作流未变化
	Applied  bool               `json:"applied"`
	Workflow *workflow.Workflow `json:"workflow"`
	History  history.Status     `json:"history"`
}

// LintResponse 检查结果
type LintResponse struct {
	Issues []workflow.Issue `json:"issues"`
}

// =============================================================================
// 模板与版本
// =============================================================================

// InstantiateRequest 从模板创建工作流
type InstantiateRequest struct {
	Name string `json:"name,omitempty"`
}

// TagRequest 给版本打标签
type TagRequest struct {
	Tag string `json:"tag"`
}

// =============================================================================
// 执行
// =============================================================================

// ExecuteRequest 启动一次执行
type ExecuteRequest struct {
	Input string `json:"input"`
}

// ResumeRequest 对等待审批的执行做出决定
type ResumeRequest struct {
	Approved  bool   `json:"approved"`
	Comment   string `json:"comment,omitempty"`
	DecidedBy string `json:"decidedBy,omitempty"`
}

// StreamMessage 是 WebSocket 执行流中的一帧
type StreamMessage struct {
	// Type: update 为执行快照，error 为启动失败
	Type      string                      `json:"type"`
	Execution *workflow.WorkflowExecution `json:"execution,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// =============================================================================
// MCP
// =============================================================================

// ToolCallRequest 直接调用 MCP 工具
type ToolCallRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// ToolCallResponse 工具调用结果
type ToolCallResponse struct {
	Result any `json:"result"`
}
