// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package api 定义 AgentCanvas HTTP API 的请求与响应类型。

# 路由概览

所有业务端点位于 /api/v1 下，响应统一包装为
{"success", "data", "error", "timestamp", "request_id"}：

	GET    /api/v1/workflows                         列出工作流
	POST   /api/v1/workflows                         创建工作流
	POST   /api/v1/workflows/import?format=yaml      导入 JSON/YAML 文档
	GET    /api/v1/workflows/{id}/export?format=yaml 导出（附件下载）
	POST   /api/v1/workflows/{id}/nodes              添加节点
	POST   /api/v1/workflows/{id}/undo               撤销
	POST   /api/v1/workflows/{id}/execute            同步执行
	GET    /api/v1/workflows/{id}/stream?input=...   WebSocket 执行流
	POST   /api/v1/executions/{id}/resume            审批恢复
	GET    /api/v1/templates                         模板目录
	GET    /api/v1/mcp/servers                       MCP 服务器

# 认证

配置 server.api_keys 时需携带 X-API-Key 头；配置 jwt.secret 或
jwt.public_key 时需携带 Authorization: Bearer <token>。健康检查与
/metrics 不需要认证。
*/
package api
