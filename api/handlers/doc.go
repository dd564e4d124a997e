// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentCanvas HTTP API 的请求处理器实现。

# 概述

每个 Handler 通过 Register(mux) 把路由挂到标准库 http.ServeMux
（Go 1.22 方法 + 路径模式）。业务逻辑全部委托给 service.Service
与 mcp.Registry，处理器只负责解码、调用与响应包装。

# 核心类型

  - WorkflowHandler  — 工作流 CRUD、导入导出、节点连线编辑、剪贴板与撤销重做
  - VersionHandler   — 版本快照的创建、比较、打标签、删除与恢复
  - ExecutionHandler — 同步执行、审批恢复、执行记录，以及 WebSocket 执行流
  - TemplateHandler  — 内置模板目录与实例化
  - MCPHandler       — MCP 服务器注册、工具列表、直接调用与熔断状态
  - HealthHandler    — /health、/ready、/version 与可插拔 HealthCheck

# 响应约定

  - WriteSuccess / WriteData / WriteError 输出统一 Response 结构
  - StatusForCode 把 types.ErrorCode 映射为 HTTP 状态码
  - 非 *types.Error 的错误一律返回 INTERNAL_ERROR，不暴露原始信息
  - DecodeJSONBody 限制 4 MB 请求体并拒绝未知字段
*/
package handlers
