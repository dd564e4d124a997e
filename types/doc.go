// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentcanvas 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、mcp、llm、
api 等上层模块提供统一的类型契约。

# 核心类型

  - Message / Role    — 执行上下文中的对话消息
  - JSONSchema        — MCP 工具参数的 JSON Schema 描述与构建器
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithRequestID / WithTenantID / WithUserID / WithExecutionID
  - 错误工具链：WrapError / AsError / IsErrorCode / GetErrorCode
*/
package types
