// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package mcp 管理画布可调用的 MCP（Model Context Protocol）服务器与工具。

Registry 负责服务器连接、工具发现与调用：工具参数按 JSON Schema 校验，
每个服务器各有一个熔断器。NodeCaller 把 Registry 适配为 workflow.ToolCaller，
供 mcp 节点在执行时按服务器 ID 或名称调用。

内置的 SimulatedInvoker 对 filesystem、memory、database、web 几类服务器
返回固定的模拟结果，不发起任何网络或进程调用。
*/
package mcp
