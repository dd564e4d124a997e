// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
工作流执行、画布编辑操作以及 MCP / LLM 外部调用。

# 概述

Collector 使用 promauto 注册到默认 Registry，所有指标按 namespace
隔离。Collector 实现 workflow.Recorder，可直接交给 Executor；
同时满足 mcp.CallRecorder 与 llm 的请求记录接口。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx
  - 执行指标：按最终状态统计运行次数与耗时，按节点类型统计节点执行
  - 编辑指标：canvas_operations_total，按操作名与结果分组
  - 外部调用：MCP 工具调用与 LLM 请求的次数和耗时
*/
package metrics
