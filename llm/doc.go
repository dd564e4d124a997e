// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package llm 提供 agent 节点使用的文本生成后端，实现 workflow.TextGenerator。

# 后端

  - EchoGenerator    — 离线回显，CLI 与测试默认使用
  - StaticGenerator  — 固定回复
  - OpenAIGenerator  — OpenAI 兼容的 /v1/chat/completions 接口

# 包装器

  - WithRateLimit — 基于 golang.org/x/time/rate 的令牌桶限流
  - WithRetry     — 对可重试错误做指数退避重试（cenkalti/backoff）

New 按 Config.Provider 组装后端与包装器。
*/
package llm
