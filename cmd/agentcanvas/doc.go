// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentCanvas 可执行入口。

# 概述

cmd/agentcanvas 基于 urfave/cli 组织子命令：serve 启动画布 HTTP API，
其余命令在本地直接处理工作流文件，不依赖运行中的服务。配置按
默认值 → YAML 文件 → AGENTCANVAS_* 环境变量 → 命令行参数 的顺序合并。

# 子命令

  - serve     — HTTP API、WebSocket 执行流、/metrics、探针，支持 TLS 与配置热重载
  - run       — 导入工作流文件并按每个 --input 执行一次（errgroup 限并发）
  - validate  — 结构校验与 Lint，--strict 时警告也视为失败
  - layout    — 自动布局后输出
  - templates — 以表格列出内置模板
  - new       — 从模板生成工作流文件
  - convert   — JSON 与 YAML 互转
  - version / health

# 中间件链

Recovery → RequestID → SecurityHeaders → OTelTracing（启用遥测时）→
RequestLogger（同时记录 Prometheus 指标）→ CORS → RateLimiter（基于 IP）→
APIKeyAuth（X-API-Key）→ JWTAuth（HS256 / RS256）。探针与 /metrics 免认证。
*/
package main
