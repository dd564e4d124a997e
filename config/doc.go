// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package config 提供 AgentCanvas 的配置管理。

配置按 默认值 → YAML 文件 → 环境变量（前缀 AGENTCANVAS）的顺序叠加，
嵌套结构体的 env 标签以下划线拼接，例如 AGENTCANVAS_STORE_REDIS_ADDR。

Reloader 通过 FileWatcher 轮询配置文件，校验通过后原子替换当前配置，
并同步更新 zap 的动态日志级别。Sanitized 输出脱敏后的配置视图。
*/
package config
