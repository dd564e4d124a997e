// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 用于 LLM 出站请求与 HTTPS 监听。
package tlsutil
