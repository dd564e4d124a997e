// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化，为工作流执行器提供
// TracerProvider。遥测禁用时不连接任何外部服务。
package telemetry
