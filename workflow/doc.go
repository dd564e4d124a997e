// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供可视化工作流画布的图模型与执行引擎。

# 概述

workflow 包定义画布上的节点（Node）、连线（Connection）与工作流（Workflow），
并提供单路径、逐节点推进的执行器。执行过程中的每一步都会写入
WorkflowExecution 的审计日志，调用方通过 UpdateFunc 观察进度。

# 核心类型

  - Workflow / Node / Connection — 图模型，camelCase JSON 与画布互通
  - Executor                     — 执行器：Execute 运行、Resume 恢复审批
  - WorkflowExecution            — 执行记录（状态、日志、上下文变量）
  - Template                     — 内置模板目录，node-<index> 占位符实例化
  - Document                     — 导入导出的可移植文档（JSON / YAML）

# 主要能力

  - 节点类型：start、end、agent、guardrail、condition、mcp、user-approval、file-search
  - 条件分支：按 "true" / "false" 标签选择出边，未命中时走第一条出边
  - 审批模式：auto 模拟暂停后立即通过；suspend 停在审批节点等待 Resume
  - 终止保证：MaxSteps 步数上限、ctx 取消检查、panic 恢复为 failed 记录
  - 悬空图策略：DanglingFail（GRAPH_EXHAUSTED）或 DanglingComplete
  - 可观测性：OpenTelemetry span（workflow.execute / workflow.node）与 Recorder 指标

子包 expr、layout、history、clipboard、version、session 分别提供条件表达式、
自动布局、撤销重做、剪贴板、版本快照与会话管理。
*/
package workflow
