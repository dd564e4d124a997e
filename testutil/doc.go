// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AgentCanvas 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的外部测试（package xxx_test）提供统一的辅助能力，
避免重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue，超时轮询等待条件满足
  - 数据工具: MustJSON / SequentialIDs

# 子包

  - testutil/mocks: workflow 协作者的 Mock 实现，包括 MockGenerator
    （文本生成）、MockToolCaller（MCP 工具调用）、MockGuardrails（护栏），
    均支持 Builder 模式、调用记录与错误注入
  - testutil/fixtures: 预置工作流图（线性、条件分支、审批、MCP、环）

# 使用示例

	gen := mocks.NewMockGenerator().WithResponse("hello")
	exec := workflow.NewExecutor(cfg, nil, workflow.WithTextGenerator(gen))
	run := exec.Execute(testutil.TestContext(t), fixtures.LinearWorkflow(), "hi", nil)
*/
package testutil
