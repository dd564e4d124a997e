// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package service 是画布编辑与执行的应用层，组合 workflow 子包与 store。

# 概述

Service 对外提供工作流的增删改查、节点与连线编辑、自动布局、撤销重做、
复制粘贴、版本快照以及执行与审批恢复。每个修改操作在应用变更之前
先把当前工作流写入该工作流会话的历史栈，然后通过 store 持久化。

# 并发

同一工作流的修改操作按工作流 id 串行执行；不同工作流互不阻塞。
执行（Execute / Resume）基于工作流快照运行，不持有编辑锁。
*/
package service
