// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package store 提供工作流与执行记录的持久化。

# 实现

  - Memory — 进程内 map，默认驱动
  - Gorm   — gorm 仓储，支持 sqlite（glebarez 纯 Go 驱动）、postgres、mysql
  - Redis  — go-redis v9，JSON 文档加有序集合索引，执行记录可设置过期时间

三种实现满足同一组契约：Get 返回深拷贝；执行记录按 startedAt 倒序列出；
找不到时返回 WORKFLOW_NOT_FOUND / EXECUTION_NOT_FOUND，其余失败包装为 STORAGE_ERROR。
*/
package store
