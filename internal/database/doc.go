// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 封装 gorm 连接池，供 store 包的 SQL 仓储使用。

Pool 统一设置最大连接数、空闲回收与连接生命周期；可选的后台
探活在 Close 时停止。Tx 执行单次事务，TxRetry 对锁冲突与连接中断
按指数退避重试。
*/
package database
