// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理画布 API 的 HTTP/HTTPS 服务器生命周期。

Manager 封装 net/http.Server：Listen 绑定地址（配置证书时包装为 TLS
监听），Run 阻塞服务直到 ctx 取消并在 ShutdownTimeout 内优雅关闭，
便于与 errgroup 组合。
*/
package server
