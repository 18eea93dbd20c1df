/*
Package main 提供 Expoflow 服务端程序入口。

# 概述

cmd/expoflow 是事件问答服务的可执行入口，提供 HTTP/WebSocket API、
审计库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集与 OpenTelemetry 追踪。

# 核心类型

  - Server     — 主服务器，装配组件并管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（审计库迁移）、version、health
  - 装配顺序：Redis → 语义缓存/会话记忆 → 路由器/Agent 注册表 →
    审计记录器 → 编排器 → 接口层
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、MetricsMiddleware、RateLimiter（基于 IP）；
    管理端点另加 JWTAuth（HS256 Bearer）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP/Metrics → 停止后台循环 →
    审计队列排空 → 断开 Redis → 遥测刷出
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
