/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、路由、语义缓存、Agent、会话与数据库六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 路由指标：决策计数与置信度分布，按 agent/used_context 分组。
  - 语义缓存指标：命中与未命中计数，按 agent 分组。
  - Agent 指标：调用总数与耗时，按 agent/status 分组。
  - 会话指标：活跃会话 Gauge、空闲清理计数、审计队列丢弃计数。
  - 数据库指标：活跃/空闲连接数 Gauge，按 database 分组。
*/
package metrics
