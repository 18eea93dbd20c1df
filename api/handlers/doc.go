/*
包 handlers 实现对外 HTTP 与 WebSocket 接口的请求处理。

# 概述

各处理器只做协议层工作（解码、校验、错误映射），业务逻辑全部
委托给编排层：

  - QueryHandler：问答与 Agent 列表
  - SessionHandler：会话创建、历史查询、关闭
  - AdminHandler：缓存统计/清空/失效、Agent 数据刷新、会话清理
  - HealthHandler：组件健康检查
  - WSHandler：WebSocket 多轮对话（连接内会话粘连）

# 错误响应

所有错误统一包装为 Response{success=false, error}，HTTP 状态码
由错误码经 mapErrorCodeToHTTPStatus 映射得出。
*/
package handlers
