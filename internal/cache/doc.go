/*
包 cache 提供基于 Redis 的共享访问层，供语义查询缓存与会话
记忆存储复用，支持连接池、健康检查与 JSON 序列化。

# 概述

本包封装 go-redis 客户端，为上层业务提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。

# 核心类型

  - Manager：Redis 管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete/Incr/Exists/Expire 等基础操作，
    GetJSON/SetJSON 便捷序列化方法，以及 ScanPrefix/Eval
    供相似度扫描与 Lua 原子脚本使用。
  - Config：连接配置，包含地址、密码、连接池大小、默认 TTL
    与健康检查间隔等参数。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 原子计数：Incr 用于命中计数与代际失效的纪元递增。
  - 前缀扫描：ScanPrefix 使用 SCAN 游标遍历，不阻塞 Redis。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
