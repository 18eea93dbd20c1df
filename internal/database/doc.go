// Package database 管理审计落盘用的关系型数据库连接。
//
// Open 按配置驱动（sqlite/mysql/postgres）建立 GORM 连接，
// PoolManager 维护连接池参数与后台健康检查。
package database
