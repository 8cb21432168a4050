/*
包 migration 管理 Agora 的版本化数据库 Schema，基于 golang-migrate，
支持 PostgreSQL、MySQL 与 SQLite。

# 概述

迁移 SQL 通过 embed.FS 内嵌在二进制中，按方言分目录存放
（migrations/postgres、migrations/mysql、migrations/sqlite）。
表结构与 store 包的 GORM 模型一一对应，生产环境用
`agora migrate up` 建表，开发环境也可以直接打开 database.auto_migrate。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、DownAll、Goto、Force、
    Version、Status、Info
  - CLI：终端输出层，状态列用 lipgloss 着色
  - NewMigratorFromDatabaseConfig：从 config.DatabaseConfig 构造连接 URL

SQLite 迁移走 golang-migrate 的 sqlite3 驱动（需要 CGO），
服务本身使用纯 Go 的 glebarez/sqlite，两者不冲突。
*/
package migration
