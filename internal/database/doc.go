/*
包 database 负责打开 Agora 的关系库并管理连接池。

Open 按 database.driver 选择 GORM 方言（postgres、mysql、sqlite），
GORM 日志转发到 zap。PoolManager 设置连接池参数，后台定时探活，
并把打开/空闲连接数上报给 metrics.Collector。

SQLite 只允许一个打开的连接，PoolConfigFrom 会强制 MaxOpenConns=1。
*/
package database
