/*
Package cache 提供基于 go-redis v9 的缓存管理。

Manager 为所有键统一加前缀，提供字符串与 JSON 读写、批量删除和
后台健康检查。当前主要用于房间排名状态的短 TTL 缓存：

	cm, err := cache.NewManager(cfg, logger)
	_ = cm.SetJSON(ctx, "status:1", statuses, 5*time.Second)

未命中时返回 ErrCacheMiss，可用 IsCacheMiss 判断。
*/
package cache
