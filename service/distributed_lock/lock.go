/*
 * @module service/distributed_lock/lock
 * @description 同步任务锁接口与锁键约定
 * @architecture 工具层 - 提供分布式锁能力
 * @documentReference ai_docs/dingtalk_sync.md
 * @rules 锁粒度为 配置ID:操作；Redis 可用时使用 RedisLock，否则使用进程内 LocalLock
 * @refs service/init.go, service/scheduler/task_executor.go
 */

package distributed_lock

import (
	"context"
	"fmt"
	"time"
)

// DistributedLock 分布式锁接口
type DistributedLock interface {
	// TryLock 尝试获取锁，锁已被持有时返回 false
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	// Refresh 刷新锁的过期时间，锁不属于当前持有者时返回错误
	Refresh(ctx context.Context, key string, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

// SyncLockKey 同步任务锁的key，同一配置同一操作同时只允许一个实例执行
func SyncLockKey(configID, operation string) string {
	return fmt.Sprintf("%s:%s", configID, operation)
}
