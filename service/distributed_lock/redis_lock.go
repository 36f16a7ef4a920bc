/*
 * @module service/distributed_lock/redis_lock
 * @description Redis分布式锁实现，用于多实例环境下钉钉计划同步防重
 * @architecture 工具层 - 提供分布式锁能力
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 获取锁 -> 执行同步 -> 释放锁/自动过期
 * @rules 使用 SET NX PX 获取锁，值为实例ID；释放与续期通过脚本校验持有者
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/init.go, service/scheduler/scheduler_service.go
 */

package distributed_lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisLockPrefix = "dingtalk_sync:lock:"

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock Redis分布式锁
type RedisLock struct {
	client *redis.Client
	// owner 锁持有者标识：主机名:进程号
	owner string
}

// NewRedisLock 创建Redis分布式锁
func NewRedisLock(client *redis.Client) *RedisLock {
	hostname, _ := os.Hostname()
	owner := fmt.Sprintf("%s:%d", hostname, os.Getpid())
	slog.Info("Redis分布式锁初始化成功", "owner", owner)

	return &RedisLock{client: client, owner: owner}
}

// TryLock 尝试获取锁
func (r *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, redisLockPrefix+key, r.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}
	if ok {
		slog.Debug("分布式锁: 获取锁", "key", key, "ttl", ttl, "owner", r.owner)
	}
	return ok, nil
}

// Unlock 释放锁，只删除当前实例持有的锁
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	released, err := releaseScript.Run(ctx, r.client, []string{redisLockPrefix + key}, r.owner).Int64()
	if err != nil {
		return fmt.Errorf("释放锁失败: %w", err)
	}
	if released == 0 {
		slog.Warn("分布式锁: 锁已过期或被其他实例持有", "key", key, "owner", r.owner)
	}
	return nil
}

// Refresh 刷新锁的过期时间
func (r *RedisLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	refreshed, err := refreshScript.Run(ctx, r.client, []string{redisLockPrefix + key}, r.owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("刷新锁失败: %w", err)
	}
	if refreshed == 0 {
		return fmt.Errorf("锁已过期或被其他实例持有: %s", key)
	}
	return nil
}

// IsLocked 检查锁是否存在
func (r *RedisLock) IsLocked(ctx context.Context, key string) (bool, error) {
	exists, err := r.client.Exists(ctx, redisLockPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("检查锁状态失败: %w", err)
	}
	return exists > 0, nil
}
