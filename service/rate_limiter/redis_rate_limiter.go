/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的分布式限流实现，多实例部署时共享钉钉接口调用配额
 * @architecture 工具层 - 提供分布式限流能力
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow Lua脚本原子计数 -> 超限返回剩余毫秒 -> 睡眠剩余窗口+50ms后重试
 * @rules 使用Redis INCR和PEXPIRE实现固定窗口计数；Redis异常时不阻塞同步
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/init.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dingtalk-sync-service/service/meta"

	"github.com/go-redis/redis/v8"
)

// acquireScript 窗口内未超限则计数并返回 {1, count, ttl}，否则返回 {0, count, ttl}
const acquireScript = `
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	if current >= max_requests then
		local ttl = redis.call('PTTL', key)
		if ttl < 0 then
			ttl = window_ms
		end
		return {0, current, ttl}
	end

	local new_count = redis.call('INCR', key)
	if new_count == 1 then
		redis.call('PEXPIRE', key, window_ms)
	end

	local ttl = redis.call('PTTL', key)
	if ttl < 0 then
		ttl = window_ms
	end

	return {1, new_count, ttl}
`

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client   *redis.Client
	observer WaitObserver
}

// NewRedisRateLimiter 创建Redis限流器
func NewRedisRateLimiter(client *redis.Client, observer WaitObserver) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		observer: observer,
	}
}

// Acquire 获取一次调用许可
func (r *RedisRateLimiter) Acquire(ctx context.Context, key string, limit int, window time.Duration) error {
	if limit <= 0 {
		limit = meta.DefaultRateLimit
	}
	if window <= 0 {
		window = meta.DefaultRateWindow
	}

	for {
		allowed, ttl, err := r.tryAcquire(ctx, key, limit, window)
		if err != nil {
			// Redis 不可用时放行，由钉钉侧限流错误兜底
			slog.Warn("Redis限流检查失败，放行本次调用", "bucket", key, "error", err)
			return nil
		}
		if allowed {
			return nil
		}

		wait := ttl + meta.RateLimitSafetyGap
		slog.Debug("钉钉接口限流等待", "bucket", key, "wait", wait, "backend", "redis")
		if r.observer != nil {
			r.observer(key, wait)
		}
		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) tryAcquire(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	result, err := r.client.Eval(ctx, acquireScript, []string{r.buildRateLimitKey(key)}, limit, window.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("限流检查失败: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, fmt.Errorf("限流脚本返回格式异常: %v", result)
	}
	allowed, _ := values[0].(int64)
	ttl, _ := values[2].(int64)
	return allowed == 1, time.Duration(ttl) * time.Millisecond, nil
}

// buildRateLimitKey 构造限流Key
func (r *RedisRateLimiter) buildRateLimitKey(key string) string {
	return fmt.Sprintf("dingtalk_sync:rate_limit:%s", key)
}

// Close 关闭Redis客户端
func (r *RedisRateLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
