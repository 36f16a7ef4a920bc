/*
 * @module service/rate_limiter/redis_rate_limiter_test
 * @description Redis限流器单元测试，需要可用的Redis（未配置时跳过）
 * @architecture 测试层
 * @documentReference ai_docs/dingtalk_sync.md
 */

package rate_limiter

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis 设置测试用Redis环境
func setupTestRedis(t *testing.T) *RedisRateLimiter {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("未配置 REDIS_HOST，跳过Redis限流测试")
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis不可用: %v", err)
	}

	limiter := NewRedisRateLimiter(client, nil)
	t.Cleanup(func() {
		client.Del(context.Background(), limiter.buildRateLimitKey("test:attendance"))
		limiter.Close()
	})
	return limiter
}

func TestRedisRateLimiter_TryAcquire(t *testing.T) {
	limiter := setupTestRedis(t)
	ctx := context.Background()

	allowed, _, err := limiter.tryAcquire(ctx, "test:attendance", 2, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, allowed, "第一次请求应该被允许")

	allowed, _, err = limiter.tryAcquire(ctx, "test:attendance", 2, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, allowed, "第二次请求应该被允许")

	allowed, ttl, err := limiter.tryAcquire(ctx, "test:attendance", 2, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, allowed, "第三次请求应该被限流")
	assert.True(t, ttl > 0 && ttl <= 2*time.Second, "剩余窗口应在 (0, 2s] 内")
}

func TestRedisRateLimiter_BuildKey(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, nil)
	assert.Equal(t, "dingtalk_sync:rate_limit:default:roster-info", limiter.buildRateLimitKey(BucketKey("default", "roster-info")))
}
