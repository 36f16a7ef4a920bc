/*
 * @module service/rate_limiter/limiter
 * @description 钉钉接口调用限流，按 "配置ID:接口桶" 维度的滑动窗口限流
 * @architecture 工具层 - 提供进程内与分布式两种限流实现
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 获取许可 -> 窗口内未超限则计数 -> 超限则睡眠剩余窗口+50ms -> 重新竞争（窗口过期时翻转）
 * @rules 互斥锁只保护桶状态，不跨越网络调用；限流只会阻塞，不会返回限流错误
 * @dependencies sync, time
 * @refs service/dingtalk/dingtalk_client
 */

package rate_limiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dingtalk-sync-service/service/meta"
)

// Limiter 限流器接口
type Limiter interface {
	// Acquire 获取一次调用许可，窗口内已满时阻塞等待；只有 ctx 取消才会返回错误
	Acquire(ctx context.Context, key string, limit int, window time.Duration) error
}

// WaitObserver 限流等待回调，用于指标统计
type WaitObserver func(key string, wait time.Duration)

// BucketKey 构造限流桶 key
func BucketKey(configID, bucket string) string {
	return configID + ":" + bucket
}

type windowState struct {
	windowStart time.Time
	count       int
}

// SlidingWindowLimiter 进程内滑动窗口限流器
type SlidingWindowLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*windowState
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	observer WaitObserver
}

// NewSlidingWindowLimiter 创建进程内限流器
func NewSlidingWindowLimiter(observer WaitObserver) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		buckets:  make(map[string]*windowState),
		now:      time.Now,
		sleep:    sleepContext,
		observer: observer,
	}
}

// Acquire 获取一次调用许可
func (l *SlidingWindowLimiter) Acquire(ctx context.Context, key string, limit int, window time.Duration) error {
	if limit <= 0 {
		limit = meta.DefaultRateLimit
	}
	if window <= 0 {
		window = meta.DefaultRateWindow
	}

	for {
		wait := l.reserve(key, limit, window)
		if wait <= 0 {
			return nil
		}

		slog.Debug("钉钉接口限流等待", "bucket", key, "wait", wait)
		if l.observer != nil {
			l.observer(key, wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve 尝试在当前窗口内计数，返回需要等待的时长（0 表示已获得许可）；
// 窗口只在已过期时翻转，等待后重新竞争的调用方不会清掉他人刚取得的许可
func (l *SlidingWindowLimiter) reserve(key string, limit int, window time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.buckets[key]
	if !ok {
		state = &windowState{windowStart: now}
		l.buckets[key] = state
	}

	elapsed := now.Sub(state.windowStart)
	if elapsed >= window {
		state.windowStart = now
		state.count = 0
		elapsed = 0
	}

	if state.count < limit {
		state.count++
		return 0
	}
	return window - elapsed + meta.RateLimitSafetyGap
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
