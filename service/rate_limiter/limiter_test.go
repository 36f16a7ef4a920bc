/*
 * @module service/rate_limiter/limiter_test
 * @description 进程内滑动窗口限流器单元测试
 * @architecture 测试层
 * @documentReference ai_docs/dingtalk_sync.md
 */

package rate_limiter

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newTestLimiter(observer WaitObserver) (*SlidingWindowLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)}
	limiter := NewSlidingWindowLimiter(observer)
	limiter.now = clock.Now
	limiter.sleep = clock.Sleep
	return limiter, clock
}

func TestSlidingWindowLimiter_WithinLimit(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, limiter.Acquire(ctx, "default:attendance", 15, time.Second))
	}
	assert.Empty(t, clock.sleeps, "窗口内未超限不应等待")
}

func TestSlidingWindowLimiter_WaitsRemainingWindowPlusGap(t *testing.T) {
	var observed []time.Duration
	limiter, clock := newTestLimiter(func(key string, wait time.Duration) {
		assert.Equal(t, "default:roster-info", key)
		observed = append(observed, wait)
	})
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, "default:roster-info", 2, time.Second))
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, limiter.Acquire(ctx, "default:roster-info", 2, time.Second))

	// 第三次超限，需要等待 1s - 300ms + 50ms
	require.NoError(t, limiter.Acquire(ctx, "default:roster-info", 2, time.Second))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 750*time.Millisecond, clock.sleeps[0])
	assert.Equal(t, clock.sleeps, observed)

	// 等待后窗口已过期并翻转，本窗口已计入一次
	require.NoError(t, limiter.Acquire(ctx, "default:roster-info", 2, time.Second))
	assert.Len(t, clock.sleeps, 1)
}

func TestSlidingWindowLimiter_WindowExpires(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, "k", 1, time.Second))
	clock.Advance(time.Second)
	require.NoError(t, limiter.Acquire(ctx, "k", 1, time.Second))
	assert.Empty(t, clock.sleeps, "窗口过期后应直接放行")
}

func TestSlidingWindowLimiter_BucketsAreIndependent(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, BucketKey("a", "attendance"), 1, time.Second))
	require.NoError(t, limiter.Acquire(ctx, BucketKey("b", "attendance"), 1, time.Second))
	require.NoError(t, limiter.Acquire(ctx, BucketKey("a", "dimission-list"), 1, time.Second))
	assert.Empty(t, clock.sleeps)
}

func TestSlidingWindowLimiter_ContextCancelled(t *testing.T) {
	limiter, _ := newTestLimiter(nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, limiter.Acquire(ctx, "k", 1, time.Second))
	cancel()
	err := limiter.Acquire(ctx, "k", 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSlidingWindowLimiter_Defaults(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, limiter.Acquire(ctx, "k", 0, 0))
	}
	assert.Empty(t, clock.sleeps)
	require.NoError(t, limiter.Acquire(ctx, "k", 0, 0))
	assert.Len(t, clock.sleeps, 1)
}

func TestSlidingWindowLimiter_Concurrent(t *testing.T) {
	limiter := NewSlidingWindowLimiter(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Acquire(ctx, "concurrent", 100, time.Second))
		}()
	}
	wg.Wait()

	state := limiter.buckets["concurrent"]
	require.NotNil(t, state)
	assert.Equal(t, 20, state.count)
}

func TestSlidingWindowLimiter_ConcurrentWaitersRespectLimit(t *testing.T) {
	limiter := NewSlidingWindowLimiter(nil)
	ctx := context.Background()
	const (
		callers = 10
		limit   = 2
		window  = 100 * time.Millisecond
	)

	var mu sync.Mutex
	var granted []time.Time
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Acquire(ctx, "default:attendance", limit, window))
			mu.Lock()
			granted = append(granted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, granted, callers)
	sort.Slice(granted, func(i, j int) bool { return granted[i].Before(granted[j]) })

	// 任意一个窗口长度内的放行次数不超过 limit
	for i := range granted {
		inWindow := 0
		for j := i; j < len(granted) && granted[j].Sub(granted[i]) < window; j++ {
			inWindow++
		}
		assert.LessOrEqual(t, inWindow, limit, "第 %d 次放行所在窗口超限", i)
	}
	// 10 次调用、每窗口 2 次，至少跨越 4 个完整窗口
	assert.GreaterOrEqual(t, granted[len(granted)-1].Sub(granted[0]), 4*window)
}

func TestSlidingWindowLimiter_WakeDoesNotResetActiveWindow(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, "k", 1, time.Second))
	// 另一调用方在窗口翻转后先行取得许可
	clock.Advance(time.Second)
	require.NoError(t, limiter.Acquire(ctx, "k", 1, time.Second))

	// 窗口已满，再次获取必须等待到下一个窗口
	require.NoError(t, limiter.Acquire(ctx, "k", 1, time.Second))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, time.Second+50*time.Millisecond, clock.sleeps[0])
	assert.Equal(t, 1, limiter.buckets["k"].count)
}
