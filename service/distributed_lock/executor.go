package distributed_lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LockExecutor 带锁执行器
type LockExecutor struct {
	lock DistributedLock
}

// NewLockExecutor 创建带锁执行器
func NewLockExecutor(lock DistributedLock) *LockExecutor {
	return &LockExecutor{lock: lock}
}

// Run 获取锁后执行 fn，锁被其他持有者占用时跳过并返回 acquired=false。
// refreshInterval 大于0时在执行期间按间隔续期。
func (e *LockExecutor) Run(ctx context.Context, key string, ttl, refreshInterval time.Duration, fn func(ctx context.Context) error) (acquired bool, err error) {
	acquired, err = e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}
	if !acquired {
		slog.Debug("分布式锁: 锁已被其他实例持有，跳过执行", "key", key)
		return false, nil
	}

	// 调用方取消后仍需释放锁
	releaseCtx := context.WithoutCancel(ctx)
	defer func() {
		if unlockErr := e.lock.Unlock(releaseCtx, key); unlockErr != nil {
			slog.Error("分布式锁: 释放锁失败", "key", key, "error", unlockErr)
		}
	}()

	if refreshInterval > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go e.keepAlive(releaseCtx, key, ttl, refreshInterval, stop)
	}

	return true, fn(ctx)
}

func (e *LockExecutor) keepAlive(ctx context.Context, key string, ttl, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := e.lock.Refresh(ctx, key, ttl); err != nil {
				slog.Error("分布式锁: 续期失败", "key", key, "error", err)
			}
		}
	}
}
