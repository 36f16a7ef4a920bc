package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dingtalk-sync-service/service/dingtalk/dingtalk_sync"
	"dingtalk-sync-service/service/distributed_lock"
)

const (
	// DefaultLockTTL 计划同步锁过期时间
	DefaultLockTTL = 10 * time.Minute
	// DefaultLockRefreshInterval 计划同步锁续期间隔
	DefaultLockRefreshInterval = 3 * time.Minute
	// DefaultTaskTimeout 单次计划同步的超时时间
	DefaultTaskTimeout = 2 * time.Hour
)

// SyncRunner 计划同步执行入口
type SyncRunner interface {
	RunScheduledSync(ctx context.Context, configID string, operations []string) ([]dingtalk_sync.ScheduledResult, error)
}

// TaskExecutor 任务执行器，在分布式锁保护下执行计划同步，并限制并发数
type TaskExecutor struct {
	runner     SyncRunner
	executor   *distributed_lock.LockExecutor
	workerPool chan struct{}
	timeout    time.Duration
}

// NewTaskExecutor 创建任务执行器实例
func NewTaskExecutor(runner SyncRunner, lock distributed_lock.DistributedLock, maxWorkers int) *TaskExecutor {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &TaskExecutor{
		runner:     runner,
		executor:   distributed_lock.NewLockExecutor(lock),
		workerPool: make(chan struct{}, maxWorkers),
		timeout:    DefaultTaskTimeout,
	}
}

// Execute 执行一次计划同步；锁被其他实例持有时跳过并返回 false
func (e *TaskExecutor) Execute(ctx context.Context, configID, operation string) (bool, error) {
	select {
	case e.workerPool <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-e.workerPool }()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	key := distributed_lock.SyncLockKey(configID, operation)
	executed, err := e.executor.Run(ctx, key, DefaultLockTTL, DefaultLockRefreshInterval, func(ctx context.Context) error {
		started := time.Now()
		results, err := e.runner.RunScheduledSync(ctx, configID, []string{operation})
		slog.Info("计划同步执行结束",
			"config_id", configID,
			"operation", operation,
			"results", len(results),
			"duration", time.Since(started).String(),
			"error", err)
		return err
	})
	if err != nil {
		return executed, fmt.Errorf("计划同步执行失败 [%s]: %w", key, err)
	}
	if !executed {
		slog.Info("计划同步已在其他实例执行，跳过", "config_id", configID, "operation", operation)
	}
	return executed, nil
}
