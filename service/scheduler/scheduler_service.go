/**
 * @module SchedulerService
 * @description 钉钉计划同步调度器，按配置中的 schedule.cron 定时执行同步
 * @architecture 基于robfig/cron的调度器模式
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 加载启用配置 -> 注册Cron任务 -> 触发 -> 加锁执行同步
 * @rules 使用6段(含秒)Cron表达式；同一配置同一操作同时只允许一个实例执行；
 *        配置变更后调用 ReloadConfig 重新注册
 * @dependencies github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/dingtalk/dingtalk_sync/tasks.go
 */

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"
)

// ConfigSource 调度器读取配置的接口
type ConfigSource interface {
	EnabledConfigs(ctx context.Context) ([]models.DingTalkConfig, error)
	GetConfig(ctx context.Context, id string) (*models.DingTalkConfig, error)
}

// ScheduledEntry 已注册的计划任务
type ScheduledEntry struct {
	ConfigID  string `json:"config_id"`
	Operation string `json:"operation"`
	CronExpr  string `json:"cron_expr"`
	EntryID   int    `json:"entry_id"`
}

// SchedulerService 调度器服务
type SchedulerService struct {
	configs  ConfigSource
	executor *TaskExecutor
	cron     *cron.Cron
	mu       sync.Mutex
	entries  map[string][]ScheduledEntry // configID -> entries
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSchedulerService 创建调度器服务
func NewSchedulerService(configs ConfigSource, executor *TaskExecutor) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())

	return &SchedulerService{
		configs:  configs,
		executor: executor,
		cron:     cron.New(cron.WithSeconds()),
		entries:  make(map[string][]ScheduledEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动调度器
func (s *SchedulerService) Start() error {
	slog.Info("启动钉钉计划同步调度器")

	s.cron.Start()

	if err := s.loadScheduledTasks(); err != nil {
		slog.Error("加载计划同步任务失败", "error", err)
		return err
	}

	slog.Info("钉钉计划同步调度器启动完成")
	return nil
}

// Stop 停止调度器，等待执行中的任务结束
func (s *SchedulerService) Stop() {
	slog.Info("停止钉钉计划同步调度器")

	s.cancel()
	<-s.cron.Stop().Done()

	slog.Info("钉钉计划同步调度器已停止")
}

// loadScheduledTasks 为所有启用的配置注册计划任务
func (s *SchedulerService) loadScheduledTasks() error {
	configs, err := s.configs.EnabledConfigs(s.ctx)
	if err != nil {
		return fmt.Errorf("获取启用的钉钉配置失败: %w", err)
	}

	total := 0
	for i := range configs {
		total += s.register(&configs[i])
	}

	slog.Info("加载计划同步任务完成", "configs", len(configs), "entries", total)
	return nil
}

// ReloadConfig 重新注册指定配置的计划任务，配置不存在或已禁用时仅移除
func (s *SchedulerService) ReloadConfig(ctx context.Context, configID string) error {
	s.remove(configID)

	config, err := s.configs.GetConfig(ctx, configID)
	if err != nil {
		return fmt.Errorf("获取钉钉配置失败: %w", err)
	}
	if !config.Enabled {
		return nil
	}
	s.register(config)
	return nil
}

// Entries 返回已注册的计划任务
func (s *SchedulerService) Entries() []ScheduledEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []ScheduledEntry
	for _, entries := range s.entries {
		result = append(result, entries...)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ConfigID != result[j].ConfigID {
			return result[i].ConfigID < result[j].ConfigID
		}
		return result[i].Operation < result[j].Operation
	})
	return result
}

func (s *SchedulerService) register(config *models.DingTalkConfig) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	configID := config.ID
	added := 0
	for operation, expr := range config.CronExpressions() {
		if !isScheduleOperation(operation) {
			slog.Warn("忽略不支持的计划同步操作", "config_id", configID, "operation", operation)
			continue
		}

		op := operation
		entryID, err := s.cron.AddFunc(expr, func() {
			s.executeScheduledTask(configID, op)
		})
		if err != nil {
			slog.Error("添加Cron任务失败", "config_id", configID, "operation", operation, "cron", expr, "error", err)
			continue
		}

		s.entries[configID] = append(s.entries[configID], ScheduledEntry{
			ConfigID:  configID,
			Operation: operation,
			CronExpr:  expr,
			EntryID:   int(entryID),
		})
		added++
		slog.Info("添加Cron任务", "config_id", configID, "operation", operation, "cron", expr)
	}
	return added
}

func (s *SchedulerService) remove(configID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries[configID] {
		s.cron.Remove(cron.EntryID(entry.EntryID))
	}
	delete(s.entries, configID)
}

// executeScheduledTask 执行计划同步
func (s *SchedulerService) executeScheduledTask(configID, operation string) {
	slog.Info("触发计划同步", "config_id", configID, "operation", operation)

	if _, err := s.executor.Execute(s.ctx, configID, operation); err != nil {
		slog.Error("计划同步失败", "config_id", configID, "operation", operation, "error", err)
	}
}

func isScheduleOperation(operation string) bool {
	switch operation {
	case meta.ScheduleOperationDepartments,
		meta.ScheduleOperationUsers,
		meta.ScheduleOperationAttendance,
		meta.ScheduleOperationDimission:
		return true
	}
	return false
}
