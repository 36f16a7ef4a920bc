/*
 * @module service/cleanup/log_cleanup_service
 * @description 保留期清理服务，定期删除过期的钉钉同步日志与考勤快照
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 定时触发 -> 计算截止时间 -> 按表删除 -> 记录结果
 * @rules 日志只整行删除不修改；保留天数小于等于0表示不清理该表；
 *        部门、用户、离职快照由同步对账维护，不参与保留期清理
 * @dependencies gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/init.go, service/models/dingtalk_sync_log.go
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dingtalk-sync-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	// DefaultSyncLogRetentionDays 同步日志默认保留天数
	DefaultSyncLogRetentionDays = 90
	// DefaultAttendanceRetentionDays 考勤快照默认保留天数，0 表示永久保留
	DefaultAttendanceRetentionDays = 0
	// DefaultCleanupCron 默认每天凌晨3点执行
	DefaultCleanupCron = "0 0 3 * * *"
)

// RetentionPolicy 保留策略
type RetentionPolicy struct {
	SyncLogDays    int
	AttendanceDays int
	CronExpr       string
}

// CleanupResult 单次清理结果
type CleanupResult struct {
	SyncLogsDeleted   int64 `json:"sync_logs_deleted"`
	AttendanceDeleted int64 `json:"attendance_deleted"`
}

// LogCleanupService 保留期清理服务
type LogCleanupService struct {
	db      *gorm.DB
	policy  RetentionPolicy
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	now     func() time.Time
}

// NewLogCleanupService 创建清理服务实例
func NewLogCleanupService(db *gorm.DB, policy RetentionPolicy) *LogCleanupService {
	if policy.CronExpr == "" {
		policy.CronExpr = DefaultCleanupCron
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &LogCleanupService{
		db:     db,
		policy: policy,
		cron:   cron.New(cron.WithSeconds()),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// CleanupExpired 按保留策略清理一次
func (s *LogCleanupService) CleanupExpired(ctx context.Context) (*CleanupResult, error) {
	startTime := s.now()
	result := &CleanupResult{}

	deleted, err := s.deleteBefore(ctx, &models.DingTalkSyncLog{}, "created_at", s.policy.SyncLogDays)
	if err != nil {
		return result, fmt.Errorf("清理同步日志失败: %w", err)
	}
	result.SyncLogsDeleted = deleted

	deleted, err = s.deleteBefore(ctx, &models.DingTalkAttendanceRecord{}, "user_check_time", s.policy.AttendanceDays)
	if err != nil {
		return result, fmt.Errorf("清理考勤快照失败: %w", err)
	}
	result.AttendanceDeleted = deleted

	slog.Info("保留期清理完成",
		"sync_logs_deleted", result.SyncLogsDeleted,
		"attendance_deleted", result.AttendanceDeleted,
		"duration_ms", s.now().Sub(startTime).Milliseconds())
	return result, nil
}

func (s *LogCleanupService) deleteBefore(ctx context.Context, model interface{}, column string, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	slog.Debug("清理过期数据", "column", column, "cutoff", cutoff.Format(time.DateTime), "retention_days", retentionDays)

	result := s.db.WithContext(ctx).Where(column+" < ?", cutoff).Delete(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StartScheduledCleanup 启动定时清理任务
func (s *LogCleanupService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("保留期清理调度器已经启动")
	}

	_, err := s.cron.AddFunc(s.policy.CronExpr, func() {
		if _, err := s.CleanupExpired(s.ctx); err != nil {
			slog.Error("定时保留期清理失败", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加定时清理任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true
	slog.Info("保留期清理调度器启动成功",
		"cron", s.policy.CronExpr,
		"sync_log_days", s.policy.SyncLogDays,
		"attendance_days", s.policy.AttendanceDays)
	return nil
}

// StopScheduledCleanup 停止定时清理任务
func (s *LogCleanupService) StopScheduledCleanup() {
	if !s.started {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false

	slog.Info("保留期清理调度器已停止")
}
