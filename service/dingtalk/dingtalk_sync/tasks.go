/*
 * @module service/dingtalk/dingtalk_sync/tasks
 * @description 供调度器与命令行调用的同步任务入口
 * @architecture 分层架构 - 任务层
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 加载配置 -> 按操作顺序依次同步 -> 汇总结果
 * @rules 计划同步中单个操作失败不影响其余操作，失败已由同步服务记入台账；
 *        考勤窗口取 schedule.attendance_window 天，默认1天
 * @dependencies log/slog
 * @refs service/scheduler, cmd/dingtalk-sync
 */

package dingtalk_sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dingtalk-sync-service/service/meta"
)

// ScheduledResult 计划同步中单个操作的结果
type ScheduledResult struct {
	Operation string      `json:"operation"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// scheduleOrder 计划同步的执行顺序
var scheduleOrder = []string{
	meta.ScheduleOperationDepartments,
	meta.ScheduleOperationUsers,
	meta.ScheduleOperationAttendance,
	meta.ScheduleOperationDimission,
}

// RunScheduledSync 执行计划同步，operations 取 departments/users/attendance/dimission，
// 无论传入顺序均按部门、用户、考勤、离职的顺序执行
func (s *SyncService) RunScheduledSync(ctx context.Context, configID string, operations []string) ([]ScheduledResult, error) {
	config, err := s.store.LoadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]struct{}, len(operations))
	for _, operation := range operations {
		requested[operation] = struct{}{}
	}

	var results []ScheduledResult
	var errs []error
	for _, operation := range scheduleOrder {
		if _, ok := requested[operation]; !ok {
			continue
		}

		var result interface{}
		var runErr error
		switch operation {
		case meta.ScheduleOperationDepartments:
			result, runErr = s.SyncDepartments(ctx, config, meta.SyncModeFull)
		case meta.ScheduleOperationUsers:
			result, runErr = s.SyncUsers(ctx, config, meta.SyncModeFull)
		case meta.ScheduleOperationAttendance:
			end := s.now()
			start := end.AddDate(0, 0, -config.AttendanceWindowDays())
			result, runErr = s.SyncAttendance(ctx, config, AttendanceParams{Start: start, End: end, Mode: meta.SyncModeIncremental})
		case meta.ScheduleOperationDimission:
			result, runErr = s.SyncDimissionUsers(ctx, config, meta.SyncModeFull)
		}

		item := ScheduledResult{Operation: operation, Result: result}
		if runErr != nil {
			item.Error = runErr.Error()
			errs = append(errs, fmt.Errorf("%s: %w", operation, runErr))
		}
		results = append(results, item)
	}

	slog.Info("钉钉计划同步完成", "config_id", configID, "operations", operations, "failed", len(errs))
	return results, errors.Join(errs...)
}

// SyncDepartmentsTask 部门同步任务
func (s *SyncService) SyncDepartmentsTask(ctx context.Context, configID, mode string) (*SyncResult, error) {
	config, err := s.store.LoadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	result, err := s.SyncDepartments(ctx, config, mode)
	if err != nil {
		return nil, err
	}
	slog.Info("钉钉部门同步任务完成", "config_id", configID, "count", result.Count)
	return result, nil
}

// SyncUsersTask 用户同步任务
func (s *SyncService) SyncUsersTask(ctx context.Context, configID, mode string) (*SyncResult, error) {
	config, err := s.store.LoadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	result, err := s.SyncUsers(ctx, config, mode)
	if err != nil {
		return nil, err
	}
	slog.Info("钉钉用户同步任务完成", "config_id", configID, "count", result.Count)
	return result, nil
}

// SyncAttendanceTask 考勤同步任务，end 缺省为当前时间，start 缺省为 end 前一天；
// userIDs 为 nil 时同步本地全部用户
func (s *SyncService) SyncAttendanceTask(ctx context.Context, configID string, start, end *time.Time, userIDs []string) (*AttendanceResult, error) {
	config, err := s.store.LoadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	windowEnd := s.now()
	if end != nil {
		windowEnd = *end
	}
	windowStart := windowEnd.AddDate(0, 0, -1)
	if start != nil {
		windowStart = *start
	}

	result, err := s.SyncAttendance(ctx, config, AttendanceParams{Start: windowStart, End: windowEnd, UserIDs: userIDs})
	if err != nil {
		return nil, err
	}
	slog.Info("钉钉考勤同步任务完成", "config_id", configID, "start", windowStart, "end", windowEnd, "count", result.Count)
	return result, nil
}

// FullSyncTask 全量同步任务
func (s *SyncService) FullSyncTask(ctx context.Context, configID string) (*FullSyncResult, error) {
	config, err := s.store.LoadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	result, err := s.FullSync(ctx, config)
	if err != nil {
		return nil, err
	}
	slog.Info("钉钉全量同步任务完成", "config_id", configID, "dept_count", result.DeptCount, "user_count", result.UserCount)
	return result, nil
}
