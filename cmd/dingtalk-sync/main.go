// dingtalk-sync 对单个配置执行一次钉钉同步并输出结果。
//
//	dingtalk-sync -config default -operation sync_users
//	dingtalk-sync -operation sync_attendance -start "2025-10-01 00:00:00" -end "2025-10-02 00:00:00" -users u1,u2
//
// 考勤同步未指定 -start/-end 时同步最近一天。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dingtalk-sync-service/cmd/internal/bootstrap"
	"dingtalk-sync-service/service/dingtalk/dingtalk_mapper"
	"dingtalk-sync-service/service/dingtalk/dingtalk_sync"
	"dingtalk-sync-service/service/meta"

	"github.com/juju/gnuflag"
)

func main() {
	var (
		configID  string
		operation string
		mode      string
		start     string
		end       string
		users     string
		timeout   time.Duration
	)

	flags := gnuflag.NewFlagSet("dingtalk-sync", gnuflag.ExitOnError)
	flags.StringVar(&configID, "config", meta.DingTalkDefaultConfigID, "配置ID")
	flags.StringVar(&operation, "operation", meta.SyncOperationFullSync, "同步操作: test_connection/sync_departments/sync_users/sync_dimission_users/sync_attendance/full_sync")
	flags.StringVar(&mode, "mode", meta.SyncModeFull, "同步模式: full/incremental")
	flags.StringVar(&start, "start", "", "考勤开始时间")
	flags.StringVar(&end, "end", "", "考勤结束时间")
	flags.StringVar(&users, "users", "", "考勤用户ID，逗号分隔")
	flags.DurationVar(&timeout, "timeout", 2*time.Hour, "执行超时")
	if err := flags.Parse(true, os.Args[1:]); err != nil {
		os.Exit(2)
	}

	params := dingtalk_sync.RunParams{Mode: mode, UserIDs: bootstrap.SplitList(users)}
	if start != "" {
		parsed, ok := dingtalk_mapper.ParseDateTime(start)
		if !ok {
			fmt.Fprintf(os.Stderr, "start 时间格式错误: %s\n", start)
			os.Exit(2)
		}
		params.Start = &parsed
	}
	if end != "" {
		parsed, ok := dingtalk_mapper.ParseDateTime(end)
		if !ok {
			fmt.Fprintf(os.Stderr, "end 时间格式错误: %s\n", end)
			os.Exit(2)
		}
		params.End = &parsed
	}

	env, err := bootstrap.Load()
	if err != nil {
		slog.Error("初始化失败", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := run(ctx, env.SyncService(), operation, configID, params)
	if err != nil {
		slog.Error("同步失败", "config_id", configID, "operation", operation, "error", err)
		env.Close()
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		slog.Error("输出结果失败", "error", err)
	}
}

func run(ctx context.Context, service *dingtalk_sync.SyncService, operation, configID string, params dingtalk_sync.RunParams) (interface{}, error) {
	switch operation {
	case meta.SyncOperationSyncDepartments:
		return service.SyncDepartmentsTask(ctx, configID, params.Mode)
	case meta.SyncOperationSyncUsers:
		return service.SyncUsersTask(ctx, configID, params.Mode)
	case meta.SyncOperationSyncAttendance:
		return service.SyncAttendanceTask(ctx, configID, params.Start, params.End, params.UserIDs)
	case meta.SyncOperationFullSync:
		return service.FullSyncTask(ctx, configID)
	}
	return service.Run(ctx, operation, configID, params)
}
