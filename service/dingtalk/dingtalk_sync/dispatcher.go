package dingtalk_sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dingtalk-sync-service/service/meta"
)

var (
	// ErrUnsupportedOperation 不支持的同步操作
	ErrUnsupportedOperation = errors.New("暂不支持的操作")
	// ErrAttendanceWindowRequired 考勤同步缺少时间窗口
	ErrAttendanceWindowRequired = errors.New("请提供 start 与 end 时间")
)

// RunParams 同步命令参数
type RunParams struct {
	Mode  string     `json:"mode"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
	// UserIDs 为 nil 表示未指定
	UserIDs []string `json:"userIds"`
}

// Run 按操作类型执行一次同步，参数校验错误不写台账
func (s *SyncService) Run(ctx context.Context, operation, configID string, params RunParams) (interface{}, error) {
	if !meta.IsValidSyncOperation(operation) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, operation)
	}
	if operation == meta.SyncOperationSyncAttendance && (params.Start == nil || params.End == nil) {
		return nil, ErrAttendanceWindowRequired
	}

	config, err := s.store.LoadConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	switch operation {
	case meta.SyncOperationTestConnection:
		return s.TestConnection(ctx, config)
	case meta.SyncOperationSyncDepartments:
		return s.SyncDepartments(ctx, config, params.Mode)
	case meta.SyncOperationSyncUsers:
		return s.SyncUsers(ctx, config, params.Mode)
	case meta.SyncOperationSyncDimissionUsers:
		return s.SyncDimissionUsers(ctx, config, params.Mode)
	case meta.SyncOperationSyncAttendance:
		return s.SyncAttendance(ctx, config, AttendanceParams{
			Start:   *params.Start,
			End:     *params.End,
			Mode:    params.Mode,
			UserIDs: params.UserIDs,
		})
	case meta.SyncOperationFullSync:
		return s.FullSync(ctx, config)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, operation)
}
