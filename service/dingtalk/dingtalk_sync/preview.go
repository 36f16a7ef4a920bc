package dingtalk_sync

import (
	"context"
	"strings"

	"dingtalk-sync-service/service/dingtalk/dingtalk_mapper"
	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"

	"github.com/spf13/cast"
)

// DefaultAttendancePreviewLimit 考勤预览默认条数
const DefaultAttendancePreviewLimit = 200

// PreviewResult 实时预览结果，Items 为截断后的数据，Total 为截断前的数量
type PreviewResult struct {
	Items []map[string]interface{} `json:"items"`
	Limit int                      `json:"limit"`
	Total int                      `json:"total"`
}

func newPreviewResult(items []map[string]interface{}, limit int) *PreviewResult {
	total := len(items)
	if limit <= 0 || limit > total {
		limit = total
	}
	if items == nil {
		items = []map[string]interface{}{}
	}
	return &PreviewResult{Items: items[:limit], Limit: limit, Total: total}
}

// PreviewDepartments 实时拉取钉钉部门树，不落库；失败按部门同步记录台账
func (s *SyncService) PreviewDepartments(ctx context.Context, config *models.DingTalkConfig, rootDeptID int64, limit int) (*PreviewResult, error) {
	if rootDeptID <= 0 {
		rootDeptID = meta.DingTalkRootDepartmentID
	}
	started := s.now()
	client, err := s.newClient(config)
	if err != nil {
		return nil, s.fail(ctx, config, meta.SyncOperationSyncDepartments, started, err, nil)
	}
	depts, err := client.ListDepartments(ctx, rootDeptID)
	if err != nil {
		return nil, s.fail(ctx, config, meta.SyncOperationSyncDepartments, started, err, nil)
	}
	return newPreviewResult(depts, limit), nil
}

// PreviewUsers 实时拉取钉钉用户，keyword 对姓名、手机号、userid、邮箱做不区分大小写的包含匹配
func (s *SyncService) PreviewUsers(ctx context.Context, config *models.DingTalkConfig, keyword string, limit int) (*PreviewResult, error) {
	started := s.now()
	client, err := s.newClient(config)
	if err != nil {
		return nil, s.fail(ctx, config, meta.SyncOperationSyncUsers, started, err, nil)
	}
	depts, err := client.ListDepartments(ctx, meta.DingTalkRootDepartmentID)
	if err != nil {
		return nil, s.fail(ctx, config, meta.SyncOperationSyncUsers, started, err, nil)
	}

	seen := make(map[int64]struct{}, len(depts))
	deptIDs := make([]int64, 0, len(depts))
	for _, dept := range depts {
		id, err := cast.ToInt64E(firstPresent(dept, "dept_id", "id"))
		if err != nil || id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deptIDs = append(deptIDs, id)
	}
	if len(deptIDs) == 0 {
		deptIDs = []int64{meta.DingTalkRootDepartmentID}
	}

	users, err := client.ListAllUsers(ctx, deptIDs)
	if err != nil {
		return nil, s.fail(ctx, config, meta.SyncOperationSyncUsers, started, err, nil)
	}

	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword != "" {
		filtered := make([]map[string]interface{}, 0, len(users))
		for _, user := range users {
			for _, key := range []string{"name", "mobile", "userid", "email"} {
				if strings.Contains(strings.ToLower(cast.ToString(user[key])), keyword) {
					filtered = append(filtered, user)
					break
				}
			}
		}
		users = filtered
	}
	return newPreviewResult(users, limit), nil
}

// PreviewAttendance 实时拉取并映射考勤记录，不落库；limit<=0 表示不截断
func (s *SyncService) PreviewAttendance(ctx context.Context, config *models.DingTalkConfig, params AttendanceParams, limit int) ([]models.DingTalkAttendanceRecord, error) {
	operation := meta.SyncOperationSyncAttendance
	started := s.now()
	if params.Start.After(params.End) {
		return nil, s.fail(ctx, config, operation, started, newStartAfterEndError(), nil)
	}

	userIDs, explicit, err := s.resolveAttendanceUsers(ctx, config, params.UserIDs)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	if explicit && len(userIDs) == 0 {
		return []models.DingTalkAttendanceRecord{}, nil
	}
	if !explicit {
		userIDs, err = s.localUserIDs(ctx, config)
		if err != nil {
			return nil, s.fail(ctx, config, operation, started, err, nil)
		}
	}
	if len(userIDs) == 0 {
		return []models.DingTalkAttendanceRecord{}, nil
	}

	client, err := s.newClient(config)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	payloads, err := client.ListAttendanceRecords(ctx, userIDs, params.Start, params.End)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	if limit > 0 && len(payloads) > limit {
		payloads = payloads[:limit]
	}

	records := make([]models.DingTalkAttendanceRecord, 0, len(payloads))
	for _, payload := range payloads {
		records = append(records, dingtalk_mapper.MapAttendance(config.ID, payload))
	}
	return records, nil
}
