package dingtalk_sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dingtalk-sync-service/service/models"

	"gorm.io/gorm"
)

// SnapshotQuery 本地快照查询条件
type SnapshotQuery struct {
	ConfigID string
	// Keyword 模糊匹配姓名/手机号/userid（部门匹配名称）
	Keyword  string
	UserID   string
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

func (q SnapshotQuery) keywordPattern() string {
	return "%" + strings.ToLower(strings.TrimSpace(q.Keyword)) + "%"
}

func paginate[T any](db *gorm.DB, page, pageSize int, order string, what string) ([]T, int64, error) {
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计%s失败: %w", what, err)
	}

	page, pageSize = normalizePage(page, pageSize)
	var items []T
	if err := db.Order(order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("查询%s失败: %w", what, err)
	}
	return items, total, nil
}

// ListDepartmentSnapshots 分页查询部门快照
func (s *Store) ListDepartmentSnapshots(ctx context.Context, query SnapshotQuery) ([]models.DingTalkDepartment, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.DingTalkDepartment{}).Where("config_id = ?", query.ConfigID)
	if strings.TrimSpace(query.Keyword) != "" {
		db = db.Where("LOWER(name) LIKE ?", query.keywordPattern())
	}
	return paginate[models.DingTalkDepartment](db, query.Page, query.PageSize, "dept_id", "部门快照")
}

// ListUserSnapshots 分页查询用户快照
func (s *Store) ListUserSnapshots(ctx context.Context, query SnapshotQuery) ([]models.DingTalkUser, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.DingTalkUser{}).Where("config_id = ?", query.ConfigID)
	if strings.TrimSpace(query.Keyword) != "" {
		pattern := query.keywordPattern()
		db = db.Where("LOWER(name) LIKE ? OR mobile LIKE ? OR LOWER(userid) LIKE ?", pattern, pattern, pattern)
	}
	return paginate[models.DingTalkUser](db, query.Page, query.PageSize, "userid", "用户快照")
}

// ListDimissionSnapshots 分页查询离职人员快照，按离职时间倒序
func (s *Store) ListDimissionSnapshots(ctx context.Context, query SnapshotQuery) ([]models.DingTalkDimissionUser, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.DingTalkDimissionUser{}).Where("config_id = ?", query.ConfigID)
	if strings.TrimSpace(query.Keyword) != "" {
		pattern := query.keywordPattern()
		db = db.Where("LOWER(name) LIKE ? OR mobile LIKE ? OR LOWER(userid) LIKE ?", pattern, pattern, pattern)
	}
	return paginate[models.DingTalkDimissionUser](db, query.Page, query.PageSize, "leave_time DESC, userid", "离职人员快照")
}

// ListAttendanceSnapshots 分页查询考勤记录，按打卡时间倒序
func (s *Store) ListAttendanceSnapshots(ctx context.Context, query SnapshotQuery) ([]models.DingTalkAttendanceRecord, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.DingTalkAttendanceRecord{}).Where("config_id = ?", query.ConfigID)
	if query.UserID != "" {
		db = db.Where("userid = ?", query.UserID)
	}
	if query.Start != nil {
		db = db.Where("user_check_time >= ?", *query.Start)
	}
	if query.End != nil {
		db = db.Where("user_check_time <= ?", *query.End)
	}
	return paginate[models.DingTalkAttendanceRecord](db, query.Page, query.PageSize, "user_check_time DESC", "考勤记录")
}
