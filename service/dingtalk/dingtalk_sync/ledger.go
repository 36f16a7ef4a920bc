/*
 * @module service/dingtalk/dingtalk_sync/ledger
 * @description 同步台账：追加同步日志、更新配置上的同步汇总、日志分页查询
 * @architecture 仓储层 - 基于GORM
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 同步结束 -> 追加一条日志 -> 按统计字段更新汇总
 * @rules 日志只追加；汇总中的各类型数量取自统计中的 *_count 字段，各类型同步时间仅在成功时更新
 * @dependencies gorm.io/gorm
 * @refs service/models/dingtalk_sync_log.go, service/models/dingtalk_config.go
 */

package dingtalk_sync

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// messageMaxLength 日志消息列长度
const messageMaxLength = 512

// Ledger 同步台账
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedger 创建同步台账
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Entry 同步日志内容
type Entry struct {
	ConfigID  string
	Operation string
	Status    string
	Level     string
	Message   string
	Detail    string
	Stats     map[string]interface{}
}

// Append 追加一条同步日志
func (l *Ledger) Append(ctx context.Context, entry Entry) (*models.DingTalkSyncLog, error) {
	if entry.Level == "" {
		entry.Level = meta.SyncLevelInfo
	}
	stats := models.JSONB{}
	for key, value := range entry.Stats {
		stats[key] = value
	}

	log := &models.DingTalkSyncLog{
		ConfigID:  entry.ConfigID,
		Operation: entry.Operation,
		Status:    entry.Status,
		Level:     entry.Level,
		Message:   truncateRunes(entry.Message, messageMaxLength),
		Detail:    entry.Detail,
		Stats:     stats,
		CreatedAt: l.now(),
	}
	if err := l.db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, fmt.Errorf("写入同步日志失败: %w", err)
	}
	return log, nil
}

// Rollup 配置同步汇总
type Rollup struct {
	Status             string
	Message            string
	Stats              map[string]interface{}
	UserSyncTime       *time.Time
	DeptSyncTime       *time.Time
	AttendanceSyncTime *time.Time
	DimissionSyncTime  *time.Time
}

// UpdateRollup 更新配置的同步汇总字段，同时回写内存中的配置
func (l *Ledger) UpdateRollup(ctx context.Context, config *models.DingTalkConfig, rollup Rollup) error {
	now := l.now()
	message := truncateRunes(rollup.Message, messageMaxLength)
	updates := map[string]interface{}{
		"last_sync_time":    now,
		"last_sync_status":  rollup.Status,
		"last_sync_message": message,
	}
	config.LastSyncTime = &now
	config.LastSyncStatus = rollup.Status
	config.LastSyncMessage = message

	counts := []struct {
		key    string
		column string
		target *int
	}{
		{"user_count", "last_user_sync_count", &config.LastUserSyncCount},
		{"dept_count", "last_dept_sync_count", &config.LastDeptSyncCount},
		{"attendance_count", "last_attendance_sync_count", &config.LastAttendanceSyncCount},
		{"dimission_count", "last_dimission_sync_count", &config.LastDimissionSyncCount},
	}
	for _, item := range counts {
		value, ok := rollup.Stats[item.key]
		if !ok {
			continue
		}
		count := cast.ToInt(value)
		updates[item.column] = count
		*item.target = count
	}

	times := []struct {
		column string
		value  *time.Time
		target **time.Time
	}{
		{"last_user_sync_time", rollup.UserSyncTime, &config.LastUserSyncTime},
		{"last_dept_sync_time", rollup.DeptSyncTime, &config.LastDeptSyncTime},
		{"last_attendance_sync_time", rollup.AttendanceSyncTime, &config.LastAttendanceSyncTime},
		{"last_dimission_sync_time", rollup.DimissionSyncTime, &config.LastDimissionSyncTime},
	}
	for _, item := range times {
		if item.value == nil {
			continue
		}
		updates[item.column] = *item.value
		*item.target = item.value
	}

	err := l.db.WithContext(ctx).Model(&models.DingTalkConfig{}).Where("id = ?", config.ID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新同步汇总失败: %w", err)
	}
	return nil
}

// LogQuery 同步日志查询条件
type LogQuery struct {
	ConfigID  string
	Operation string
	Status    string
	Level     string
	Page      int
	PageSize  int
}

// ListLogs 分页查询同步日志，按创建时间倒序
func (l *Ledger) ListLogs(ctx context.Context, query LogQuery) ([]models.DingTalkSyncLog, int64, error) {
	db := l.db.WithContext(ctx).Model(&models.DingTalkSyncLog{})
	if query.ConfigID != "" {
		db = db.Where("config_id = ?", query.ConfigID)
	}
	if query.Operation != "" {
		db = db.Where("operation = ?", query.Operation)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.Level != "" {
		db = db.Where("level = ?", query.Level)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计同步日志失败: %w", err)
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	var logs []models.DingTalkSyncLog
	err := db.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询同步日志失败: %w", err)
	}
	return logs, total, nil
}

// GetLog 获取单条同步日志
func (l *Ledger) GetLog(ctx context.Context, id string) (*models.DingTalkSyncLog, error) {
	var log models.DingTalkSyncLog
	if err := l.db.WithContext(ctx).First(&log, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("获取同步日志失败: %w", err)
	}
	return &log, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}

func truncateRunes(value string, size int) string {
	if utf8.RuneCountInString(value) <= size {
		return value
	}
	runes := []rune(value)
	return string(runes[:size])
}
