/*
 * @module service/models/dingtalk_sync_log
 * @description 钉钉同步日志（台账）与增量游标模型
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 每次同步尝试追加一条日志；游标按 (config_id, cursor_type) 单行维护
 * @rules 同步日志只追加不修改；游标每种类型仅一行
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/dingtalk/dingtalk_sync/ledger.go, service/dingtalk/dingtalk_sync/cursor.go
 */

package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSyncLogImmutable 同步日志写入后不允许修改
var ErrSyncLogImmutable = errors.New("同步日志只允许追加，不允许修改")

// DingTalkSyncLog 钉钉同步日志
type DingTalkSyncLog struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	ConfigID    string     `json:"config_id" gorm:"size:32;not null;index:idx_dingtalk_sync_log_config_created,priority:1"`
	Operation   string     `json:"operation" gorm:"size:64;not null;index" example:"sync_users"`
	Status      string     `json:"status" gorm:"size:16;not null;default:'pending'" example:"success"` // success, failed, pending
	Level       string     `json:"level" gorm:"size:16;not null;default:'info'" example:"info"`        // info, warning, error
	Message     string     `json:"message" gorm:"size:512;not null;default:''"`
	Detail      string     `json:"detail" gorm:"type:text"`
	Stats       JSONB      `json:"stats,omitempty" gorm:"type:jsonb"`
	RetryCount  int        `json:"retry_count" gorm:"not null;default:0"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index:idx_dingtalk_sync_log_config_created,priority:2"`
}

// TableName 指定表名
func (DingTalkSyncLog) TableName() string {
	return "dingtalk_sync_log"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (l *DingTalkSyncLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// BeforeUpdate GORM钩子，拒绝修改已写入的日志
func (l *DingTalkSyncLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrSyncLogImmutable
}

// DingTalkSyncCursor 钉钉增量同步游标
type DingTalkSyncCursor struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConfigID    string    `json:"config_id" gorm:"size:32;not null;uniqueIndex:uk_dingtalk_cursor_config_type"`
	CursorType  string    `json:"cursor_type" gorm:"size:32;not null;uniqueIndex:uk_dingtalk_cursor_config_type" example:"user"`
	CursorValue string    `json:"cursor_value" gorm:"size:255;not null;default:''"`
	Extra       JSONB     `json:"extra,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkSyncCursor) TableName() string {
	return "dingtalk_sync_cursor"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (c *DingTalkSyncCursor) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// DingTalkSyncEvent 同步钩子与事件推送使用的事件载荷
type DingTalkSyncEvent struct {
	Event     string                 `json:"event"` // pre_sync, post_sync, sync_failed
	ConfigID  string                 `json:"config_id"`
	Operation string                 `json:"operation"`
	Stats     map[string]interface{} `json:"stats,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
