/*
 * @module service/models/dingtalk_config
 * @description 钉钉集成配置模型，兼容 default 单例，也支持多租户多配置
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 首次使用时创建 -> 凭据编辑(重置令牌) -> 每次同步更新汇总字段
 * @rules 配置不做物理删除；凭据变化时必须清空缓存令牌
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs service/dingtalk/dingtalk_sync/store.go
 */

package models

import (
	"strings"
	"time"

	"dingtalk-sync-service/service/meta"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// DingTalkConfig 钉钉集成配置
type DingTalkConfig struct {
	ID             string `json:"id" gorm:"primaryKey;size:32" example:"default"`
	Name           string `json:"name" gorm:"size:128;not null;default:''" example:"默认钉钉配置"`
	TenantID       string `json:"tenant_id" gorm:"size:128;not null;default:''"`
	AppKey         string `json:"app_key" gorm:"size:128;not null;default:''"`
	AppSecret      string `json:"-" gorm:"size:512;not null;default:''"`
	AgentID        string `json:"agent_id" gorm:"size:64;not null;default:''"`
	Enabled        bool   `json:"enabled" gorm:"not null"`
	SyncUsers      bool   `json:"sync_users" gorm:"not null"`
	SyncDepts      bool   `json:"sync_departments" gorm:"column:sync_departments;not null"`
	SyncAttendance bool   `json:"sync_attendance" gorm:"not null"`
	CallbackURL    string `json:"callback_url" gorm:"size:512;not null;default:''"`
	CallbackToken  string `json:"-" gorm:"size:128;not null;default:''"`
	CallbackAESKey string `json:"-" gorm:"column:callback_aes_key;size:128;not null;default:''"`
	Remark         string `json:"remark" gorm:"type:text"`

	AccessToken          string     `json:"-" gorm:"size:512;not null;default:''"`
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at,omitempty"`

	// 同步汇总（看板、健康检查使用）
	LastSyncTime            *time.Time `json:"last_sync_time,omitempty"`
	LastSyncStatus          string     `json:"last_sync_status" gorm:"size:32;not null;default:''"`
	LastSyncMessage         string     `json:"last_sync_message" gorm:"size:512;not null;default:''"`
	LastUserSyncTime        *time.Time `json:"last_user_sync_time,omitempty"`
	LastDeptSyncTime        *time.Time `json:"last_dept_sync_time,omitempty"`
	LastAttendanceSyncTime  *time.Time `json:"last_attendance_sync_time,omitempty"`
	LastDimissionSyncTime   *time.Time `json:"last_dimission_sync_time,omitempty"`
	LastUserSyncCount       int        `json:"last_user_sync_count" gorm:"not null;default:0"`
	LastDeptSyncCount       int        `json:"last_dept_sync_count" gorm:"not null;default:0"`
	LastAttendanceSyncCount int        `json:"last_attendance_sync_count" gorm:"not null;default:0"`
	LastDimissionSyncCount  int        `json:"last_dimission_sync_count" gorm:"not null;default:0"`

	// 运维可编辑的计划任务与选项
	Schedule JSONB `json:"schedule,omitempty" gorm:"type:jsonb"`

	CreatedBy string    `json:"created_by" gorm:"size:128;not null;default:''"`
	UpdatedBy string    `json:"updated_by" gorm:"size:128;not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkConfig) TableName() string {
	return "dingtalk_config"
}

// BeforeCreate GORM钩子，补全默认ID与名称
func (c *DingTalkConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = meta.DingTalkDefaultConfigID
	}
	if c.Name == "" {
		c.Name = meta.DingTalkDefaultConfigName
	}
	return nil
}

// HasCredentials 是否已配置 AppKey/AppSecret
func (c *DingTalkConfig) HasCredentials() bool {
	return strings.TrimSpace(c.AppKey) != "" && strings.TrimSpace(c.AppSecret) != ""
}

// TokenValidAt 缓存令牌在 now 时刻是否仍有超过 skew 的有效期
func (c *DingTalkConfig) TokenValidAt(now time.Time, skew time.Duration) bool {
	if c.AccessToken == "" || c.AccessTokenExpiresAt == nil {
		return false
	}
	return c.AccessTokenExpiresAt.Sub(now) > skew
}

// DimissionRosterFields 获取离职花名册补全字段
// 优先级：schedule.dimission_roster_fields -> fallback（环境变量）-> 内置默认值
func (c *DingTalkConfig) DimissionRosterFields(fallback []string) []string {
	if c.Schedule != nil {
		if fields := normalizeFieldCodes(c.Schedule["dimission_roster_fields"]); len(fields) > 0 {
			return fields
		}
	}
	if fields := normalizeFieldCodes(fallback); len(fields) > 0 {
		return fields
	}
	return append([]string(nil), meta.DefaultDimissionRosterFields...)
}

// AttendanceWindowDays 计划任务拉取考勤的天数窗口，默认1天
func (c *DingTalkConfig) AttendanceWindowDays() int {
	if c.Schedule == nil {
		return 1
	}
	days, err := cast.ToIntE(c.Schedule["attendance_window"])
	if err != nil || days <= 0 {
		return 1
	}
	return days
}

// CronExpressions 计划任务表达式，key 为 departments/users/attendance/dimission
func (c *DingTalkConfig) CronExpressions() map[string]string {
	result := make(map[string]string)
	if c.Schedule == nil {
		return result
	}
	raw, ok := c.Schedule["cron"].(map[string]interface{})
	if !ok {
		return result
	}
	for operation, expr := range raw {
		value := strings.TrimSpace(cast.ToString(expr))
		if value != "" {
			result[operation] = value
		}
	}
	return result
}

func normalizeFieldCodes(value interface{}) []string {
	var items []string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		items = strings.Split(v, ",")
	case []string:
		items = v
	case []interface{}:
		for _, item := range v {
			items = append(items, cast.ToString(item))
		}
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		code := strings.TrimSpace(item)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		result = append(result, code)
	}
	return result
}
