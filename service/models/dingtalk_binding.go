/*
 * @module service/models/dingtalk_binding
 * @description 钉钉部门、用户与本地组织、账号的绑定关系
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 手工创建绑定 -> 同步清理过期部门/用户时级联删除
 * @rules 绑定按 config_id 隔离；(config_id, 钉钉ID, 本地标识) 唯一；绑定目标必须存在于本地快照
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/dingtalk/dingtalk_sync/binding.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DingTalkDeptBinding 钉钉部门与本地部门编码的绑定
type DingTalkDeptBinding struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConfigID      string    `json:"config_id" gorm:"size:32;not null;uniqueIndex:uk_dingtalk_dept_binding"`
	DeptID        int64     `json:"dept_id" gorm:"not null;uniqueIndex:uk_dingtalk_dept_binding"`
	LocalDeptCode string    `json:"local_dept_code" gorm:"size:128;not null;uniqueIndex:uk_dingtalk_dept_binding"`
	DeptName      string    `json:"dept_name" gorm:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkDeptBinding) TableName() string {
	return "dingtalk_dept_binding"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (b *DingTalkDeptBinding) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// DingTalkUserBinding 钉钉用户与本地账号的绑定
type DingTalkUserBinding struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConfigID    string    `json:"config_id" gorm:"size:32;not null;uniqueIndex:uk_dingtalk_user_binding"`
	UserID      string    `json:"userid" gorm:"column:userid;size:128;not null;uniqueIndex:uk_dingtalk_user_binding"`
	LocalUserID string    `json:"local_user_id" gorm:"size:128;not null;uniqueIndex:uk_dingtalk_user_binding"`
	UserName    string    `json:"user_name" gorm:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkUserBinding) TableName() string {
	return "dingtalk_user_binding"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (b *DingTalkUserBinding) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}
