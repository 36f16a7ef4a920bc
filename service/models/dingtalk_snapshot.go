/*
 * @module service/models/dingtalk_snapshot
 * @description 钉钉部门、用户、考勤、离职人员本地快照模型
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 同步拉取 -> 映射 -> 按自然键 upsert -> 清理过期行
 * @rules 所有快照按 config_id 隔离；父部门、所属部门可以引用尚未同步的部门
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/dingtalk/dingtalk_mapper, service/dingtalk/dingtalk_sync
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DingTalkDepartment 钉钉部门快照，自然键 (config_id, dept_id)
type DingTalkDepartment struct {
	ConfigID     string    `json:"config_id" gorm:"primaryKey;size:32"`
	DeptID       int64     `json:"dept_id" gorm:"primaryKey;autoIncrement:false"`
	Name         string    `json:"name" gorm:"size:255;not null;default:''"`
	ParentID     *int64    `json:"parent_id,omitempty" gorm:"index"`
	Order        *int64    `json:"order,omitempty" gorm:"column:dept_order"`
	LeaderUserID string    `json:"leader_userid" gorm:"column:leader_userid;size:128;not null;default:''"`
	DeptType     string    `json:"dept_type" gorm:"size:64;not null;default:''"`
	SourceInfo   JSONB     `json:"source_info,omitempty" gorm:"type:jsonb"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkDepartment) TableName() string {
	return "dingtalk_department"
}

// DingTalkUser 钉钉用户快照，自然键 (config_id, userid)
type DingTalkUser struct {
	ConfigID   string          `json:"config_id" gorm:"primaryKey;size:32"`
	UserID     string          `json:"userid" gorm:"column:userid;primaryKey;size:128"`
	Name       string          `json:"name" gorm:"size:255;not null;default:''"`
	Mobile     string          `json:"mobile" gorm:"size:64;not null;default:''"`
	Email      string          `json:"email" gorm:"size:255;not null;default:''"`
	Active     bool            `json:"active" gorm:"not null"`
	JobNumber  string          `json:"job_number" gorm:"size:128;not null;default:''"`
	Title      string          `json:"title" gorm:"size:255;not null;default:''"`
	DeptIDs    JSONBInt64Array `json:"dept_ids" gorm:"column:dept_ids;type:jsonb"`
	UnionID    string          `json:"unionid" gorm:"column:unionid;size:255;not null;default:''"`
	Remark     string          `json:"remark" gorm:"size:255;not null;default:''"`
	SourceInfo JSONB           `json:"source_info,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkUser) TableName() string {
	return "dingtalk_user"
}

// DingTalkAttendanceRecord 钉钉考勤打卡记录，自然键 (config_id, record_id)
// 缺少上游记录ID时由 userid + 打卡时间戳合成
type DingTalkAttendanceRecord struct {
	ConfigID      string     `json:"config_id" gorm:"primaryKey;size:32"`
	RecordID      string     `json:"record_id" gorm:"primaryKey;size:128"`
	UserID        string     `json:"userid" gorm:"column:userid;size:128;not null;index"`
	CheckType     string     `json:"check_type" gorm:"size:32;not null;default:''"`
	TimeResult    string     `json:"time_result" gorm:"size:32;not null;default:''"`
	UserCheckTime time.Time  `json:"user_check_time" gorm:"not null;index"`
	WorkDate      *time.Time `json:"work_date,omitempty" gorm:"type:date"`
	SourceType    string     `json:"source_type" gorm:"size:32;not null;default:''"`
	SourceInfo    JSONB      `json:"source_info,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkAttendanceRecord) TableName() string {
	return "dingtalk_attendance_record"
}

// DingTalkDimissionUser 钉钉离职员工快照，每个 (config_id, userid) 仅保留当前状态
type DingTalkDimissionUser struct {
	ID               string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConfigID         string           `json:"config_id" gorm:"size:32;not null;uniqueIndex:uk_dingtalk_dimission_config_user"`
	UserID           string           `json:"userid" gorm:"column:userid;size:128;not null;uniqueIndex:uk_dingtalk_dimission_config_user"`
	Name             string           `json:"name" gorm:"size:255;not null;default:''"`
	Mobile           string           `json:"mobile" gorm:"size:64;not null;default:''"`
	JobNumber        string           `json:"job_number" gorm:"size:128;not null;default:''"`
	MainDeptID       *int64           `json:"main_dept_id,omitempty"`
	MainDeptName     string           `json:"main_dept_name" gorm:"size:255;not null;default:''"`
	HandoverUserID   string           `json:"handover_userid" gorm:"column:handover_userid;size:128;not null;default:''"`
	LastWorkDay      *time.Time       `json:"last_work_day,omitempty" gorm:"type:date"`
	LeaveTime        *time.Time       `json:"leave_time,omitempty"`
	LeaveReason      string           `json:"leave_reason" gorm:"size:255;not null;default:''"`
	ReasonType       *int             `json:"reason_type,omitempty"`
	ReasonMemo       string           `json:"reason_memo" gorm:"size:1024;not null;default:''"`
	PreStatus        *int             `json:"pre_status,omitempty"`
	Status           *int             `json:"status,omitempty"`
	VoluntaryReasons JSONBStringArray `json:"voluntary_reasons" gorm:"type:jsonb"`
	PassiveReasons   JSONBStringArray `json:"passive_reasons" gorm:"type:jsonb"`
	DeptIDs          JSONBInt64Array  `json:"dept_ids" gorm:"column:dept_ids;type:jsonb"`
	SourceInfo       JSONB            `json:"source_info,omitempty" gorm:"type:jsonb"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName 指定表名
func (DingTalkDimissionUser) TableName() string {
	return "dingtalk_dimission_user"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (d *DingTalkDimissionUser) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}
