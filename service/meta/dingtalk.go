/*
 * @module service/meta/dingtalk
 * @description 钉钉同步相关常量定义：操作类型、同步状态、日志级别、限流桶、接口地址
 * @architecture 元数据层
 * @documentReference ai_docs/dingtalk_sync.md
 * @rules 常量值需要与数据库中已存在的日志/游标数据保持兼容
 * @refs service/dingtalk/dingtalk_sync, service/dingtalk/dingtalk_client
 */

package meta

import "time"

// 同步操作类型
const (
	SyncOperationTestConnection     = "test_connection"
	SyncOperationSyncDepartments    = "sync_departments"
	SyncOperationSyncUsers          = "sync_users"
	SyncOperationSyncAttendance     = "sync_attendance"
	SyncOperationSyncDimissionUsers = "sync_dimission_users"
	SyncOperationFullSync           = "full_sync"
)

var SyncOperations = []MetaField{
	{Name: SyncOperationTestConnection, DisplayName: "连接测试", Type: "string"},
	{Name: SyncOperationSyncDepartments, DisplayName: "同步部门", Type: "string"},
	{Name: SyncOperationSyncUsers, DisplayName: "同步用户", Type: "string"},
	{Name: SyncOperationSyncAttendance, DisplayName: "同步考勤", Type: "string"},
	{Name: SyncOperationSyncDimissionUsers, DisplayName: "同步离职人员", Type: "string"},
	{Name: SyncOperationFullSync, DisplayName: "全量同步", Type: "string"},
}

// IsValidSyncOperation 判断操作类型是否合法
func IsValidSyncOperation(operation string) bool {
	_, ok := FindMetaField(SyncOperations, operation)
	return ok
}

// 同步日志状态
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusPending = "pending"
)

// 同步日志级别
const (
	SyncLevelInfo    = "info"
	SyncLevelWarning = "warning"
	SyncLevelError   = "error"
)

// 同步模式
const (
	SyncModeFull        = "full"
	SyncModeIncremental = "incremental"
)

var SyncModes = []MetaField{
	{Name: SyncModeFull, DisplayName: "全量", Type: "string", DefaultValue: SyncModeFull},
	{Name: SyncModeIncremental, DisplayName: "增量", Type: "string", Description: "仅记录模式，快照仍按全量对账"},
}

var SyncStatuses = []MetaField{
	{Name: SyncStatusSuccess, DisplayName: "成功", Type: "string"},
	{Name: SyncStatusFailed, DisplayName: "失败", Type: "string"},
	{Name: SyncStatusPending, DisplayName: "等待中", Type: "string"},
}

// 同步钩子事件类型
const (
	SyncEventPreSync    = "pre_sync"
	SyncEventPostSync   = "post_sync"
	SyncEventSyncFailed = "sync_failed"
)

// 增量游标类型
const (
	CursorTypeDepartment = "department"
	CursorTypeUser       = "user"
	CursorTypeAttendance = "attendance"
)

// 计划任务中使用的操作简称
const (
	ScheduleOperationDepartments = "departments"
	ScheduleOperationUsers       = "users"
	ScheduleOperationAttendance  = "attendance"
	ScheduleOperationDimission   = "dimission"
)

// 钉钉接口地址
const (
	DingTalkBaseURL        = "https://oapi.dingtalk.com"
	DingTalkOpenAPIBaseURL = "https://api.dingtalk.com"
	DingTalkDefaultTimeout = 10 * time.Second

	DingTalkDefaultConfigID   = "default"
	DingTalkDefaultConfigName = "默认钉钉配置"
	DingTalkRootDepartmentID  = int64(1)
)

// 限流桶
const (
	RateBucketDepartment       = "department"
	RateBucketUser             = "user"
	RateBucketAttendance       = "attendance"
	RateBucketDimissionList    = "dimission-list"
	RateBucketDimissionInfo    = "dimission-info"
	RateBucketDimissionRecords = "dimission-records"
	RateBucketRosterInfo       = "roster-info"

	DefaultRateLimit   = 15
	RosterRateLimit    = 10
	DefaultRateWindow  = time.Second
	RateLimitSafetyGap = 50 * time.Millisecond
)

// 钉钉错误码
const (
	// DingTalkErrCodeRateLimited 考勤接口触发限流
	DingTalkErrCodeRateLimited = 90018
	// DingTalkErrInvalidMaxResults 离职记录接口拒绝分页大小
	DingTalkErrInvalidMaxResults = "invalidmaxresults"
)

// DefaultDimissionRosterFields 离职人员花名册补全默认字段
var DefaultDimissionRosterFields = []string{
	"sys00-name",
	"sys00-mobile",
	"sys00-jobNumber",
	"sys00-employeeId",
	"sys00-email",
	"sys00-orgEmail",
	"sys00-position",
	"sys00-mainDept",
	"sys00-mainDeptId",
	"sys00-dept",
}
