/*
 * @module service/dingtalk/dingtalk_mapper/mapper
 * @description 钉钉原始载荷到本地快照模型的映射
 * @architecture 工具层 - 纯函数
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 原始 JSON 对象 -> 字段别名归一 -> 类型宽松转换 -> 快照模型
 * @rules 映射函数不返回错误；无法解析的字段留空，自然键缺失由同步层跳过；
 *        source_info 保留完整原始载荷
 * @dependencies github.com/spf13/cast
 * @refs service/dingtalk/dingtalk_sync/sync_service.go
 */

package dingtalk_mapper

import (
	"fmt"
	"strings"
	"time"

	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/utils"

	"github.com/spf13/cast"
)

// now 打卡时间无法解析时的兜底时间
var now = time.Now

// MapDepartment 映射部门，dept_id 无法解析时为 0
func MapDepartment(configID string, payload map[string]interface{}) models.DingTalkDepartment {
	dept := models.DingTalkDepartment{
		ConfigID:     configID,
		Name:         utils.NormalizeString(stringOf(payload, "name")),
		ParentID:     toInt64Ptr(payload["parent_id"]),
		LeaderUserID: stringOf(payload, "leader_userid"),
		DeptType:     stringOf(payload, "dept_tag"),
		SourceInfo:   models.JSONB(copyMap(payload)),
	}
	if id := toInt64Ptr(payload["dept_id"]); id != nil {
		dept.DeptID = *id
	}

	order := toInt64Ptr(payload["order"])
	if order == nil || *order == 0 {
		if alt := toInt64Ptr(payload["dept_order"]); alt != nil {
			order = alt
		}
	}
	dept.Order = order
	return dept
}

// MapUser 映射在职用户
func MapUser(configID string, payload map[string]interface{}) models.DingTalkUser {
	active := true
	if value, ok := payload["active"]; ok && value != nil {
		active = cast.ToBool(value)
	}

	deptIDs := make([]interface{}, 0)
	for _, item := range toList(firstOf(payload, "dept_id_list", "deptIdList")) {
		text := scalarString(item)
		if text != "" && strings.Trim(text, "0123456789") == "" {
			deptIDs = append(deptIDs, text)
		}
	}

	return models.DingTalkUser{
		ConfigID:   configID,
		UserID:     stringOf(payload, "userid"),
		Name:       stringOf(payload, "name"),
		Mobile:     utils.NarrowString(stringOf(payload, "mobile")),
		Email:      stringOf(payload, "email"),
		Active:     active,
		JobNumber:  utils.NarrowString(stringOf(payload, "job_number")),
		Title:      stringOf(payload, "title"),
		DeptIDs:    models.JSONBInt64Array(sortedInt64s(deptIDs)),
		UnionID:    stringOf(payload, "unionid"),
		Remark:     stringOf(payload, "remark"),
		SourceInfo: models.JSONB(copyMap(payload)),
	}
}

// MapAttendance 映射考勤打卡记录
// 缺少上游记录ID时使用 "{userid}_{打卡秒级时间戳}" 作为确定性ID；
// 缺少工作日时取打卡时间在默认时区的日期
func MapAttendance(configID string, payload map[string]interface{}) models.DingTalkAttendanceRecord {
	userID := stringOf(payload, "userid", "userId")
	checkTime, parsed := ParseDateTime(firstOf(payload, "user_check_time", "userCheckTime"))

	recordID := stringOf(payload, "record_id", "recordId")
	if recordID == "" && parsed {
		recordID = fmt.Sprintf("%s_%d", userID, checkTime.Unix())
	}
	if !parsed {
		checkTime = now().In(DefaultLocation())
	}

	record := models.DingTalkAttendanceRecord{
		ConfigID:      configID,
		RecordID:      recordID,
		UserID:        userID,
		CheckType:     stringOf(payload, "check_type", "checkType"),
		TimeResult:    stringOf(payload, "time_result", "timeResult"),
		UserCheckTime: checkTime,
		SourceType:    stringOf(payload, "source_type", "sourceType"),
		SourceInfo:    models.JSONB(copyMap(payload)),
	}
	if workDate, ok := parseWorkDate(firstOf(payload, "work_date", "workDate")); ok {
		record.WorkDate = &workDate
	} else if parsed {
		workDate := dateOf(checkTime.In(DefaultLocation()))
		record.WorkDate = &workDate
	}
	return record
}

// parseWorkDate 考勤工作日；时间戳按默认时区取日期
func parseWorkDate(value interface{}) (time.Time, bool) {
	if value == nil {
		return time.Time{}, false
	}
	if _, isString := value.(string); !isString {
		if _, isTime := value.(time.Time); !isTime {
			if parsed, ok := ParseDateTime(value); ok {
				return dateOf(parsed), true
			}
			return time.Time{}, false
		}
	}
	return ParseDate(value)
}
