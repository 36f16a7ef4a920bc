package dingtalk_mapper

import (
	"strings"

	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/utils"
)

// 离职信息字段别名，按优先级排列
var (
	lastWorkDayKeys = []string{
		"last_work_day", "lastWorkDay", "last_workday", "lastWorkday", "lastWorkDate",
		"employeeInfo.lastWorkDay", "employee_info.lastWorkDay", "leaveRecord.lastWorkDay",
	}
	leaveTimeKeys = []string{
		"leave_time", "leaveTime", "leaveRecord.leaveTime", "leave_record.leaveTime",
		"leaveRecord.leave_time", "employeeInfo.leaveTime", "employee_info.leaveTime",
	}
	voluntaryReasonKeys = []string{
		"voluntary_reason_set", "voluntaryReasons", "voluntary_reason_list", "voluntaryReasonList",
		"voluntaryReason", "leaveRecord.voluntaryReasons", "leaveRecord.voluntaryReason",
	}
	passiveReasonKeys = []string{
		"passive_reason_set", "passiveReasons", "passive_reason_list", "passiveReasonList",
		"passiveReason", "leaveRecord.passiveReasons", "leaveRecord.passiveReason",
	}
	leaveReasonKeys = []string{
		"leave_reason", "leaveReason", "leave_record.leaveReason", "leaveRecord.leaveReason",
		"leaveRecord.reason", "reason", "reasonMemo", "leaveRecord.reasonMemo",
	}
	userIDKeys = []string{"userid", "userId"}
	nameKeys   = []string{
		"name", "userName", "employee_name", "employeeName", "staff_name", "staffName",
		"user_name", "realName", "employeeInfo.name", "employee_info.name", "leaveRecord.userName",
	}
	mobileKeys = []string{
		"mobile", "mobilePhone", "mobile_phone", "phone", "phoneNumber", "phone_number",
		"employeeInfo.mobile", "employee_info.mobile", "leaveRecord.mobile",
	}
	jobNumberKeys = []string{
		"job_number", "jobNumber", "job_no", "jobNo", "employeeCode", "employeeId", "leaveRecord.jobNumber",
	}
	mainDeptIDKeys = []string{
		"main_dept_id", "mainDeptId", "main_department_id", "dept_id", "deptId",
		"employeeInfo.mainDeptId", "employee_info.mainDeptId", "leaveRecord.deptId",
	}
	mainDeptNameKeys = []string{
		"main_dept_name", "mainDeptName", "main_department_name", "dept_name", "deptName",
		"employeeInfo.mainDeptName", "employee_info.mainDeptName", "leaveRecord.deptName",
	}
	handoverKeys   = []string{"handover_userid", "handoverUserId", "handover_user_id", "handoverUserID", "leaveRecord.handoverUserId"}
	reasonTypeKeys = []string{"reason_type", "reasonType", "leaveRecord.reasonType"}
	reasonMemoKeys = []string{"reason_memo", "reasonMemo", "leaveRecord.reasonMemo"}
	preStatusKeys  = []string{"pre_status", "preStatus", "leaveRecord.preStatus"}
	statusKeys     = []string{"status", "statusCode", "leaveRecord.status"}
)

// leaveReasonSeparator 由离职原因列表拼接离职原因时使用的分隔符
const leaveReasonSeparator = "、"

// MapDimission 合并离职详情与离职记录，映射为离职员工快照
// 取值顺序：详情 -> 离职记录 -> 详情.employeeInfo -> 详情.employee_info，每个来源内按别名顺序
func MapDimission(configID string, info, leaveRecord map[string]interface{}) models.DingTalkDimissionUser {
	if info == nil {
		info = map[string]interface{}{}
	}
	ex := newExtractor(info, leaveRecord, info["employeeInfo"], info["employee_info"])

	voluntary := stringList(ex.value(voluntaryReasonKeys...))
	passive := stringList(ex.value(passiveReasonKeys...))

	leaveReason := ex.str(leaveReasonKeys...)
	if leaveReason == "" {
		if len(voluntary) > 0 {
			leaveReason = strings.Join(voluntary, leaveReasonSeparator)
		} else if len(passive) > 0 {
			leaveReason = strings.Join(passive, leaveReasonSeparator)
		}
	}

	user := models.DingTalkDimissionUser{
		ConfigID:         configID,
		UserID:           ex.str(userIDKeys...),
		Name:             ex.str(nameKeys...),
		Mobile:           utils.NarrowString(ex.str(mobileKeys...)),
		JobNumber:        utils.NarrowString(ex.str(jobNumberKeys...)),
		MainDeptID:       ex.int64Ptr(mainDeptIDKeys...),
		MainDeptName:     ex.str(mainDeptNameKeys...),
		HandoverUserID:   ex.str(handoverKeys...),
		LeaveReason:      leaveReason,
		ReasonType:       ex.intPtr(reasonTypeKeys...),
		ReasonMemo:       ex.str(reasonMemoKeys...),
		PreStatus:        ex.intPtr(preStatusKeys...),
		Status:           ex.intPtr(statusKeys...),
		VoluntaryReasons: models.JSONBStringArray(voluntary),
		PassiveReasons:   models.JSONBStringArray(passive),
		DeptIDs:          models.JSONBInt64Array(dimissionDeptIDs(info, leaveRecord)),
		SourceInfo:       dimissionSourceInfo(info, leaveRecord),
	}

	if day, ok := ParseDate(ex.value(lastWorkDayKeys...)); ok {
		user.LastWorkDay = &day
	}
	if leaveTime, ok := ParseDateTime(ex.value(leaveTimeKeys...)); ok {
		user.LeaveTime = &leaveTime
	}
	return user
}

// dimissionDeptIDs 合并详情中的部门ID列表与 deptList 中的部门
func dimissionDeptIDs(info, leaveRecord map[string]interface{}) []int64 {
	raw := toList(firstOf(info, "dept_ids", "dept_ids_list", "deptIdList"))

	deptList := firstOf(info, "deptList")
	if deptList == nil && leaveRecord != nil {
		deptList = firstOf(leaveRecord, "deptList")
	}
	if items, ok := deptList.([]interface{}); ok {
		for _, item := range items {
			object, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if candidate := firstOf(object, "dept_id", "deptId"); candidate != nil {
				raw = append(raw, candidate)
			}
		}
	}
	return sortedInt64s(raw)
}

func dimissionSourceInfo(info, leaveRecord map[string]interface{}) models.JSONB {
	source := copyMap(info)
	if len(leaveRecord) > 0 {
		source["leave_record"] = leaveRecord
	}
	return models.JSONB(source)
}
