package dingtalk_mapper

import (
	"encoding/json"
	"testing"
	"time"

	"dingtalk-sync-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shanghai = time.FixedZone("CST", 8*3600)

func useShanghai(t *testing.T) {
	t.Helper()
	previous := DefaultLocation()
	SetDefaultLocation(shanghai)
	t.Cleanup(func() { SetDefaultLocation(previous) })
}

func TestParseDateTime(t *testing.T) {
	useShanghai(t)
	want := time.Date(2025, 10, 1, 7, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value interface{}
		ok    bool
	}{
		{"毫秒时间戳", float64(1759302000000), true},
		{"秒级时间戳", int64(1759302000), true},
		{"微秒时间戳", float64(1759302000000000), true},
		{"json数字", json.Number("1759302000000"), true},
		{"纯数字字符串", "1759302000000", true},
		{"UTC字符串", "2025-10-01T07:00:00Z", true},
		{"带偏移字符串", "2025-10-01T15:00:00+08:00", true},
		{"无时区空格格式", "2025-10-01 15:00:00", true},
		{"无时区T格式", "2025-10-01T15:00:00", true},
		{"带小数秒", "2025-10-01T07:00:00.000Z", true},
		{"time类型", want.In(time.UTC), true},
		{"空值", nil, false},
		{"空字符串", "", false},
		{"非法字符串", "not-a-date", false},
		{"不支持的类型", []interface{}{1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDateTime(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, want.Equal(got), "got %s", got)
				assert.Equal(t, shanghai, got.Location(), "结果应转换到默认时区")
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	useShanghai(t)
	want := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value interface{}
		ok    bool
	}{
		{"日期字符串", "2025-10-01", true},
		{"日期时间字符串取前10位", "2025-10-01 18:30:00", true},
		{"斜杠格式", "2025/10/01", true},
		{"毫秒时间戳按UTC取日期", float64(1759302000000), true},
		{"time类型", time.Date(2025, 10, 1, 23, 0, 0, 0, shanghai), true},
		{"非法字符串", "10/01/2025", false},
		{"空值", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestMapDepartment(t *testing.T) {
	t.Run("完整字段", func(t *testing.T) {
		payload := map[string]interface{}{
			"dept_id":       float64(42),
			"name":          "研发部",
			"parent_id":     float64(1),
			"order":         float64(0),
			"dept_order":    float64(7),
			"leader_userid": "boss",
			"dept_tag":      "tech",
		}
		dept := MapDepartment("cfg", payload)
		assert.Equal(t, "cfg", dept.ConfigID)
		assert.Equal(t, int64(42), dept.DeptID)
		assert.Equal(t, "研发部", dept.Name)
		require.NotNil(t, dept.ParentID)
		assert.Equal(t, int64(1), *dept.ParentID)
		require.NotNil(t, dept.Order)
		assert.Equal(t, int64(7), *dept.Order, "order为0时取dept_order")
		assert.Equal(t, "boss", dept.LeaderUserID)
		assert.Equal(t, "tech", dept.DeptType)
		assert.Equal(t, "研发部", dept.SourceInfo["name"])
	})

	t.Run("缺少dept_id", func(t *testing.T) {
		dept := MapDepartment("cfg", map[string]interface{}{"name": "无ID"})
		assert.Equal(t, int64(0), dept.DeptID)
		assert.Nil(t, dept.ParentID)
		assert.Nil(t, dept.Order)
	})

	t.Run("部门名称合并空白", func(t *testing.T) {
		dept := MapDepartment("cfg", map[string]interface{}{"dept_id": 3, "name": "  研发   中心 "})
		assert.Equal(t, "研发 中心", dept.Name)
		assert.Equal(t, "  研发   中心 ", dept.SourceInfo["name"])
	})
}

func TestMapUser(t *testing.T) {
	t.Run("部门ID只保留数字并排序去重", func(t *testing.T) {
		user := MapUser("cfg", map[string]interface{}{
			"userid":       "u1",
			"name":         "张三",
			"mobile":       "１３８００１３８０００",
			"dept_id_list": []interface{}{"3", float64(1), "x", float64(2), "3", "-1"},
		})
		assert.Equal(t, "u1", user.UserID)
		assert.Equal(t, "13800138000", user.Mobile)
		assert.Equal(t, models.JSONBInt64Array{1, 2, 3}, user.DeptIDs)
		assert.True(t, user.Active, "缺省为在职")
	})

	t.Run("兼容驼峰字段与离职标记", func(t *testing.T) {
		user := MapUser("cfg", map[string]interface{}{
			"userid":     "u2",
			"active":     false,
			"deptIdList": []interface{}{float64(5)},
		})
		assert.False(t, user.Active)
		assert.Equal(t, models.JSONBInt64Array{5}, user.DeptIDs)
	})
}

func TestMapAttendance(t *testing.T) {
	useShanghai(t)

	t.Run("使用上游记录ID", func(t *testing.T) {
		record := MapAttendance("cfg", map[string]interface{}{
			"recordId":      float64(123456789),
			"userId":        "u1",
			"checkType":     "OnDuty",
			"timeResult":    "Normal",
			"sourceType":    "ATM",
			"userCheckTime": float64(1759302000000),
			"workDate":      float64(1759248000000),
		})
		assert.Equal(t, "123456789", record.RecordID)
		assert.Equal(t, "u1", record.UserID)
		assert.Equal(t, "OnDuty", record.CheckType)
		assert.Equal(t, "Normal", record.TimeResult)
		assert.Equal(t, "ATM", record.SourceType)
		assert.True(t, time.Date(2025, 10, 1, 15, 0, 0, 0, shanghai).Equal(record.UserCheckTime))
		require.NotNil(t, record.WorkDate)
		assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), *record.WorkDate, "时间戳工作日按本地时区取日期")
	})

	t.Run("缺少记录ID时合成确定性ID", func(t *testing.T) {
		payload := map[string]interface{}{
			"userid":          "u1",
			"user_check_time": "2025-10-01 15:00:00",
			"work_date":       "2025-10-01",
		}
		first := MapAttendance("cfg", payload)
		second := MapAttendance("cfg", payload)
		assert.Equal(t, "u1_1759302000", first.RecordID)
		assert.Equal(t, first.RecordID, second.RecordID)
	})

	t.Run("缺少工作日时取打卡日期", func(t *testing.T) {
		record := MapAttendance("cfg", map[string]interface{}{
			"userid":          "u1",
			"user_check_time": "2025-10-01 15:00:00",
		})
		assert.Equal(t, "u1_1759302000", record.RecordID)
		require.NotNil(t, record.WorkDate)
		assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), *record.WorkDate)
	})

	t.Run("跨日时区按默认时区取日期", func(t *testing.T) {
		record := MapAttendance("cfg", map[string]interface{}{
			"userid":          "u1",
			"user_check_time": "2025-09-30T17:30:00Z",
		})
		require.NotNil(t, record.WorkDate)
		assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), *record.WorkDate, "UTC 17:30 为上海次日 01:30")
	})

	t.Run("打卡时间无法解析", func(t *testing.T) {
		fixed := time.Date(2025, 10, 2, 1, 0, 0, 0, time.UTC)
		original := now
		now = func() time.Time { return fixed }
		t.Cleanup(func() { now = original })

		record := MapAttendance("cfg", map[string]interface{}{"userid": "u1", "userCheckTime": "bad"})
		assert.Empty(t, record.RecordID, "无记录ID且无法合成时留空")
		assert.True(t, fixed.Equal(record.UserCheckTime))
		assert.Nil(t, record.WorkDate)
	})
}

func TestMapDimission(t *testing.T) {
	useShanghai(t)

	t.Run("多来源别名合并", func(t *testing.T) {
		info := map[string]interface{}{
			"userid":       "u1",
			"lastWorkDay":  float64(1759302000000),
			"dept_ids":     "3, 1",
			"deptList":     []interface{}{map[string]interface{}{"deptId": float64(2)}, map[string]interface{}{"dept_id": "3"}},
			"reasonType":   "2",
			"preStatus":    float64(3),
			"status":       "离职",
			"employeeInfo": map[string]interface{}{"name": " 李四 ", "mainDeptId": "10", "mainDeptName": "研发部"},
		}
		record := map[string]interface{}{
			"userId":           "u1",
			"leaveTime":        "2025-10-01T07:00:00Z",
			"mobile":           "13800138000",
			"handoverUserId":   "u9",
			"voluntaryReasons": []interface{}{"家庭原因", "薪资", "家庭原因"},
			"passiveReasons":   "绩效",
		}

		user := MapDimission("cfg", info, record)
		assert.Equal(t, "cfg", user.ConfigID)
		assert.Equal(t, "u1", user.UserID)
		assert.Equal(t, "李四", user.Name, "字符串去除首尾空白")
		assert.Equal(t, "13800138000", user.Mobile)
		require.NotNil(t, user.MainDeptID)
		assert.Equal(t, int64(10), *user.MainDeptID)
		assert.Equal(t, "研发部", user.MainDeptName)
		assert.Equal(t, "u9", user.HandoverUserID)
		require.NotNil(t, user.LastWorkDay)
		assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), *user.LastWorkDay)
		require.NotNil(t, user.LeaveTime)
		assert.True(t, time.Date(2025, 10, 1, 7, 0, 0, 0, time.UTC).Equal(*user.LeaveTime))
		require.NotNil(t, user.ReasonType)
		assert.Equal(t, 2, *user.ReasonType)
		require.NotNil(t, user.PreStatus)
		assert.Equal(t, 3, *user.PreStatus)
		assert.Nil(t, user.Status, "无法转换的整数字段留空")
		assert.Equal(t, models.JSONBStringArray{"家庭原因", "薪资"}, user.VoluntaryReasons)
		assert.Equal(t, models.JSONBStringArray{"绩效"}, user.PassiveReasons)
		assert.Equal(t, "家庭原因、薪资", user.LeaveReason)
		assert.Equal(t, models.JSONBInt64Array{1, 2, 3}, user.DeptIDs)
		assert.Equal(t, record, user.SourceInfo["leave_record"])
	})

	t.Run("离职原因优先取显式字段", func(t *testing.T) {
		user := MapDimission("cfg", map[string]interface{}{
			"userid":         "u2",
			"leaveReason":    "个人发展",
			"passiveReasons": []interface{}{"绩效"},
		}, nil)
		assert.Equal(t, "个人发展", user.LeaveReason)
		_, hasRecord := user.SourceInfo["leave_record"]
		assert.False(t, hasRecord)
	})

	t.Run("仅有被动原因", func(t *testing.T) {
		user := MapDimission("cfg", map[string]interface{}{
			"userid":         "u3",
			"passiveReasons": []interface{}{"绩效", "违纪"},
		}, nil)
		assert.Equal(t, "绩效、违纪", user.LeaveReason)
	})

	t.Run("点号路径读取嵌套离职记录", func(t *testing.T) {
		user := MapDimission("cfg", map[string]interface{}{
			"userid":      "u4",
			"leaveRecord": map[string]interface{}{"userName": "王五", "deptId": float64(8)},
		}, nil)
		assert.Equal(t, "王五", user.Name)
		require.NotNil(t, user.MainDeptID)
		assert.Equal(t, int64(8), *user.MainDeptID)
	})

	t.Run("映射结果确定", func(t *testing.T) {
		info := map[string]interface{}{"userid": "u5", "dept_ids": []interface{}{"2", "1"}}
		assert.Equal(t, MapDimission("cfg", info, nil), MapDimission("cfg", info, nil))
	})
}

func TestEnrichWithRoster(t *testing.T) {
	t.Run("只补全缺失字段并合并部门", func(t *testing.T) {
		info := map[string]interface{}{
			"userid":   "u1",
			"name":     "已有姓名",
			"dept_ids": []interface{}{"3"},
		}
		fields := map[string]models.RosterField{
			"sys00-name":       {Value: "zhangsan", Label: "张三"},
			"sys00-mobile":     {Value: "13800138000"},
			"sys00-employeeId": {Value: "E001"},
			"sys00-orgEmail":   {Value: "a@example.com"},
			"sys00-position":   {Value: "工程师"},
			"sys00-mainDept":   {Value: "10", Label: "研发部"},
			"sys00-dept":       {Values: []string{"10", "3", ""}},
		}

		enriched := EnrichWithRoster("u1", info, fields)
		assert.Equal(t, "已有姓名", enriched["name"])
		assert.Equal(t, "13800138000", enriched["mobile"])
		assert.Equal(t, "E001", enriched["jobNumber"])
		assert.Equal(t, "a@example.com", enriched["email"])
		assert.Equal(t, "工程师", enriched["title"])
		assert.Equal(t, "10", enriched["mainDeptId"])
		assert.Equal(t, "研发部", enriched["mainDeptName"])
		assert.Equal(t, []interface{}{"10", "3"}, enriched["dept_ids"])

		employeeInfo, ok := enriched["employeeInfo"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "张三", employeeInfo["name"], "员工信息优先使用展示文本")

		user := MapDimission("cfg", enriched, nil)
		assert.Equal(t, "已有姓名", user.Name)
		assert.Equal(t, "E001", user.JobNumber)
		assert.Equal(t, models.JSONBInt64Array{3, 10}, user.DeptIDs)
	})

	t.Run("详情缺失时新建", func(t *testing.T) {
		enriched := EnrichWithRoster("u2", nil, map[string]models.RosterField{
			"sys00-mainDeptId": {Value: "5"},
		})
		assert.Equal(t, "u2", enriched["userid"])
		assert.Equal(t, "5", enriched["main_dept_id"])
	})
}

func TestMapAttendance_EpochAndNaiveISO(t *testing.T) {
	useShanghai(t)

	t.Run("毫秒时间戳与time.UnixMilli一致", func(t *testing.T) {
		record := MapAttendance("default", map[string]interface{}{
			"userid":          "user-1",
			"record_id":       "record-1",
			"user_check_time": float64(1759352400000),
		})
		assert.Equal(t, "record-1", record.RecordID)
		assert.True(t, time.UnixMilli(1759352400000).Equal(record.UserCheckTime))
	})

	t.Run("无时区ISO按默认时区解释", func(t *testing.T) {
		record := MapAttendance("default", map[string]interface{}{
			"userid":          "user-2",
			"record_id":       "record-2",
			"user_check_time": "2025-10-01T15:30:00",
		})
		assert.True(t, time.Date(2025, 10, 1, 15, 30, 0, 0, shanghai).Equal(record.UserCheckTime))
	})
}

func TestMapDimission_AliasVariants(t *testing.T) {
	t.Run("employeeName/mobilePhone/jobNo", func(t *testing.T) {
		user := MapDimission("cfg", map[string]interface{}{
			"userid":       "u1",
			"employeeName": "赵六",
			"mobilePhone":  "13900000000",
			"jobNo":        "A-01",
		}, nil)
		assert.Equal(t, "赵六", user.Name)
		assert.Equal(t, "13900000000", user.Mobile)
		assert.Equal(t, "A-01", user.JobNumber)
	})

	t.Run("主信息缺失时取离职记录", func(t *testing.T) {
		user := MapDimission("cfg", map[string]interface{}{
			"userId":    "u2",
			"userName":  "钱七",
			"mobile":    "13700000000",
			"jobNumber": "B-02",
		}, map[string]interface{}{
			"userId":   "u2",
			"deptId":   float64(12),
			"deptName": "市场部",
		})
		assert.Equal(t, "u2", user.UserID)
		assert.Equal(t, "钱七", user.Name)
		assert.Equal(t, "13700000000", user.Mobile)
		assert.Equal(t, "B-02", user.JobNumber)
		require.NotNil(t, user.MainDeptID)
		assert.Equal(t, int64(12), *user.MainDeptID)
		assert.Equal(t, "市场部", user.MainDeptName)
	})
}
