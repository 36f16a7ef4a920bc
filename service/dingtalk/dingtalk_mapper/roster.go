package dingtalk_mapper

import (
	"sort"

	"dingtalk-sync-service/service/models"
)

// EnrichWithRoster 用花名册字段补全离职详情，只填充缺失字段，部门列表取并集
// info 会被原地修改并返回；info 为 nil 时以 {"userid": userID} 新建
func EnrichWithRoster(userID string, info map[string]interface{}, fields map[string]models.RosterField) map[string]interface{} {
	if info == nil {
		info = map[string]interface{}{"userid": userID}
	}
	if len(fields) == 0 {
		return info
	}

	employeeInfo := make(map[string]interface{})
	base, ok := info["employeeInfo"].(map[string]interface{})
	if !ok {
		base, _ = info["employee_info"].(map[string]interface{})
	}
	for key, value := range base {
		employeeInfo[key] = value
	}

	jobNumber := rosterValue(fields, "sys00-jobNumber", false)
	if jobNumber == "" {
		jobNumber = rosterValue(fields, "sys00-employeeId", false)
	}
	email := rosterValue(fields, "sys00-email", false)
	if email == "" {
		email = rosterValue(fields, "sys00-orgEmail", false)
	}

	var mainDeptID, mainDeptName string
	if entry, ok := fields["sys00-mainDept"]; ok {
		mainDeptID = entry.Value
		mainDeptName = entry.Label
		if mainDeptName == "" {
			mainDeptName = entry.Value
		}
	}
	if mainDeptID == "" {
		mainDeptID = rosterValue(fields, "sys00-mainDeptId", false)
	}

	pairs := []struct {
		key   string
		value string
	}{
		{"name", rosterValue(fields, "sys00-name", true)},
		{"mobile", rosterValue(fields, "sys00-mobile", false)},
		{"jobNumber", jobNumber},
		{"job_number", jobNumber},
		{"email", email},
		{"title", rosterValue(fields, "sys00-position", false)},
		{"mainDeptId", mainDeptID},
		{"main_dept_id", mainDeptID},
		{"mainDeptName", mainDeptName},
		{"main_dept_name", mainDeptName},
	}
	for _, pair := range pairs {
		setDefault(employeeInfo, pair.key, pair.value)
		setDefault(info, pair.key, pair.value)
	}

	if deptValues := rosterValues(fields, "sys00-dept"); len(deptValues) > 0 {
		existing := firstOf(info, "dept_ids", "deptIdList")
		combined := make(map[string]struct{})
		for _, candidate := range toList(existing) {
			if isEmpty(candidate) {
				continue
			}
			combined[scalarString(candidate)] = struct{}{}
		}
		for _, candidate := range deptValues {
			combined[candidate] = struct{}{}
		}
		merged := make([]string, 0, len(combined))
		for value := range combined {
			merged = append(merged, value)
		}
		sort.Strings(merged)
		ids := make([]interface{}, 0, len(merged))
		for _, value := range merged {
			ids = append(ids, value)
		}
		info["dept_ids"] = ids
	}

	if len(employeeInfo) > 0 {
		info["employeeInfo"] = employeeInfo
	}
	return info
}

// rosterValue 取字段值，preferLabel 时优先取展示文本
func rosterValue(fields map[string]models.RosterField, code string, preferLabel bool) string {
	entry, ok := fields[code]
	if !ok {
		return ""
	}
	if preferLabel && entry.Label != "" {
		return entry.Label
	}
	if entry.Value != "" {
		return entry.Value
	}
	return entry.Label
}

func rosterValues(fields map[string]models.RosterField, code string) []string {
	entry, ok := fields[code]
	if !ok {
		return nil
	}
	result := make([]string, 0, len(entry.Values))
	for _, value := range entry.Values {
		if value != "" {
			result = append(result, value)
		}
	}
	return result
}

func setDefault(target map[string]interface{}, key, value string) {
	if value == "" {
		return
	}
	if current, ok := target[key]; ok && !isEmpty(current) {
		return
	}
	target[key] = value
}
