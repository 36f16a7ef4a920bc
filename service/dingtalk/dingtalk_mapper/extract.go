package dingtalk_mapper

import (
	"sort"
	"strconv"
	"strings"

	"dingtalk-sync-service/service/utils"

	"github.com/spf13/cast"
)

// isEmpty nil、空字符串、空列表、空对象均视为缺失
func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}

// lookupPath 按 "a.b.c" 路径取值
func lookupPath(source map[string]interface{}, path string) interface{} {
	var current interface{} = source
	for _, part := range strings.Split(path, ".") {
		object, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = object[part]
	}
	return current
}

// extractor 依次在多个数据源中按别名路径查找首个非空值
type extractor struct {
	sources []map[string]interface{}
}

func newExtractor(sources ...interface{}) *extractor {
	e := &extractor{}
	for _, source := range sources {
		if object, ok := source.(map[string]interface{}); ok && object != nil {
			e.sources = append(e.sources, object)
		}
	}
	return e
}

func (e *extractor) value(keys ...string) interface{} {
	for _, source := range e.sources {
		for _, key := range keys {
			current := lookupPath(source, key)
			if isEmpty(current) {
				continue
			}
			if text, ok := current.(string); ok {
				return strings.TrimSpace(text)
			}
			return current
		}
	}
	return nil
}

func (e *extractor) str(keys ...string) string {
	value := e.value(keys...)
	if value == nil {
		return ""
	}
	return scalarString(value)
}

func (e *extractor) int64Ptr(keys ...string) *int64 {
	return toInt64Ptr(e.value(keys...))
}

func (e *extractor) intPtr(keys ...string) *int {
	value := toInt64Ptr(e.value(keys...))
	if value == nil {
		return nil
	}
	result := int(*value)
	return &result
}

// scalarString 数值按整数格式输出，避免 JSON 浮点出现 1.23e+06
func scalarString(value interface{}) string {
	if number, ok := value.(float64); ok && number == float64(int64(number)) {
		return cast.ToString(int64(number))
	}
	return strings.TrimSpace(cast.ToString(value))
}

// toInt64Ptr 安全转换为整数，无法转换时返回 nil
func toInt64Ptr(value interface{}) *int64 {
	if isEmpty(value) {
		return nil
	}
	if text, ok := value.(string); ok {
		// 十进制解析，避免前导0被当作八进制
		text = utils.NarrowString(text)
		if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return &parsed
		}
		number, err := strconv.ParseFloat(text, 64)
		if err != nil || number != float64(int64(number)) {
			return nil
		}
		parsed := int64(number)
		return &parsed
	}
	parsed, err := cast.ToInt64E(value)
	if err != nil {
		return nil
	}
	return &parsed
}

// toList 标量、逗号分隔字符串、列表统一转换为列表
func toList(value interface{}) []interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		var items []interface{}
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return items
	case []interface{}:
		return v
	case []string:
		items := make([]interface{}, 0, len(v))
		for _, item := range v {
			items = append(items, item)
		}
		return items
	}
	return []interface{}{value}
}

// stringList 去重、去空白后的字符串列表，保持首次出现顺序
func stringList(value interface{}) []string {
	result := make([]string, 0)
	seen := make(map[string]struct{})
	for _, item := range toList(value) {
		if isEmpty(item) {
			continue
		}
		text := scalarString(item)
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		result = append(result, text)
	}
	return result
}

// sortedInt64s 可转换为整数的值去重后升序
func sortedInt64s(values []interface{}) []int64 {
	seen := make(map[int64]struct{})
	result := make([]int64, 0, len(values))
	for _, value := range values {
		id := toInt64Ptr(value)
		if id == nil {
			continue
		}
		if _, ok := seen[*id]; ok {
			continue
		}
		seen[*id] = struct{}{}
		result = append(result, *id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// firstOf 返回首个非空值
func firstOf(payload map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if value, ok := payload[key]; ok && !isEmpty(value) {
			return value
		}
	}
	return nil
}

// stringOf 首个非空值的字符串形式
func stringOf(payload map[string]interface{}, keys ...string) string {
	value := firstOf(payload, keys...)
	if value == nil {
		return ""
	}
	return scalarString(value)
}

func copyMap(source map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(source))
	for key, value := range source {
		result[key] = value
	}
	return result
}
