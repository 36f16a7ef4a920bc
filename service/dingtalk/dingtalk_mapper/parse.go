/*
 * @module service/dingtalk/dingtalk_mapper/parse
 * @description 钉钉载荷中时间、日期、数值字段的宽松解析
 * @architecture 工具层 - 纯函数
 * @documentReference ai_docs/dingtalk_sync.md
 * @rules 数值时间戳大于1e12时反复除以1000（毫秒/微秒 -> 秒）；无时区的字符串按默认时区解释；
 *        解析失败返回 false，不返回错误
 * @dependencies github.com/spf13/cast
 * @refs service/dingtalk/dingtalk_mapper/mapper.go
 */

package dingtalk_mapper

import (
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
)

var (
	locationMu      sync.RWMutex
	defaultLocation = time.Local
)

// SetDefaultLocation 设置无时区时间的解释时区，以及解析结果的输出时区
func SetDefaultLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	locationMu.Lock()
	defer locationMu.Unlock()
	defaultLocation = loc
}

// DefaultLocation 当前默认时区
func DefaultLocation() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return defaultLocation
}

// 带时区的 ISO-8601 格式
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
}

// 无时区的格式，按默认时区解释
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime 解析时间字段，支持 time.Time、秒/毫秒时间戳、ISO-8601 字符串
func ParseDateTime(value interface{}) (time.Time, bool) {
	loc := DefaultLocation()

	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.In(loc), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return v.In(loc), true
	case string:
		return parseDateTimeString(strings.TrimSpace(v), loc)
	}

	if seconds, ok := epochSeconds(value); ok {
		return fromEpoch(seconds).In(loc), true
	}
	return time.Time{}, false
}

// ParseDate 解析日期字段，返回 UTC 零点
func ParseDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return dateOf(v), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return dateOf(*v), true
	case string:
		text := strings.TrimSpace(v)
		if len(text) > 10 {
			text = text[:10]
		}
		for _, layout := range []string{"2006-01-02", "2006/01/02"} {
			if parsed, err := time.Parse(layout, text); err == nil {
				return parsed, true
			}
		}
		if seconds, ok := digitEpoch(text); ok {
			return dateOf(fromEpoch(seconds).UTC()), true
		}
		return time.Time{}, false
	}

	if seconds, ok := epochSeconds(value); ok {
		return dateOf(fromEpoch(seconds).UTC()), true
	}
	return time.Time{}, false
}

func parseDateTimeString(text string, loc *time.Location) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.In(loc), true
		}
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, text, loc); err == nil {
			return parsed, true
		}
	}
	if seconds, ok := digitEpoch(text); ok {
		return fromEpoch(seconds).In(loc), true
	}
	return time.Time{}, false
}

// epochSeconds 数值类型转换为秒级时间戳
func epochSeconds(value interface{}) (float64, bool) {
	var number float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		number = parsed
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		number = cast.ToFloat64(v)
	default:
		return 0, false
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	for number > 1e12 {
		number /= 1000
	}
	return number, true
}

// digitEpoch 纯数字字符串视为时间戳
func digitEpoch(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	return epochSeconds(cast.ToFloat64(text))
}

func fromEpoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
