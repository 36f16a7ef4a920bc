/**
 * @module data_converter
 * @description 文本转换工具模块，负责钉钉字段文本标准化与输出编码转换
 * @architecture 工具函数模式，提供静态转换方法集合
 * @documentReference 参考 ai_docs/dingtalk_sync.md 映射章节
 * @stateFlow 无状态转换：输入 -> 转换逻辑 -> 输出
 * @rules
 *   - 全角数字、字母统一转换为半角，便于手机号、工号比对
 *   - 编码转换失败时返回错误，不静默截断
 * @dependencies
 *   - golang.org/x/text/width: 全角半角转换
 *   - golang.org/x/text/encoding/simplifiedchinese: GBK 编码
 * @refs
 *   - service/dingtalk/dingtalk_mapper/*: 字段映射
 *   - cmd/dingtalk-probe: 诊断输出
 */

package utils

import (
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// NormalizeString 标准化字符串：去除首尾空白，合并连续空白
func NormalizeString(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// NarrowString 全角字符转半角（如 "１３８" -> "138"），并去除首尾空白
func NarrowString(str string) string {
	return strings.TrimSpace(width.Narrow.String(str))
}

// ConvertEncoding 编码转换，支持 UTF-8 与 GBK/GB2312 互转
func ConvertEncoding(data []byte, fromEncoding, toEncoding string) ([]byte, error) {
	from := strings.ToLower(fromEncoding)
	to := strings.ToLower(toEncoding)

	switch {
	case (from == "gbk" || from == "gb2312") && to == "utf-8":
		result, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), data)
		return result, err
	case from == "utf-8" && (to == "gbk" || to == "gb2312"):
		result, _, err := transform.Bytes(simplifiedchinese.GBK.NewEncoder(), data)
		return result, err
	}

	// 默认情况下，如果不需要转换或不支持的编码，返回原数据
	return data, nil
}
