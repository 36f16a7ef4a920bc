/*
 * @module service/dingtalk/dingtalk_client/errors
 * @description 钉钉集成错误类型：接口错误、配置错误、未启用错误
 * @architecture 分层架构 - 领域错误
 * @documentReference ai_docs/dingtalk_sync.md
 * @rules 接口错误必须携带钉钉原始响应，便于写入同步日志详情
 * @dependencies encoding/json
 * @refs service/dingtalk/dingtalk_sync/sync_service.go, api/controllers/dingtalk_controller.go
 */

package dingtalk_client

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cast"
)

// APIError 钉钉接口调用失败（业务错误码、网络异常、响应格式异常）
type APIError struct {
	Message string
	Payload map[string]interface{}
}

// NewAPIError 创建接口错误
func NewAPIError(message string, payload map[string]interface{}) *APIError {
	return &APIError{Message: message, Payload: payload}
}

func (e *APIError) Error() string {
	return e.Message
}

// Code 错误码，旧版接口取 errcode，新版接口取 code
func (e *APIError) Code() string {
	if e.Payload == nil {
		return ""
	}
	for _, key := range []string{"errcode", "code", "Code"} {
		if value, ok := e.Payload[key]; ok && value != nil {
			return cast.ToString(value)
		}
	}
	return ""
}

// ErrCode 旧版接口的数字错误码，不存在时返回 0
func (e *APIError) ErrCode() int {
	if e.Payload == nil {
		return 0
	}
	return cast.ToInt(e.Payload["errcode"])
}

// Detail 错误详情（原始响应 JSON）
func (e *APIError) Detail() string {
	if len(e.Payload) == 0 {
		return ""
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return ""
	}
	return string(data)
}

// ConfigurationError 钉钉配置不完整
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// DisabledError 钉钉集成未启用
type DisabledError struct {
	Message string
}

func (e *DisabledError) Error() string {
	return e.Message
}

// 常用错误消息
const (
	MsgMissingCredentials  = "请先配置钉钉 AppKey/AppSecret"
	MsgIntegrationDisabled = "钉钉集成未启用，请先开启"
	MsgStartAfterEnd       = "开始时间不能晚于结束时间"
)

// AsAPIError 判断错误链中是否包含接口错误
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsConfigurationError 判断是否为配置错误
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsDisabledError 判断是否为未启用错误
func IsDisabledError(err error) bool {
	var target *DisabledError
	return errors.As(err, &target)
}
