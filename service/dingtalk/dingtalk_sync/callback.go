package dingtalk_sync

import (
	"context"
	"log/slog"

	"dingtalk-sync-service/service/dingtalk/dingtalk_client"
	"dingtalk-sync-service/service/models"
)

// DefaultCallbackEvents 默认订阅的通讯录事件
var DefaultCallbackEvents = []string{
	"user_add_org",
	"user_modify_org",
	"user_leave_org",
	"org_dept_create",
	"org_dept_modify",
	"org_dept_remove",
}

// MsgMissingCallback 回调地址、Token、AES Key 缺失
const MsgMissingCallback = "请先配置回调地址、Token 与 AES Key"

// RegisterCallback 向钉钉注册事件回调，events 为空时订阅默认通讯录事件
func (s *SyncService) RegisterCallback(ctx context.Context, config *models.DingTalkConfig, events []string) (map[string]interface{}, error) {
	if err := ensureEnabled(config); err != nil {
		return nil, err
	}
	if config.CallbackURL == "" || config.CallbackToken == "" || config.CallbackAESKey == "" {
		return nil, &dingtalk_client.ConfigurationError{Message: MsgMissingCallback}
	}
	if len(events) == 0 {
		events = DefaultCallbackEvents
	}

	client, err := s.newClient(config)
	if err != nil {
		return nil, err
	}
	resp, err := client.RegisterEventSubscribe(ctx, events)
	if err != nil {
		return nil, err
	}
	slog.Info("钉钉事件回调注册成功", "config_id", config.ID, "url", config.CallbackURL, "events", events)
	return resp, nil
}

// UnregisterCallback 删除钉钉事件回调
func (s *SyncService) UnregisterCallback(ctx context.Context, config *models.DingTalkConfig) (map[string]interface{}, error) {
	client, err := s.newClient(config)
	if err != nil {
		return nil, err
	}
	resp, err := client.UnregisterEventSubscribe(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("钉钉事件回调已删除", "config_id", config.ID)
	return resp, nil
}
