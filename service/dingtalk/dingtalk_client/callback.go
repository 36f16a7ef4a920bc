package dingtalk_client

import (
	"context"
)

// RegisterEventSubscribe 注册事件回调，使用配置中的回调地址、token 与 aes_key
func (c *Client) RegisterEventSubscribe(ctx context.Context, events []string) (map[string]interface{}, error) {
	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	return c.request(ctx, "POST", "/call_back/register_call_back", nil, map[string]interface{}{
		"call_back_tag": events,
		"token":         c.config.CallbackToken,
		"aes_key":       c.config.CallbackAESKey,
		"url":           c.config.CallbackURL,
	}, token)
}

// UnregisterEventSubscribe 删除事件回调
func (c *Client) UnregisterEventSubscribe(ctx context.Context) (map[string]interface{}, error) {
	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	return c.request(ctx, "POST", "/call_back/delete_call_back", nil, nil, token)
}
