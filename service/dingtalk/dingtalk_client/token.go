package dingtalk_client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/spf13/cast"
)

const (
	// tokenRefreshSkew 缓存令牌剩余有效期小于该值时重新获取
	tokenRefreshSkew = 2 * time.Minute
	// tokenExpirySafety 令牌有效期提前量
	tokenExpirySafety = 60 * time.Second
	// defaultTokenExpiresIn 钉钉未返回有效期时的默认值（秒）
	defaultTokenExpiresIn = 7200
)

// GetAccessToken 获取访问令牌，缓存令牌剩余有效期超过2分钟且未强制刷新时直接返回
func (c *Client) GetAccessToken(ctx context.Context, forceRefresh bool) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	now := c.now()
	if !forceRefresh && c.config.TokenValidAt(now, tokenRefreshSkew) {
		return c.config.AccessToken, nil
	}

	params := url.Values{}
	params.Set("appkey", c.config.AppKey)
	params.Set("appsecret", c.config.AppSecret)
	payload, err := c.request(ctx, "GET", "/gettoken", params, nil, "")
	if err != nil {
		return "", err
	}

	accessToken := cast.ToString(payload["access_token"])
	expiresIn := defaultTokenExpiresIn
	if value, ok := payload["expires_in"]; ok && value != nil {
		expiresIn = cast.ToInt(value)
	}
	lifetime := time.Duration(expiresIn)*time.Second - tokenExpirySafety
	if lifetime < tokenExpirySafety {
		lifetime = tokenExpirySafety
	}
	expiresAt := now.Add(lifetime)

	c.config.AccessToken = accessToken
	c.config.AccessTokenExpiresAt = &expiresAt

	if c.tokenStore != nil {
		if err := c.tokenStore.SaveAccessToken(ctx, c.config.ID, accessToken, expiresAt); err != nil {
			return "", fmt.Errorf("保存钉钉访问令牌失败: %w", err)
		}
	}

	slog.Debug("钉钉访问令牌已刷新", "config_id", c.config.ID, "expires_at", expiresAt)
	return accessToken, nil
}
