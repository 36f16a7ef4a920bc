/*
 * @module service/dingtalk/dingtalk_client/client
 * @description 钉钉开放平台客户端，封装旧版 TopAPI 与新版 OpenAPI 两套协议
 * @architecture 适配器模式 - 上游接口适配层
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 构造客户端(校验凭据) -> 获取令牌 -> 限流 -> 发起请求 -> 解析/校验响应
 * @rules 旧版接口以 access_token 查询参数鉴权，新版接口以 x-acs-dingtalk-access-token 请求头鉴权；
 *        网络异常、5xx、非JSON、非对象响应统一转换为 APIError
 * @dependencies net/http, github.com/spf13/cast
 * @refs service/rate_limiter, service/monitoring/metrics.go
 */

package dingtalk_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/monitoring"
	"dingtalk-sync-service/service/rate_limiter"

	"github.com/spf13/cast"
)

// openAPITokenHeader 新版接口鉴权请求头
const openAPITokenHeader = "x-acs-dingtalk-access-token"

// 接口族，用于指标标签
const (
	familyLegacy = "legacy"
	familyOpen   = "open"
)

// defaultLimiter 进程内共享限流器，未显式注入时所有客户端共用
var defaultLimiter = rate_limiter.NewSlidingWindowLimiter(nil)

// TokenStore 访问令牌持久化
type TokenStore interface {
	SaveAccessToken(ctx context.Context, configID, token string, expiresAt time.Time) error
}

// Options 客户端选项
type Options struct {
	BaseURL        string
	OpenAPIBaseURL string
	Timeout        time.Duration
	ProxyURL       string
	HTTPClient     *http.Client
	Limiter        rate_limiter.Limiter
	TokenStore     TokenStore
	Metrics        *monitoring.SyncMetrics
	// Location 考勤时间窗口格式化使用的时区
	Location *time.Location
	// Now/Sleep 仅用于测试注入
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client 钉钉开放平台客户端
type Client struct {
	config         *models.DingTalkConfig
	baseURL        string
	openAPIBaseURL string
	httpClient     *http.Client
	limiter        rate_limiter.Limiter
	tokenStore     TokenStore
	metrics        *monitoring.SyncMetrics
	location       *time.Location
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error

	tokenMu sync.Mutex
}

// NewClient 创建钉钉客户端，AppKey/AppSecret 缺失时返回 ConfigurationError
func NewClient(config *models.DingTalkConfig, opts Options) (*Client, error) {
	if config == nil || !config.HasCredentials() {
		return nil, &ConfigurationError{Message: MsgMissingCredentials}
	}

	if opts.BaseURL == "" {
		opts.BaseURL = meta.DingTalkBaseURL
	}
	if opts.OpenAPIBaseURL == "" {
		opts.OpenAPIBaseURL = meta.DingTalkOpenAPIBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = meta.DingTalkDefaultTimeout
	}
	if opts.Limiter == nil {
		opts.Limiter = defaultLimiter
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.ProxyURL != "" {
			proxy, err := url.Parse(opts.ProxyURL)
			if err != nil {
				return nil, &ConfigurationError{Message: fmt.Sprintf("钉钉代理地址无效: %v", err)}
			}
			transport.Proxy = http.ProxyURL(proxy)
		}
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		}
	}

	return &Client{
		config:         config,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		openAPIBaseURL: strings.TrimRight(opts.OpenAPIBaseURL, "/"),
		httpClient:     httpClient,
		limiter:        opts.Limiter,
		tokenStore:     opts.TokenStore,
		metrics:        opts.Metrics,
		location:       opts.Location,
		now:            opts.Now,
		sleep:          opts.Sleep,
	}, nil
}

// ConfigID 客户端所属配置ID
func (c *Client) ConfigID() string {
	return c.config.ID
}

// acquire 按 "配置ID:桶" 限流
func (c *Client) acquire(ctx context.Context, bucket string, limit int) error {
	return c.limiter.Acquire(ctx, rate_limiter.BucketKey(c.config.ID, bucket), limit, meta.DefaultRateWindow)
}

// request 调用旧版 TopAPI
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body interface{}, accessToken string) (payload map[string]interface{}, err error) {
	defer func() { c.metrics.ObserveUpstream(familyLegacy, err) }()

	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	if accessToken != "" && query.Get("access_token") == "" {
		query.Set("access_token", accessToken)
	}

	resp, err := c.do(ctx, method, c.baseURL+path, query, body, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, NewAPIError(fmt.Sprintf("钉钉接口服务异常: %d", resp.StatusCode), nil)
	}

	raw, err := decodeResponse(resp.Body)
	if err != nil {
		return nil, NewAPIError("钉钉接口返回非 JSON 数据", map[string]interface{}{"text": err.Error()})
	}

	object, ok := raw.(map[string]interface{})
	if !ok {
		return nil, NewAPIError("钉钉接口返回格式异常", map[string]interface{}{"raw": raw})
	}
	if errcode, exists := object["errcode"]; exists && errcode != nil && cast.ToString(errcode) != "0" {
		errmsg := cast.ToString(object["errmsg"])
		if errmsg == "" {
			errmsg = "钉钉接口调用失败"
		}
		return nil, NewAPIError(fmt.Sprintf("%s(errcode=%s)", errmsg, cast.ToString(errcode)), object)
	}
	return object, nil
}

// requestOpenAPI 调用新版 OpenAPI，GET 参数放在查询串，其余方法以 JSON 请求体发送
func (c *Client) requestOpenAPI(ctx context.Context, method, path string, params map[string]interface{}) (payload map[string]interface{}, err error) {
	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	defer func() { c.metrics.ObserveUpstream(familyOpen, err) }()

	target := path
	if !strings.HasPrefix(path, "http") {
		target = c.openAPIBaseURL + path
	}

	var query url.Values
	var body interface{}
	if strings.EqualFold(method, http.MethodGet) {
		query = url.Values{}
		for key, value := range params {
			query.Set(key, cast.ToString(value))
		}
	} else if params != nil {
		body = params
	}

	resp, err := c.do(ctx, method, target, query, body, map[string]string{openAPITokenHeader: token})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, NewAPIError(fmt.Sprintf("钉钉开放接口服务异常: %d", resp.StatusCode), nil)
	}

	raw, err := decodeResponse(resp.Body)
	if err != nil {
		return nil, NewAPIError("钉钉开放接口返回非 JSON 数据", map[string]interface{}{"text": err.Error()})
	}

	object, ok := raw.(map[string]interface{})
	if !ok {
		return nil, NewAPIError("钉钉开放接口返回格式异常", map[string]interface{}{"raw": raw})
	}
	if code, exists := object["code"]; exists && code != nil && cast.ToString(code) != "0" {
		message := firstNonEmptyString(object["message"], object["msg"])
		if message == "" {
			message = "钉钉开放接口调用失败"
		}
		return nil, NewAPIError(fmt.Sprintf("%s(code=%s)", message, cast.ToString(code)), object)
	}
	return object, nil
}

// do 发送HTTP请求，网络异常转换为 APIError，ctx 取消时原样返回
func (c *Client) do(ctx context.Context, method, target string, query url.Values, body interface{}, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, reader)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("钉钉接口网络异常", "config_id", c.config.ID, "url", req.URL.Path, "error", err)
		return nil, NewAPIError(fmt.Sprintf("钉钉接口网络异常: %v", err), nil)
	}
	return resp, nil
}

func decodeResponse(body io.Reader) (interface{}, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s", truncate(string(data), 512))
	}
	return raw, nil
}

func truncate(value string, size int) string {
	if len(value) <= size {
		return value
	}
	return value[:size]
}

func firstNonEmptyString(values ...interface{}) string {
	for _, value := range values {
		if text := strings.TrimSpace(cast.ToString(value)); text != "" {
			return text
		}
	}
	return ""
}

// asMap 将任意值视为 JSON 对象
func asMap(value interface{}) map[string]interface{} {
	if object, ok := value.(map[string]interface{}); ok {
		return object
	}
	return nil
}

// asObjects 提取 JSON 数组中的对象元素
func asObjects(value interface{}) []map[string]interface{} {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	result := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if object, ok := item.(map[string]interface{}); ok {
			result = append(result, object)
		}
	}
	return result
}

// firstPresent 依次取第一个“真值”（非nil、非空串、非空数组/对象、非false、非0）
func firstPresent(values ...interface{}) interface{} {
	for _, value := range values {
		if truthy(value) {
			return value
		}
	}
	return nil
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		return true
	}
}

// chunkStrings 按批次大小切分
func chunkStrings(items []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// dedupStrings 去重并保持首次出现顺序，忽略空值
func dedupStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
