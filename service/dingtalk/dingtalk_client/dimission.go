package dingtalk_client

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"dingtalk-sync-service/service/meta"

	"github.com/spf13/cast"
)

// 调用方未指定分页大小时的默认值
const (
	DefaultDimissionMaxResults        = 50
	DefaultDimissionRecordsMaxResults = 200
)

const (
	dimissionBatchSize          = 50
	dimissionRecordsFallbackMax = 20
	dimissionRecordsWindow      = 365 * 24 * time.Hour
	dimissionRecordsTimeLayout  = "2006-01-02 15:04:05"
)

// 降级端点名称，用于日志与指标
const (
	endpointDimissionIDs   = "dimission-ids"
	endpointDimissionInfos = "dimission-infos"
	endpointRosterInfos    = "roster-infos"
)

// withFallback 先调用新版接口，任何 APIError 都降级到旧版接口；ctx 取消等非接口错误直接返回
func (c *Client) withFallback(endpoint string, open func() error, legacy func() error) error {
	err := open()
	if err == nil {
		return nil
	}
	if _, ok := AsAPIError(err); !ok {
		return err
	}

	slog.Warn("钉钉新版接口调用失败，降级到旧版接口",
		"config_id", c.config.ID,
		"endpoint", endpoint,
		"error", err)
	c.metrics.ObserveFallback(endpoint)
	return legacy()
}

// ListDimissionUserIDs 拉取离职员工ID列表，去重并保持首次出现顺序
func (c *Client) ListDimissionUserIDs(ctx context.Context, maxResults int) ([]string, error) {
	if maxResults <= 0 {
		maxResults = DefaultDimissionMaxResults
	}
	var userIDs []string
	err := c.withFallback(endpointDimissionIDs,
		func() error {
			var err error
			userIDs, err = c.listDimissionUserIDsOpenAPI(ctx, maxResults)
			return err
		},
		func() error {
			var err error
			userIDs, err = c.listDimissionUserIDsLegacy(ctx, maxResults)
			return err
		})
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (c *Client) listDimissionUserIDsOpenAPI(ctx context.Context, maxResults int) ([]string, error) {
	pageSize := clamp(maxResults, 1, 100)
	var userIDs []string
	nextToken := ""
	for {
		params := map[string]interface{}{"maxResults": pageSize}
		if nextToken != "" {
			params["nextToken"] = nextToken
		}
		if err := c.acquire(ctx, meta.RateBucketDimissionList, meta.DefaultRateLimit); err != nil {
			return nil, err
		}
		payload, err := c.requestOpenAPI(ctx, "GET", "/v1.0/hrm/employees/dismissions", params)
		if err != nil {
			return nil, err
		}

		userIDs = append(userIDs, toStrings(payload["userIdList"])...)
		nextToken = cast.ToString(payload["nextToken"])
		if !cast.ToBool(payload["hasMore"]) || nextToken == "" {
			break
		}
	}
	return dedupStrings(userIDs), nil
}

func (c *Client) listDimissionUserIDsLegacy(ctx context.Context, maxResults int) ([]string, error) {
	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	size := clamp(maxResults, 1, 50)
	offset := 0
	var userIDs []string
	for {
		if err := c.acquire(ctx, meta.RateBucketDimissionList, meta.DefaultRateLimit); err != nil {
			return nil, err
		}
		payload, err := c.request(ctx, "POST", "/topapi/smartwork/hrm/employee/querydimission", nil, map[string]interface{}{
			"offset": offset,
			"size":   size,
		}, token)
		if err != nil {
			return nil, err
		}

		result := asMap(payload["result"])
		userIDs = append(userIDs, toStrings(firstPresent(result["userid_list"], result["useridList"]))...)
		if !cast.ToBool(firstPresent(result["has_more"], result["hasMore"])) {
			break
		}
		offset += size
	}
	return dedupStrings(userIDs), nil
}

// ListDimissionInfos 批量拉取离职员工详情（每批50人）
func (c *Client) ListDimissionInfos(ctx context.Context, userIDs []string) ([]map[string]interface{}, error) {
	ids := dedupStrings(userIDs)
	var results []map[string]interface{}
	err := c.withFallback(endpointDimissionInfos,
		func() error {
			var err error
			results, err = c.listDimissionInfosOpenAPI(ctx, ids)
			return err
		},
		func() error {
			var err error
			results, err = c.listDimissionInfosLegacy(ctx, ids)
			return err
		})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) listDimissionInfosOpenAPI(ctx context.Context, userIDs []string) ([]map[string]interface{}, error) {
	var results []map[string]interface{}
	for _, batch := range chunkStrings(userIDs, dimissionBatchSize) {
		if err := c.acquire(ctx, meta.RateBucketDimissionInfo, meta.DefaultRateLimit); err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(batch)
		if err != nil {
			return nil, err
		}
		payload, err := c.requestOpenAPI(ctx, "GET", "/v1.0/hrm/employees/dimissionInfos", map[string]interface{}{
			"userIdList": string(encoded),
		})
		if err != nil {
			return nil, err
		}

		data := firstPresent(payload["result"], payload["data"])
		if object, ok := data.(map[string]interface{}); ok {
			data = object["records"]
		}
		results = append(results, asObjects(data)...)
	}
	return results, nil
}

func (c *Client) listDimissionInfosLegacy(ctx context.Context, userIDs []string) ([]map[string]interface{}, error) {
	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for _, batch := range chunkStrings(userIDs, dimissionBatchSize) {
		if err := c.acquire(ctx, meta.RateBucketDimissionInfo, meta.DefaultRateLimit); err != nil {
			return nil, err
		}
		payload, err := c.request(ctx, "POST", "/topapi/smartwork/hrm/employee/listdimission", nil, map[string]interface{}{
			"userid_list": strings.Join(batch, ","),
		}, token)
		if err != nil {
			return nil, err
		}

		result := asMap(payload["result"])
		results = append(results, asObjects(firstPresent(result["data_list"], result["dataList"]))...)
	}
	return results, nil
}

// ListDimissionRecords 拉取时间窗口内的离职记录（仅新版接口）
// start/end 为零值时默认 end=now、start=end-365天；分页大小限制在 1..50，
// 钉钉拒绝分页大小（invalidmaxresults）且当前大小超过20时，以20重试一次
func (c *Client) ListDimissionRecords(ctx context.Context, start, end time.Time, maxResults int) ([]map[string]interface{}, error) {
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return nil, NewAPIError(MsgStartAfterEnd, nil)
	}
	if end.IsZero() {
		end = c.now()
	}
	if start.IsZero() {
		start = end.Add(-dimissionRecordsWindow)
	}

	from := start.UTC().Format(dimissionRecordsTimeLayout)
	to := end.UTC().Format(dimissionRecordsTimeLayout)

	if maxResults <= 0 {
		maxResults = DefaultDimissionRecordsMaxResults
	}
	pageSize := clamp(maxResults, 1, 50)
	records, err := c.fetchDimissionRecords(ctx, from, to, pageSize)
	if err == nil {
		return records, nil
	}

	apiErr, ok := AsAPIError(err)
	if ok && isInvalidMaxResults(apiErr) && pageSize > dimissionRecordsFallbackMax {
		slog.Warn("钉钉离职记录接口拒绝 maxResults，改用较小分页重试",
			"config_id", c.config.ID,
			"max_results", pageSize,
			"fallback", dimissionRecordsFallbackMax)
		return c.fetchDimissionRecords(ctx, from, to, dimissionRecordsFallbackMax)
	}
	return nil, err
}

func (c *Client) fetchDimissionRecords(ctx context.Context, from, to string, pageSize int) ([]map[string]interface{}, error) {
	var records []map[string]interface{}
	nextToken := ""
	for {
		params := map[string]interface{}{
			"fromDate":   from,
			"toDate":     to,
			"startTime":  from,
			"endTime":    to,
			"maxResults": pageSize,
		}
		if nextToken != "" {
			params["nextToken"] = nextToken
		}
		if err := c.acquire(ctx, meta.RateBucketDimissionRecords, meta.RosterRateLimit); err != nil {
			return nil, err
		}
		payload, err := c.requestOpenAPI(ctx, "GET", "/v1.0/contact/empLeaveRecords", params)
		if err != nil {
			return nil, err
		}

		items := firstPresent(payload["records"], payload["data"])
		if object, ok := items.(map[string]interface{}); ok {
			items = object["records"]
		}
		records = append(records, asObjects(items)...)

		nextToken = cast.ToString(firstPresent(payload["nextToken"], payload["next_token"]))
		if nextToken == "" {
			break
		}
	}
	return records, nil
}

func isInvalidMaxResults(err *APIError) bool {
	if strings.EqualFold(err.Code(), meta.DingTalkErrInvalidMaxResults) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), meta.DingTalkErrInvalidMaxResults)
}

// toStrings 将 JSON 数组转换为字符串列表，忽略空值
func toStrings(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if !truthy(item) {
			continue
		}
		if text := cast.ToString(item); text != "" {
			result = append(result, text)
		}
	}
	return result
}
