package dingtalk_client

import (
	"context"
	"log/slog"
	"time"

	"dingtalk-sync-service/service/meta"

	"github.com/spf13/cast"
)

const (
	// attendanceBatchSize 考勤接口每批用户数及每页记录数
	attendanceBatchSize = 50
	// attendanceMaxRetries 触发限流（90018）时的最大重试次数
	attendanceMaxRetries = 3
	attendanceTimeLayout = "2006-01-02 15:04:05"
)

// attendanceBackoff 第 attempt 次重试前的等待时长：0.8s + 0.4s × attempt
func attendanceBackoff(attempt int) time.Duration {
	return 800*time.Millisecond + time.Duration(attempt)*400*time.Millisecond
}

// ListAttendanceRecords 拉取用户在时间窗口内的打卡记录，用户每50人一批，每批按 offset/limit 分页
func (c *Client) ListAttendanceRecords(ctx context.Context, userIDs []string, start, end time.Time) ([]map[string]interface{}, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	token, err := c.GetAccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	startStr := start.In(c.location).Format(attendanceTimeLayout)
	endStr := end.In(c.location).Format(attendanceTimeLayout)

	var results []map[string]interface{}
	for _, batch := range chunkStrings(userIDs, attendanceBatchSize) {
		offset := 0
		limit := attendanceBatchSize
		for {
			var payload map[string]interface{}
			policy := retryPolicy{
				maxRetries: attendanceMaxRetries,
				shouldRetry: func(err error) bool {
					apiErr, ok := AsAPIError(err)
					return ok && apiErr.ErrCode() == meta.DingTalkErrCodeRateLimited
				},
				backoff: attendanceBackoff,
				onRetry: func(attempt int, wait time.Duration, err error) {
					slog.Warn("钉钉考勤接口触发限流，准备重试",
						"config_id", c.config.ID,
						"offset", offset,
						"retries", attempt,
						"backoff", wait)
				},
			}
			err := c.withRetry(ctx, policy, func() error {
				if err := c.acquire(ctx, meta.RateBucketAttendance, meta.DefaultRateLimit); err != nil {
					return err
				}
				var reqErr error
				payload, reqErr = c.request(ctx, "POST", "/attendance/listRecord", nil, map[string]interface{}{
					"userIdList":    batch,
					"userIds":       batch,
					"checkDateFrom": startStr,
					"checkDateTo":   endStr,
					"isI18n":        false,
					"offset":        offset,
					"limit":         limit,
				}, token)
				return reqErr
			})
			if err != nil {
				return nil, err
			}

			var records []map[string]interface{}
			var hasMore interface{}
			resultObj := payload["result"]
			if !truthy(resultObj) {
				resultObj = payload
			}
			switch result := resultObj.(type) {
			case map[string]interface{}:
				records = asObjects(result["recordresult"])
				hasMore = result["has_more"]
				if hasMore == nil {
					hasMore = result["hasMore"]
				}
			case []interface{}:
				records = asObjects(result)
			}
			results = append(results, records...)

			if len(records) < limit || (hasMore != nil && !cast.ToBool(hasMore)) {
				break
			}
			offset += limit
		}
	}
	return results, nil
}
