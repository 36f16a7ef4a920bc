package dingtalk_client

import (
	"context"
	"time"
)

// retryPolicy 重试策略
type retryPolicy struct {
	maxRetries  int
	shouldRetry func(err error) bool
	backoff     func(attempt int) time.Duration
	onRetry     func(attempt int, wait time.Duration, err error)
}

// withRetry 按策略执行 fn，可重试的错误在退避后重试，超过次数返回最后一次错误
func (c *Client) withRetry(ctx context.Context, policy retryPolicy, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= policy.maxRetries || !policy.shouldRetry(err) {
			return err
		}

		wait := policy.backoff(attempt)
		if policy.onRetry != nil {
			policy.onRetry(attempt, wait, err)
		}
		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
}
