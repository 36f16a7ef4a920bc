/*
 * @module service/monitoring/metrics
 * @description 钉钉同步 Prometheus 指标：同步次数、耗时、上游请求、限流等待、接口降级
 * @architecture 分层架构 - 可观测性
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 业务代码埋点 -> 指标累计 -> /metrics 暴露
 * @rules 标签取值必须是有限集合（操作名、接口族、限流桶），不能使用用户ID等高基数值
 * @dependencies github.com/prometheus/client_golang
 * @refs main.go, service/dingtalk/dingtalk_client, service/dingtalk/dingtalk_sync
 */

package monitoring

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "dingtalk"

// SyncMetrics 钉钉同步指标集合，实现 prometheus.Collector
type SyncMetrics struct {
	syncOperations   *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	rateLimitWait    *prometheus.CounterVec
	apiFallbacks     *prometheus.CounterVec
}

// NewSyncMetrics 创建指标集合
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		syncOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_operations_total",
				Help:      "钉钉同步操作次数",
			}, []string{"operation", "status"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "sync_duration_seconds",
				Help:      "钉钉同步操作耗时",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 300, 900},
			}, []string{"operation"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_requests_total",
				Help:      "钉钉开放平台接口调用次数",
			}, []string{"family", "result"},
		),
		rateLimitWait: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limit_wait_seconds_total",
				Help:      "因限流累计等待的秒数",
			}, []string{"bucket"},
		),
		apiFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "api_fallback_total",
				Help:      "新版接口失败后降级到旧版接口的次数",
			}, []string{"endpoint"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.syncOperations.Describe(ch)
	m.syncDuration.Describe(ch)
	m.upstreamRequests.Describe(ch)
	m.rateLimitWait.Describe(ch)
	m.apiFallbacks.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.syncOperations.Collect(ch)
	m.syncDuration.Collect(ch)
	m.upstreamRequests.Collect(ch)
	m.rateLimitWait.Collect(ch)
	m.apiFallbacks.Collect(ch)
}

// ObserveSync 记录一次同步操作结果与耗时
func (m *SyncMetrics) ObserveSync(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncOperations.WithLabelValues(operation, status).Inc()
	m.syncDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveUpstream 记录一次上游接口调用，family 为 legacy/open
func (m *SyncMetrics) ObserveUpstream(family string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.upstreamRequests.WithLabelValues(family, result).Inc()
}

// ObserveRateLimitWait 记录限流等待，key 形如 "配置ID:桶"，只保留桶名作为标签
func (m *SyncMetrics) ObserveRateLimitWait(key string, wait time.Duration) {
	if m == nil {
		return
	}
	bucket := key
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		bucket = key[idx+1:]
	}
	m.rateLimitWait.WithLabelValues(bucket).Add(wait.Seconds())
}

// ObserveFallback 记录一次新版接口降级
func (m *SyncMetrics) ObserveFallback(endpoint string) {
	if m == nil {
		return
	}
	m.apiFallbacks.WithLabelValues(endpoint).Inc()
}
