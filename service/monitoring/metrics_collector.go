/*
 * @module service/monitoring/metrics_collector
 * @description 同步台账指标收集器，按时间范围统计钉钉同步的成功率、错误分布与数据量
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 查询同步日志 -> 计算聚合 -> 返回看板指标
 * @rules 只读同步日志，不修改任何数据
 * @dependencies dingtalk-sync-service/service/models, gorm.io/gorm, github.com/spf13/cast
 * @refs api/controllers/dingtalk_controller.go
 */

package monitoring

import (
	"fmt"
	"time"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	db  *gorm.DB
	now func() time.Time
}

// SyncTaskMetrics 同步任务指标
type SyncTaskMetrics struct {
	Timestamp          time.Time        `json:"timestamp"`
	ConfigID           string           `json:"config_id"`
	TimeRange          string           `json:"time_range"`
	TotalTasks         int64            `json:"total_tasks"`          // 总同步次数
	SuccessfulTasks    int64            `json:"successful_tasks"`     // 成功次数
	FailedTasks        int64            `json:"failed_tasks"`         // 失败次数
	WarningTasks       int64            `json:"warning_tasks"`        // 警告级别失败（配置/未启用）
	SuccessRate        float64          `json:"success_rate"`         // 成功率
	TotalDataProcessed int64            `json:"total_data_processed"` // 同步的记录总数
	ErrorDistribution  map[string]int64 `json:"error_distribution"`   // 按操作统计的失败次数
}

// countKeys 同步统计中代表记录数的字段
var countKeys = []string{"dept_count", "user_count", "dimission_count", "attendance_count"}

// NewMetricsCollector 创建指标收集器实例
func NewMetricsCollector(db *gorm.DB) *MetricsCollector {
	return &MetricsCollector{
		db:  db,
		now: time.Now,
	}
}

// CollectSyncTaskMetrics 收集同步任务指标
func (c *MetricsCollector) CollectSyncTaskMetrics(configID, timeRange string) (*SyncTaskMetrics, error) {
	startTime := c.parseTimeRange(timeRange)

	var logs []models.DingTalkSyncLog
	if err := c.db.Where("config_id = ? AND created_at >= ?", configID, startTime).
		Select("operation", "status", "level", "stats").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("查询同步日志失败: %w", err)
	}

	metrics := &SyncTaskMetrics{
		Timestamp:         c.now(),
		ConfigID:          configID,
		TimeRange:         timeRange,
		ErrorDistribution: make(map[string]int64),
	}

	for _, log := range logs {
		metrics.TotalTasks++
		switch log.Status {
		case meta.SyncStatusSuccess:
			metrics.SuccessfulTasks++
			metrics.TotalDataProcessed += sumCounts(log.Stats)
		case meta.SyncStatusFailed:
			metrics.FailedTasks++
			metrics.ErrorDistribution[log.Operation]++
			if log.Level == meta.SyncLevelWarning {
				metrics.WarningTasks++
			}
		}
	}

	if metrics.TotalTasks > 0 {
		metrics.SuccessRate = float64(metrics.SuccessfulTasks) / float64(metrics.TotalTasks) * 100
	}

	return metrics, nil
}

func sumCounts(stats models.JSONB) int64 {
	var total int64
	for _, key := range countKeys {
		if value, ok := stats[key]; ok {
			total += cast.ToInt64(value)
		}
	}
	return total
}

// 解析时间范围
func (c *MetricsCollector) parseTimeRange(timeRange string) time.Time {
	now := c.now()

	switch timeRange {
	case "1h":
		return now.Add(-1 * time.Hour)
	case "24h":
		return now.Add(-24 * time.Hour)
	case "7d":
		return now.Add(-7 * 24 * time.Hour)
	case "30d":
		return now.Add(-30 * 24 * time.Hour)
	default:
		return now.Add(-24 * time.Hour) // 默认24小时
	}
}
