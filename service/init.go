/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移、钉钉同步服务与调度器的装配
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 应用启动时执行初始化流程：数据库 -> 迁移 -> Redis -> 同步服务 -> 事件推送 -> 调度器
 * @rules 确保所有依赖服务正常启动后才提供API服务；Redis、Kafka、MQTT、Dapr 均为可选依赖
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/go-redis/redis/v8, github.com/spf13/cast
 * @refs service/dingtalk/dingtalk_sync, service/scheduler, service/event, service/cleanup
 */

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"dingtalk-sync-service/logger"
	"dingtalk-sync-service/service/cleanup"
	"dingtalk-sync-service/service/database"
	"dingtalk-sync-service/service/dingtalk/dingtalk_client"
	"dingtalk-sync-service/service/dingtalk/dingtalk_mapper"
	"dingtalk-sync-service/service/dingtalk/dingtalk_sync"
	"dingtalk-sync-service/service/distributed_lock"
	"dingtalk-sync-service/service/event"
	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/monitoring"
	"dingtalk-sync-service/service/rate_limiter"
	"dingtalk-sync-service/service/scheduler"
	"dingtalk-sync-service/service/utils"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                     *gorm.DB
	RedisClient            *redis.Client
	GlobalSyncMetrics      *monitoring.SyncMetrics
	GlobalMetricsCollector *monitoring.MetricsCollector
	GlobalSyncService      *dingtalk_sync.SyncService
	GlobalEventBus         *event.EventBus
	GlobalSchedulerService *scheduler.SchedulerService
	GlobalCleanupService   *cleanup.LogCleanupService
)

func init() {
	logger.InitLogger()
	initDatabase()
	runMigrations()
	initRedis()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := os.Getenv("DB_PASSWORD")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		slog.Error("数据库连接失败", "error", err)
		os.Exit(1)
	}

	slog.Info("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	slog.Info("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		slog.Error("数据库迁移失败", "error", err)
		os.Exit(1)
	}

	if err := database.InitializeData(DB); err != nil {
		slog.Error("基础数据初始化失败", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrateView(DB); err != nil {
		slog.Error("视图迁移失败", "error", err)
		os.Exit(1)
	}

	slog.Info("所有数据库迁移任务完成")
}

// initRedis 初始化Redis连接，未配置或不可用时退化为进程内限流与锁
func initRedis() {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		slog.Info("未配置 REDIS_HOST，使用进程内限流器与锁")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, getEnvWithDefault("REDIS_PORT", "6379")),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       cast.ToInt(getEnvWithDefault("REDIS_DB", "0")),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis连接失败，使用进程内限流器与锁", "addr", client.Options().Addr, "error", err)
		client.Close()
		return
	}

	RedisClient = client
	slog.Info("Redis连接成功", "addr", client.Options().Addr)
}

// initServices 初始化服务
func initServices() {
	GlobalSyncMetrics = monitoring.NewSyncMetrics()
	prometheus.MustRegister(GlobalSyncMetrics)
	GlobalMetricsCollector = monitoring.NewMetricsCollector(DB)

	location := loadLocation()
	dingtalk_mapper.SetDefaultLocation(location)

	cipher, err := utils.NewSecretCipher(os.Getenv("DINGTALK_SECRET_KEY"))
	if err != nil {
		slog.Error("初始化密钥加密失败", "error", err)
		os.Exit(1)
	}
	if !cipher.Enabled() {
		slog.Warn("未配置 DINGTALK_SECRET_KEY，AppSecret 将以明文存储")
	}

	var limiter rate_limiter.Limiter
	var lock distributed_lock.DistributedLock
	if RedisClient != nil {
		limiter = rate_limiter.NewRedisRateLimiter(RedisClient, GlobalSyncMetrics.ObserveRateLimitWait)
		lock = distributed_lock.NewRedisLock(RedisClient)
	} else {
		limiter = rate_limiter.NewSlidingWindowLimiter(GlobalSyncMetrics.ObserveRateLimitWait)
		lock = distributed_lock.NewLocalLock()
	}

	store := dingtalk_sync.NewStore(DB, cipher)
	ledger := dingtalk_sync.NewLedger(DB)
	GlobalSyncService = dingtalk_sync.NewSyncService(store, ledger, dingtalk_sync.Options{
		ClientOptions: dingtalk_client.Options{
			BaseURL:        os.Getenv("DINGTALK_BASE_URL"),
			OpenAPIBaseURL: os.Getenv("DINGTALK_OPEN_API_BASE_URL"),
			Timeout:        time.Duration(cast.ToInt(getEnvWithDefault("DINGTALK_TIMEOUT", "10"))) * time.Second,
			ProxyURL:       os.Getenv("DINGTALK_PROXY"),
			Limiter:        limiter,
			Location:       location,
		},
		Metrics:      GlobalSyncMetrics,
		RosterFields: splitList(os.Getenv("DINGTALK_DIMISSION_ROSTER_FIELDS")),
	})

	GlobalEventBus = event.NewEventBus(event.DefaultQueueSize, initEventSinks()...)
	GlobalSyncService.Hooks().Subscribe(GlobalEventBus.Observe)
	GlobalSyncService.Hooks().Subscribe(logSyncEvent)

	executor := scheduler.NewTaskExecutor(GlobalSyncService, lock, cast.ToInt(getEnvWithDefault("SCHEDULER_MAX_WORKERS", "4")))
	GlobalSchedulerService = scheduler.NewSchedulerService(store, executor)
	if cast.ToBool(getEnvWithDefault("SCHEDULER_ENABLED", "true")) {
		if err := GlobalSchedulerService.Start(); err != nil {
			slog.Error("启动调度器服务失败", "error", err)
		}
	} else {
		slog.Info("调度器已禁用 (SCHEDULER_ENABLED=false)")
	}

	GlobalCleanupService = cleanup.NewLogCleanupService(DB, cleanup.RetentionPolicy{
		SyncLogDays:    cast.ToInt(getEnvWithDefault("DINGTALK_LOG_RETENTION_DAYS", cast.ToString(cleanup.DefaultSyncLogRetentionDays))),
		AttendanceDays: cast.ToInt(getEnvWithDefault("DINGTALK_ATTENDANCE_RETENTION_DAYS", cast.ToString(cleanup.DefaultAttendanceRetentionDays))),
		CronExpr:       os.Getenv("DINGTALK_CLEANUP_CRON"),
	})
	if err := GlobalCleanupService.StartScheduledCleanup(); err != nil {
		slog.Error("启动保留期清理失败", "error", err)
	}

	slog.Info("服务初始化完成", "event_sinks", GlobalEventBus.SinkNames())
}

// initEventSinks 按环境变量创建同步事件推送通道
func initEventSinks() []event.Sink {
	var sinks []event.Sink

	if brokers := splitList(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		topic := getEnvWithDefault("KAFKA_SYNC_TOPIC", "dingtalk-sync-events")
		sinks = append(sinks, event.NewKafkaSink(brokers, topic))
		slog.Info("启用Kafka同步事件推送", "brokers", brokers, "topic", topic)
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		sink, err := event.NewMQTTSink(event.MQTTOptions{
			Broker:   broker,
			ClientID: os.Getenv("MQTT_CLIENT_ID"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			Topic:    getEnvWithDefault("MQTT_SYNC_TOPIC", "dingtalk/sync"),
		})
		if err != nil {
			slog.Error("启用MQTT同步事件推送失败", "broker", broker, "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if pubsub := os.Getenv("DAPR_PUBSUB_NAME"); pubsub != "" {
		sink, err := event.NewDaprSink(pubsub, getEnvWithDefault("DAPR_SYNC_TOPIC", "dingtalk-sync-events"))
		if err != nil {
			slog.Error("启用Dapr同步事件推送失败", "pubsub", pubsub, "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	return sinks
}

// logSyncEvent 同步失败事件的日志观察者
func logSyncEvent(ctx context.Context, evt models.DingTalkSyncEvent) {
	if evt.Error != "" {
		slog.Warn("钉钉同步失败事件", "config_id", evt.ConfigID, "operation", evt.Operation, "error", evt.Error)
	}
}

// loadLocation 考勤与时间解析使用的时区，默认 Asia/Shanghai
func loadLocation() *time.Location {
	name := getEnvWithDefault("DINGTALK_TIMEZONE", "Asia/Shanghai")
	location, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("加载时区失败，使用本地时区", "timezone", name, "error", err)
		return time.Local
	}
	return location
}

// splitList 解析逗号分隔的环境变量
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Shutdown 停止调度器并推送完剩余事件
func Shutdown() {
	if GlobalSchedulerService != nil {
		GlobalSchedulerService.Stop()
	}
	if GlobalCleanupService != nil {
		GlobalCleanupService.StopScheduledCleanup()
	}
	if GlobalEventBus != nil {
		if err := GlobalEventBus.Close(); err != nil {
			slog.Error("关闭同步事件总线失败", "error", err)
		}
	}
	if RedisClient != nil {
		RedisClient.Close()
	}
	slog.Info("服务已停止")
}
