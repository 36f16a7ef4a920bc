/*
 * @module cmd/internal/bootstrap
 * @description 命令行工具的装配：数据库连接、配置存储与钉钉客户端选项
 * @architecture 命令行工具公共组件
 * @documentReference ai_docs/dingtalk_sync.md
 * @rules 环境变量与服务进程保持一致；命令行工具不启动调度器与事件推送
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/spf13/cast
 * @refs service/init.go
 */

package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"dingtalk-sync-service/logger"
	"dingtalk-sync-service/service/dingtalk/dingtalk_client"
	"dingtalk-sync-service/service/dingtalk/dingtalk_mapper"
	"dingtalk-sync-service/service/dingtalk/dingtalk_sync"
	"dingtalk-sync-service/service/rate_limiter"
	"dingtalk-sync-service/service/utils"

	"github.com/spf13/cast"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Env 命令行工具运行环境
type Env struct {
	DB            *gorm.DB
	Store         *dingtalk_sync.Store
	ClientOptions dingtalk_client.Options
	RosterFields  []string
}

// Load 初始化日志、数据库与存储
func Load() (*Env, error) {
	logger.InitLogger()

	db, err := gorm.Open(postgres.Open(dsn()), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	cipher, err := utils.NewSecretCipher(os.Getenv("DINGTALK_SECRET_KEY"))
	if err != nil {
		return nil, fmt.Errorf("初始化密钥加密失败: %w", err)
	}

	location := time.Local
	if name := getEnvWithDefault("DINGTALK_TIMEZONE", "Asia/Shanghai"); name != "" {
		if loaded, err := time.LoadLocation(name); err == nil {
			location = loaded
		} else {
			slog.Warn("加载时区失败，使用本地时区", "timezone", name, "error", err)
		}
	}
	dingtalk_mapper.SetDefaultLocation(location)

	return &Env{
		DB:    db,
		Store: dingtalk_sync.NewStore(db, cipher),
		ClientOptions: dingtalk_client.Options{
			BaseURL:        os.Getenv("DINGTALK_BASE_URL"),
			OpenAPIBaseURL: os.Getenv("DINGTALK_OPEN_API_BASE_URL"),
			Timeout:        time.Duration(cast.ToInt(getEnvWithDefault("DINGTALK_TIMEOUT", "10"))) * time.Second,
			ProxyURL:       os.Getenv("DINGTALK_PROXY"),
			Limiter:        rate_limiter.NewSlidingWindowLimiter(nil),
			Location:       location,
		},
		RosterFields: SplitList(os.Getenv("DINGTALK_DIMISSION_ROSTER_FIELDS")),
	}, nil
}

// SyncService 创建同步服务，访问令牌写回配置
func (e *Env) SyncService() *dingtalk_sync.SyncService {
	return dingtalk_sync.NewSyncService(e.Store, dingtalk_sync.NewLedger(e.DB), dingtalk_sync.Options{
		ClientOptions: e.ClientOptions,
		RosterFields:  e.RosterFields,
	})
}

// Close 关闭数据库连接
func (e *Env) Close() {
	if sqlDB, err := e.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

func dsn() string {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
		getEnvWithDefault("DB_HOST", "localhost"),
		getEnvWithDefault("DB_PORT", "5432"),
		getEnvWithDefault("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		getEnvWithDefault("DB_NAME", "postgres"),
		getEnvWithDefault("DB_SSLMODE", "disable"),
		getEnvWithDefault("DB_SCHEMA", "public"))
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SplitList 解析逗号分隔的列表
func SplitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
