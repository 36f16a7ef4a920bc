/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新钉钉同步相关表结构
 * @architecture 数据访问层 - 迁移管理
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 应用启动时执行数据库迁移 -> 创建索引 -> 初始化默认配置
 * @rules 确保数据库结构与模型定义保持一致；迁移可重复执行
 * @dependencies dingtalk-sync-service/service/models, gorm.io/gorm
 * @refs service/models/dingtalk_config.go, service/models/dingtalk_snapshot.go
 */

package database

import (
	"fmt"
	"log/slog"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	slog.Info("开始数据库迁移...")

	// 配置与快照表
	err := db.AutoMigrate(
		&models.DingTalkConfig{},
		&models.DingTalkDepartment{},
		&models.DingTalkUser{},
		&models.DingTalkAttendanceRecord{},
		&models.DingTalkDimissionUser{},
		&models.DingTalkDeptBinding{},
		&models.DingTalkUserBinding{},
	)
	if err != nil {
		return fmt.Errorf("迁移钉钉快照表失败: %w", err)
	}

	// 同步日志与游标表
	err = db.AutoMigrate(
		&models.DingTalkSyncLog{},
		&models.DingTalkSyncCursor{},
	)
	if err != nil {
		return fmt.Errorf("迁移钉钉同步日志表失败: %w", err)
	}

	if err := CreateSyncIndexes(db); err != nil {
		return err
	}

	slog.Info("数据库迁移完成")
	return nil
}

// CreateSyncIndexes 创建查询用的辅助索引
func CreateSyncIndexes(db *gorm.DB) error {
	indexQueries := []string{
		"CREATE INDEX IF NOT EXISTS idx_dingtalk_sync_log_config_operation ON dingtalk_sync_log(config_id, operation, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_dingtalk_sync_log_status ON dingtalk_sync_log(status)",
		"CREATE INDEX IF NOT EXISTS idx_dingtalk_attendance_config_time ON dingtalk_attendance_record(config_id, user_check_time)",
		"CREATE INDEX IF NOT EXISTS idx_dingtalk_dimission_leave_time ON dingtalk_dimission_user(config_id, leave_time)",
		"CREATE INDEX IF NOT EXISTS idx_dingtalk_config_enabled ON dingtalk_config(enabled)",
	}

	for _, query := range indexQueries {
		if err := db.Exec(query).Error; err != nil {
			slog.Error("创建钉钉同步索引失败", "sql", query, "error", err)
			return fmt.Errorf("创建索引失败: %w", err)
		}
	}
	return nil
}

// InitializeData 初始化默认钉钉配置，已存在时不做修改
func InitializeData(db *gorm.DB) error {
	slog.Info("开始初始化基础数据...")

	config := models.DingTalkConfig{
		ID:        meta.DingTalkDefaultConfigID,
		Name:      meta.DingTalkDefaultConfigName,
		SyncUsers: true,
		SyncDepts: true,
		Schedule:  models.JSONB{},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&config).Error; err != nil {
		return fmt.Errorf("初始化默认钉钉配置失败: %w", err)
	}

	slog.Info("基础数据初始化完成", "default_config", meta.DingTalkDefaultConfigID)
	return nil
}
