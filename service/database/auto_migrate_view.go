package database

import (
	"fmt"
	"log/slog"

	"dingtalk-sync-service/service/database/views"

	"gorm.io/gorm"
)

// AutoMigrateView 创建钉钉同步相关视图，非 PostgreSQL 数据库跳过
func AutoMigrateView(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		slog.Info("非PostgreSQL数据库，跳过视图迁移", "dialect", db.Dialector.Name())
		return nil
	}

	for name, viewSQL := range views.DingTalkViews {
		if err := db.Exec(viewSQL).Error; err != nil {
			return fmt.Errorf("创建视图 %s 失败: %w", name, err)
		}
		slog.Info("成功创建视图", "view", name)
	}

	return nil
}
