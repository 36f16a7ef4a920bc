package dingtalk_sync

import (
	"context"
	"fmt"

	"dingtalk-sync-service/service/models"

	"gorm.io/gorm"
)

// GetCursor 获取增量游标，不存在时创建空游标
func (s *Store) GetCursor(ctx context.Context, configID, cursorType string) (*models.DingTalkSyncCursor, error) {
	cursor := models.DingTalkSyncCursor{}
	err := s.db.WithContext(ctx).
		Where(models.DingTalkSyncCursor{ConfigID: configID, CursorType: cursorType}).
		Attrs(models.DingTalkSyncCursor{Extra: models.JSONB{}}).
		FirstOrCreate(&cursor).Error
	if err != nil {
		return nil, fmt.Errorf("获取同步游标失败: %w", err)
	}
	return &cursor, nil
}

// UpdateCursor 更新游标值，extra 为 nil 时保留原有附加信息
func (s *Store) UpdateCursor(ctx context.Context, configID, cursorType, value string, extra map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cursor := models.DingTalkSyncCursor{}
		err := tx.Where(models.DingTalkSyncCursor{ConfigID: configID, CursorType: cursorType}).
			Attrs(models.DingTalkSyncCursor{Extra: models.JSONB{}}).
			FirstOrCreate(&cursor).Error
		if err != nil {
			return fmt.Errorf("获取同步游标失败: %w", err)
		}

		updates := map[string]interface{}{"cursor_value": value}
		if extra != nil {
			updates["extra"] = models.JSONB(extra)
		}
		if err := tx.Model(&cursor).Updates(updates).Error; err != nil {
			return fmt.Errorf("更新同步游标失败: %w", err)
		}
		return nil
	})
}

// ListCursors 获取配置下的全部游标
func (s *Store) ListCursors(ctx context.Context, configID string) ([]models.DingTalkSyncCursor, error) {
	var cursors []models.DingTalkSyncCursor
	if err := s.db.WithContext(ctx).Where("config_id = ?", configID).Order("cursor_type").Find(&cursors).Error; err != nil {
		return nil, fmt.Errorf("获取同步游标列表失败: %w", err)
	}
	return cursors, nil
}
