package database

import (
	"testing"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db), "迁移应可重复执行")

	for _, table := range []string{
		"dingtalk_config",
		"dingtalk_department",
		"dingtalk_user",
		"dingtalk_attendance_record",
		"dingtalk_dimission_user",
		"dingtalk_sync_log",
		"dingtalk_sync_cursor",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex(&models.DingTalkSyncLog{}, "idx_dingtalk_sync_log_status"))

	require.NoError(t, AutoMigrateView(db))
}

func TestInitializeData(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, InitializeData(db))

	var config models.DingTalkConfig
	require.NoError(t, db.First(&config, "id = ?", meta.DingTalkDefaultConfigID).Error)
	assert.Equal(t, meta.DingTalkDefaultConfigName, config.Name)
	assert.False(t, config.Enabled)
	assert.True(t, config.SyncUsers)

	require.NoError(t, db.Model(&config).Update("name", "已改名").Error)
	require.NoError(t, InitializeData(db))

	var count int64
	db.Model(&models.DingTalkConfig{}).Count(&count)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.First(&config, "id = ?", meta.DingTalkDefaultConfigID).Error)
	assert.Equal(t, "已改名", config.Name)
}
