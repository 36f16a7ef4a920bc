package dingtalk_sync

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"dingtalk-sync-service/service/dingtalk/dingtalk_client"
	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/utils"
	"dingtalk-sync-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ConfigLifecycle(t *testing.T) {
	testDB := testutil.NewTestDB()
	defer testDB.Close()
	ctx := context.Background()

	cipher, err := utils.NewSecretCipher("unit-test-secret-key")
	require.NoError(t, err)
	store := NewStore(testDB.DB, cipher)

	t.Run("加载不存在的配置时创建默认配置", func(t *testing.T) {
		config, err := store.LoadConfig(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, meta.DingTalkDefaultConfigID, config.ID)
		assert.Equal(t, meta.DingTalkDefaultConfigName, config.Name)
		assert.False(t, config.Enabled)
		assert.True(t, config.SyncUsers)

		again, err := store.LoadConfig(ctx, meta.DingTalkDefaultConfigID)
		require.NoError(t, err)
		assert.Equal(t, config.CreatedAt.Unix(), again.CreatedAt.Unix())
	})

	t.Run("AppSecret加密存储", func(t *testing.T) {
		config := &models.DingTalkConfig{ID: "enc", Name: "加密配置", AppKey: "key", AppSecret: "plain-secret", Enabled: true}
		require.NoError(t, store.CreateConfig(ctx, config))
		assert.Equal(t, "plain-secret", config.AppSecret)

		var raw models.DingTalkConfig
		require.NoError(t, testDB.DB.First(&raw, "id = ?", "enc").Error)
		assert.NotEqual(t, "plain-secret", raw.AppSecret)
		assert.True(t, utils.IsEncrypted(raw.AppSecret))

		loaded, err := store.GetConfig(ctx, "enc")
		require.NoError(t, err)
		assert.Equal(t, "plain-secret", loaded.AppSecret)

		enabled, err := store.EnabledConfigs(ctx)
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, "plain-secret", enabled[0].AppSecret)
	})

	t.Run("凭据变化时清空令牌", func(t *testing.T) {
		expiresAt := time.Now().Add(time.Hour)
		require.NoError(t, store.SaveAccessToken(ctx, "enc", "token-x", expiresAt))

		name := "改名"
		updated, err := store.UpdateConfig(ctx, "enc", ConfigUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "改名", updated.Name)
		assert.Equal(t, "token-x", updated.AccessToken)

		secret := "new-secret"
		updated, err = store.UpdateConfig(ctx, "enc", ConfigUpdate{AppSecret: &secret, UpdatedBy: "admin"})
		require.NoError(t, err)
		assert.Equal(t, "new-secret", updated.AppSecret)
		assert.Empty(t, updated.AccessToken)
		assert.Nil(t, updated.AccessTokenExpiresAt)
		assert.Equal(t, "admin", updated.UpdatedBy)
	})

	t.Run("重置令牌", func(t *testing.T) {
		require.NoError(t, store.ResetAccessToken(ctx, "enc"))
		assert.True(t, errors.Is(store.ResetAccessToken(ctx, "missing"), ErrConfigNotFound))

		_, err := store.GetConfig(ctx, "missing")
		assert.True(t, errors.Is(err, ErrConfigNotFound))
	})
}

func TestStore_Cursor(t *testing.T) {
	testDB := testutil.NewTestDB()
	defer testDB.Close()
	ctx := context.Background()
	store := NewStore(testDB.DB, nil)

	cursor, err := store.GetCursor(ctx, "cfg", meta.CursorTypeUser)
	require.NoError(t, err)
	assert.Empty(t, cursor.CursorValue)
	assert.NotEmpty(t, cursor.ID)

	require.NoError(t, store.UpdateCursor(ctx, "cfg", meta.CursorTypeUser, "v1", map[string]interface{}{"count": 3}))
	require.NoError(t, store.UpdateCursor(ctx, "cfg", meta.CursorTypeUser, "v2", nil))

	cursor, err = store.GetCursor(ctx, "cfg", meta.CursorTypeUser)
	require.NoError(t, err)
	assert.Equal(t, "v2", cursor.CursorValue)
	assert.EqualValues(t, 3, cursor.Extra["count"])

	var count int64
	testDB.DB.Model(&models.DingTalkSyncCursor{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestLedger(t *testing.T) {
	testDB := testutil.NewTestDB()
	defer testDB.Close()
	ctx := context.Background()
	factory := testutil.NewTestDataFactory(testDB.DB)
	config := factory.CreateConfig()
	ledger := NewLedger(testDB.DB)

	t.Run("消息超长时截断", func(t *testing.T) {
		log, err := ledger.Append(ctx, Entry{
			ConfigID:  config.ID,
			Operation: meta.SyncOperationSyncUsers,
			Status:    meta.SyncStatusFailed,
			Message:   strings.Repeat("错", 600),
		})
		require.NoError(t, err)
		assert.Equal(t, meta.SyncLevelInfo, log.Level)
		assert.Len(t, []rune(log.Message), 512)
	})

	t.Run("日志不可修改", func(t *testing.T) {
		log, err := ledger.Append(ctx, Entry{ConfigID: config.ID, Operation: meta.SyncOperationSyncUsers, Status: meta.SyncStatusSuccess})
		require.NoError(t, err)
		err = testDB.DB.Model(log).Update("message", "x").Error
		assert.True(t, errors.Is(err, models.ErrSyncLogImmutable))
	})

	t.Run("分页与过滤", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			factory.CreateSyncLog(config.ID, meta.SyncOperationSyncDepartments, meta.SyncStatusSuccess, models.JSONB{"dept_count": i})
		}
		factory.CreateSyncLog("other", meta.SyncOperationSyncDepartments, meta.SyncStatusSuccess, nil)

		logs, total, err := ledger.ListLogs(ctx, LogQuery{ConfigID: config.ID, Operation: meta.SyncOperationSyncDepartments, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, logs, 2)

		logs, _, err = ledger.ListLogs(ctx, LogQuery{ConfigID: config.ID, Operation: meta.SyncOperationSyncDepartments, Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, logs, 1)

		_, total, err = ledger.ListLogs(ctx, LogQuery{ConfigID: config.ID, Status: meta.SyncStatusFailed})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("汇总只更新出现的统计项", func(t *testing.T) {
		syncTime := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
		require.NoError(t, ledger.UpdateRollup(ctx, config, Rollup{
			Status:       meta.SyncStatusSuccess,
			Message:      "ok",
			Stats:        map[string]interface{}{"user_count": 5},
			UserSyncTime: &syncTime,
		}))
		require.NoError(t, ledger.UpdateRollup(ctx, config, Rollup{
			Status:  meta.SyncStatusFailed,
			Message: "failed",
		}))

		var stored models.DingTalkConfig
		require.NoError(t, testDB.DB.First(&stored, "id = ?", config.ID).Error)
		assert.Equal(t, meta.SyncStatusFailed, stored.LastSyncStatus)
		assert.Equal(t, "failed", stored.LastSyncMessage)
		assert.Equal(t, 5, stored.LastUserSyncCount)
		require.NotNil(t, stored.LastUserSyncTime)
		assert.True(t, syncTime.Equal(*stored.LastUserSyncTime))
		assert.Equal(t, 5, config.LastUserSyncCount)
	})
}

func TestRun(t *testing.T) {
	t.Run("不支持的操作", func(t *testing.T) {
		env := newSyncEnv(t)
		_, err := env.service.Run(context.Background(), "sync_everything", env.config.ID, RunParams{})
		assert.True(t, errors.Is(err, ErrUnsupportedOperation))
	})

	t.Run("考勤同步缺少时间窗口", func(t *testing.T) {
		env := newSyncEnv(t)
		start := syncNow.Add(-time.Hour)
		_, err := env.service.Run(context.Background(), meta.SyncOperationSyncAttendance, env.config.ID, RunParams{Start: &start})
		assert.True(t, errors.Is(err, ErrAttendanceWindowRequired))
		assert.Empty(t, env.logs(t, meta.SyncOperationSyncAttendance))
	})

	t.Run("按配置ID执行部门同步", func(t *testing.T) {
		env := newSyncEnv(t)
		env.deptTree()

		result, err := env.service.Run(context.Background(), meta.SyncOperationSyncDepartments, env.config.ID, RunParams{})
		require.NoError(t, err)
		assert.Equal(t, 4, result.(*SyncResult).Count)
	})
}

func TestRunScheduledSync(t *testing.T) {
	t.Run("按固定顺序执行", func(t *testing.T) {
		env := newSyncEnv(t, testutil.WithSchedule(models.JSONB{"attendance_window": 3}))
		env.deptTree()
		env.userList(map[int64][]interface{}{
			2: {map[string]interface{}{"userid": "u1", "name": "张三"}},
		})
		var from string
		env.fake.handle("/attendance/listRecord", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
			from, _ = body["checkDateFrom"].(string)
			return http.StatusOK, map[string]interface{}{"errcode": 0, "recordresult": []interface{}{}}
		})

		results, err := env.service.RunScheduledSync(context.Background(), env.config.ID, []string{"attendance", "users", "departments"})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "departments", results[0].Operation)
		assert.Equal(t, "users", results[1].Operation)
		assert.Equal(t, "attendance", results[2].Operation)
		assert.Equal(t, "2025-09-28 08:00:00", from)
	})

	t.Run("单个操作失败不影响其余操作", func(t *testing.T) {
		env := newSyncEnv(t)
		env.deptTree()
		env.fake.handle("/topapi/v2/user/list", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
			return http.StatusOK, map[string]interface{}{"errcode": 60011, "errmsg": "no permission"}
		})

		results, err := env.service.RunScheduledSync(context.Background(), env.config.ID, []string{"users", "departments"})
		require.Error(t, err)
		require.Len(t, results, 2)
		assert.Empty(t, results[0].Error)
		assert.Contains(t, results[1].Error, "no permission")
		assert.Contains(t, err.Error(), "users")
	})
}

func TestSyncTasks(t *testing.T) {
	t.Run("部门与用户任务按配置ID加载", func(t *testing.T) {
		env := newSyncEnv(t)
		env.deptTree()
		env.userList(map[int64][]interface{}{
			2: {map[string]interface{}{"userid": "u1", "name": "张三"}},
		})

		depts, err := env.service.SyncDepartmentsTask(context.Background(), env.config.ID, meta.SyncModeFull)
		require.NoError(t, err)
		assert.Equal(t, 4, depts.Count)

		users, err := env.service.SyncUsersTask(context.Background(), env.config.ID, meta.SyncModeFull)
		require.NoError(t, err)
		assert.Equal(t, 1, users.Count)
	})

	t.Run("考勤任务默认同步最近一天", func(t *testing.T) {
		env := newSyncEnv(t)
		var from, to string
		env.fake.handle("/attendance/listRecord", func(r *http.Request, body map[string]interface{}) (int, interface{}) {
			from, _ = body["checkDateFrom"].(string)
			to, _ = body["checkDateTo"].(string)
			return http.StatusOK, map[string]interface{}{"errcode": 0, "recordresult": []interface{}{}}
		})

		result, err := env.service.SyncAttendanceTask(context.Background(), env.config.ID, nil, nil, []string{"u1"})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Count)
		assert.Equal(t, "2025-09-30 08:00:00", from)
		assert.Equal(t, "2025-10-01 08:00:00", to)
	})

	t.Run("全量任务失败返回错误", func(t *testing.T) {
		env := newSyncEnv(t, testutil.WithDisabled())

		_, err := env.service.FullSyncTask(context.Background(), env.config.ID)
		require.Error(t, err)
		assert.True(t, dingtalk_client.IsDisabledError(err))
	})
}
