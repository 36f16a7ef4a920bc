/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dingtalk-sync-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 内存库每个连接相互独立，限制为单连接
	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get sql db: %v", err))
	}
	sqlDB.SetMaxOpenConns(1)

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.DingTalkConfig{},
		&models.DingTalkDepartment{},
		&models.DingTalkUser{},
		&models.DingTalkAttendanceRecord{},
		&models.DingTalkDimissionUser{},
		&models.DingTalkDeptBinding{},
		&models.DingTalkUserBinding{},
		&models.DingTalkSyncLog{},
		&models.DingTalkSyncCursor{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// ConfigOption 钉钉配置选项函数类型
type ConfigOption func(*models.DingTalkConfig)

// CreateConfig 创建测试钉钉配置，默认已启用并配置凭据
func (f *TestDataFactory) CreateConfig(opts ...ConfigOption) *models.DingTalkConfig {
	config := &models.DingTalkConfig{
		ID:             generateID("cfg"),
		Name:           "测试钉钉配置",
		AppKey:         "app-key",
		AppSecret:      "app-secret",
		AgentID:        "10001",
		Enabled:        true,
		SyncUsers:      true,
		SyncDepts:      true,
		SyncAttendance: true,
		Schedule:       models.JSONB{},
		CreatedBy:      "test",
		UpdatedBy:      "test",
	}

	// 应用选项
	for _, opt := range opts {
		opt(config)
	}

	err := f.DB.Create(config).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test dingtalk config: %v", err))
	}

	return config
}

// WithConfigID 指定配置ID
func WithConfigID(id string) ConfigOption {
	return func(c *models.DingTalkConfig) { c.ID = id }
}

// WithDisabled 配置未启用
func WithDisabled() ConfigOption {
	return func(c *models.DingTalkConfig) { c.Enabled = false }
}

// WithSchedule 指定计划任务配置
func WithSchedule(schedule models.JSONB) ConfigOption {
	return func(c *models.DingTalkConfig) { c.Schedule = schedule }
}

// CreateDepartment 创建测试部门快照
func (f *TestDataFactory) CreateDepartment(configID string, deptID int64, name string) *models.DingTalkDepartment {
	dept := &models.DingTalkDepartment{
		ConfigID:   configID,
		DeptID:     deptID,
		Name:       name,
		SourceInfo: models.JSONB{"dept_id": deptID, "name": name},
	}
	if err := f.DB.Create(dept).Error; err != nil {
		panic(fmt.Sprintf("failed to create test department: %v", err))
	}
	return dept
}

// CreateUser 创建测试用户快照
func (f *TestDataFactory) CreateUser(configID, userID, name string) *models.DingTalkUser {
	user := &models.DingTalkUser{
		ConfigID:   configID,
		UserID:     userID,
		Name:       name,
		Active:     true,
		DeptIDs:    models.JSONBInt64Array{1},
		SourceInfo: models.JSONB{"userid": userID},
	}
	if err := f.DB.Create(user).Error; err != nil {
		panic(fmt.Sprintf("failed to create test user: %v", err))
	}
	return user
}

// CreateDimissionUser 创建测试离职员工快照
func (f *TestDataFactory) CreateDimissionUser(configID, userID, name string) *models.DingTalkDimissionUser {
	user := &models.DingTalkDimissionUser{
		ConfigID:   configID,
		UserID:     userID,
		Name:       name,
		SourceInfo: models.JSONB{"userid": userID},
	}
	if err := f.DB.Create(user).Error; err != nil {
		panic(fmt.Sprintf("failed to create test dimission user: %v", err))
	}
	return user
}

// CreateDeptBinding 创建测试部门绑定
func (f *TestDataFactory) CreateDeptBinding(configID string, deptID int64, localCode string) *models.DingTalkDeptBinding {
	binding := &models.DingTalkDeptBinding{ConfigID: configID, DeptID: deptID, LocalDeptCode: localCode}
	if err := f.DB.Create(binding).Error; err != nil {
		panic(fmt.Sprintf("failed to create test dept binding: %v", err))
	}
	return binding
}

// CreateUserBinding 创建测试用户绑定
func (f *TestDataFactory) CreateUserBinding(configID, userID, localUserID string) *models.DingTalkUserBinding {
	binding := &models.DingTalkUserBinding{ConfigID: configID, UserID: userID, LocalUserID: localUserID}
	if err := f.DB.Create(binding).Error; err != nil {
		panic(fmt.Sprintf("failed to create test user binding: %v", err))
	}
	return binding
}

// CreateAttendanceRecord 创建测试考勤记录
func (f *TestDataFactory) CreateAttendanceRecord(configID, recordID, userID string, checkTime time.Time) *models.DingTalkAttendanceRecord {
	record := &models.DingTalkAttendanceRecord{
		ConfigID:      configID,
		RecordID:      recordID,
		UserID:        userID,
		CheckType:     "OnDuty",
		TimeResult:    "Normal",
		UserCheckTime: checkTime,
		SourceInfo:    models.JSONB{"record_id": recordID},
	}
	if err := f.DB.Create(record).Error; err != nil {
		panic(fmt.Sprintf("failed to create test attendance record: %v", err))
	}
	return record
}

// CreateSyncLog 创建测试同步日志
func (f *TestDataFactory) CreateSyncLog(configID, operation, status string, stats models.JSONB) *models.DingTalkSyncLog {
	log := &models.DingTalkSyncLog{
		ConfigID:  configID,
		Operation: operation,
		Status:    status,
		Level:     "info",
		Message:   "测试日志",
		Stats:     stats,
	}
	if err := f.DB.Create(log).Error; err != nil {
		panic(fmt.Sprintf("failed to create test sync log: %v", err))
	}
	return log
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// MockEventSink Mock同步事件推送
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockEventSink) Publish(ctx context.Context, event models.DingTalkSyncEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventSink) Close() error {
	args := m.Called()
	return args.Error(0)
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// DecodeResponse 解析统一响应体
func (h *HTTPTestHelper) DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &body)
	assert.NoError(t, err)
	return body
}
