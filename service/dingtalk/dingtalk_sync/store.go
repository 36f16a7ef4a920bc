/*
 * @module service/dingtalk/dingtalk_sync/store
 * @description 钉钉配置与本地快照存储：配置读写、访问令牌持久化、按自然键 upsert 与过期行清理
 * @architecture 仓储层 - 基于GORM
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 开启事务 -> 分批 upsert 本次拉取结果 -> 计算过期集合 -> 分批删除 -> 提交
 * @rules upsert 必须先于删除；过期集合仅限当前 config_id；过期部门/用户的绑定同事务级联删除；AppSecret 入库前加密、读取后解密；
 *        配置只通过字段级更新写回，避免把解密后的密钥写入数据库
 * @dependencies gorm.io/gorm, gorm.io/gorm/clause
 * @refs service/dingtalk/dingtalk_sync/sync_service.go
 */

package dingtalk_sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	upsertBatchSize = 200
	deleteBatchSize = 500
)

// ErrConfigNotFound 钉钉配置不存在
var ErrConfigNotFound = errors.New("钉钉配置不存在")

// Store 钉钉配置与快照存储
type Store struct {
	db     *gorm.DB
	cipher *utils.SecretCipher
}

// NewStore 创建存储，cipher 为 nil 时 AppSecret 明文存储
func NewStore(db *gorm.DB, cipher *utils.SecretCipher) *Store {
	if cipher == nil {
		cipher, _ = utils.NewSecretCipher("")
	}
	return &Store{db: db, cipher: cipher}
}

// DB 获取数据库连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ConfigUpdate 配置更新内容，nil 字段不修改
type ConfigUpdate struct {
	Name           *string                `json:"name,omitempty"`
	TenantID       *string                `json:"tenant_id,omitempty"`
	AppKey         *string                `json:"app_key,omitempty"`
	AppSecret      *string                `json:"app_secret,omitempty"`
	AgentID        *string                `json:"agent_id,omitempty"`
	Enabled        *bool                  `json:"enabled,omitempty"`
	SyncUsers      *bool                  `json:"sync_users,omitempty"`
	SyncDepts      *bool                  `json:"sync_departments,omitempty"`
	SyncAttendance *bool                  `json:"sync_attendance,omitempty"`
	CallbackURL    *string                `json:"callback_url,omitempty"`
	CallbackToken  *string                `json:"callback_token,omitempty"`
	CallbackAESKey *string                `json:"callback_aes_key,omitempty"`
	Remark         *string                `json:"remark,omitempty"`
	Schedule       map[string]interface{} `json:"schedule,omitempty"`
	UpdatedBy      string                 `json:"-"`
}

// LoadConfig 加载配置，不存在时以默认名称创建；id 为空时使用 default
func (s *Store) LoadConfig(ctx context.Context, id string) (*models.DingTalkConfig, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = meta.DingTalkDefaultConfigID
	}

	config := &models.DingTalkConfig{}
	err := s.db.WithContext(ctx).
		Where(models.DingTalkConfig{ID: id}).
		Attrs(models.DingTalkConfig{
			Name:      meta.DingTalkDefaultConfigName,
			SyncUsers: true,
			SyncDepts: true,
			Schedule:  models.JSONB{},
		}).
		FirstOrCreate(config).Error
	if err != nil {
		return nil, fmt.Errorf("加载钉钉配置失败: %w", err)
	}
	if err := s.decrypt(config); err != nil {
		return nil, err
	}
	return config, nil
}

// GetConfig 获取已存在的配置
func (s *Store) GetConfig(ctx context.Context, id string) (*models.DingTalkConfig, error) {
	config := &models.DingTalkConfig{}
	if err := s.db.WithContext(ctx).First(config, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("获取钉钉配置失败: %w", err)
	}
	if err := s.decrypt(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ListConfigs 获取全部配置
func (s *Store) ListConfigs(ctx context.Context) ([]models.DingTalkConfig, error) {
	var configs []models.DingTalkConfig
	if err := s.db.WithContext(ctx).Order("id").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("获取钉钉配置列表失败: %w", err)
	}
	return configs, nil
}

// EnabledConfigs 获取已启用的配置
func (s *Store) EnabledConfigs(ctx context.Context) ([]models.DingTalkConfig, error) {
	var configs []models.DingTalkConfig
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("获取已启用钉钉配置失败: %w", err)
	}
	for i := range configs {
		if err := s.decrypt(&configs[i]); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

// CreateConfig 创建配置
func (s *Store) CreateConfig(ctx context.Context, config *models.DingTalkConfig) error {
	plain := config.AppSecret
	encrypted, err := s.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("加密AppSecret失败: %w", err)
	}
	config.AppSecret = encrypted
	err = s.db.WithContext(ctx).Create(config).Error
	config.AppSecret = plain
	if err != nil {
		return fmt.Errorf("创建钉钉配置失败: %w", err)
	}
	return nil
}

// UpdateConfig 更新配置，AppKey/AppSecret 变化时清空缓存令牌
func (s *Store) UpdateConfig(ctx context.Context, id string, update ConfigUpdate) (*models.DingTalkConfig, error) {
	current, err := s.LoadConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	setString := func(column string, value *string) {
		if value != nil {
			updates[column] = strings.TrimSpace(*value)
		}
	}
	setBool := func(column string, value *bool) {
		if value != nil {
			updates[column] = *value
		}
	}

	setString("name", update.Name)
	setString("tenant_id", update.TenantID)
	setString("agent_id", update.AgentID)
	setString("callback_url", update.CallbackURL)
	setString("callback_token", update.CallbackToken)
	setString("callback_aes_key", update.CallbackAESKey)
	setString("remark", update.Remark)
	setBool("enabled", update.Enabled)
	setBool("sync_users", update.SyncUsers)
	setBool("sync_departments", update.SyncDepts)
	setBool("sync_attendance", update.SyncAttendance)
	if update.Schedule != nil {
		updates["schedule"] = models.JSONB(update.Schedule)
	}
	if update.UpdatedBy != "" {
		updates["updated_by"] = update.UpdatedBy
	}

	credentialsChanged := false
	if update.AppKey != nil && strings.TrimSpace(*update.AppKey) != current.AppKey {
		updates["app_key"] = strings.TrimSpace(*update.AppKey)
		credentialsChanged = true
	}
	if update.AppSecret != nil && strings.TrimSpace(*update.AppSecret) != current.AppSecret {
		encrypted, err := s.cipher.Encrypt(strings.TrimSpace(*update.AppSecret))
		if err != nil {
			return nil, fmt.Errorf("加密AppSecret失败: %w", err)
		}
		updates["app_secret"] = encrypted
		credentialsChanged = true
	}
	if credentialsChanged {
		updates["access_token"] = ""
		updates["access_token_expires_at"] = nil
	}

	if len(updates) > 0 {
		err := s.db.WithContext(ctx).Model(&models.DingTalkConfig{}).Where("id = ?", current.ID).Updates(updates).Error
		if err != nil {
			return nil, fmt.Errorf("更新钉钉配置失败: %w", err)
		}
	}
	return s.GetConfig(ctx, current.ID)
}

// SaveAccessToken 持久化访问令牌
func (s *Store) SaveAccessToken(ctx context.Context, configID, token string, expiresAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.DingTalkConfig{}).Where("id = ?", configID).Updates(map[string]interface{}{
		"access_token":            token,
		"access_token_expires_at": expiresAt,
	}).Error
	if err != nil {
		return fmt.Errorf("保存访问令牌失败: %w", err)
	}
	return nil
}

// ResetAccessToken 清空缓存的访问令牌
func (s *Store) ResetAccessToken(ctx context.Context, configID string) error {
	result := s.db.WithContext(ctx).Model(&models.DingTalkConfig{}).Where("id = ?", configID).Updates(map[string]interface{}{
		"access_token":            "",
		"access_token_expires_at": nil,
	})
	if result.Error != nil {
		return fmt.Errorf("重置访问令牌失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func (s *Store) decrypt(config *models.DingTalkConfig) error {
	secret, err := s.cipher.Decrypt(config.AppSecret)
	if err != nil {
		return fmt.Errorf("解密AppSecret失败: %w", err)
	}
	config.AppSecret = secret
	return nil
}

// DepartmentIDs 本地已同步的部门ID
func (s *Store) DepartmentIDs(ctx context.Context, configID string) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.DingTalkDepartment{}).
		Where("config_id = ?", configID).
		Order("dept_id").
		Pluck("dept_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询本地部门失败: %w", err)
	}
	return ids, nil
}

// UserIDs 本地已同步的用户ID
func (s *Store) UserIDs(ctx context.Context, configID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.DingTalkUser{}).
		Where("config_id = ?", configID).
		Order("userid").
		Pluck("userid", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询本地用户失败: %w", err)
	}
	return ids, nil
}

// ReplaceDepartments upsert 本次拉取的部门并删除过期部门及其绑定，返回删除的部门数量
func (s *Store) ReplaceDepartments(ctx context.Context, configID string, depts []models.DingTalkDepartment) (int64, error) {
	seen := make(map[int64]struct{}, len(depts))
	for _, dept := range depts {
		seen[dept.DeptID] = struct{}{}
	}

	var stale int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(depts) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "config_id"}, {Name: "dept_id"}},
				UpdateAll: true,
			}).CreateInBatches(&depts, upsertBatchSize).Error
			if err != nil {
				return fmt.Errorf("写入部门失败: %w", err)
			}
		}

		var existing []int64
		if err := tx.Model(&models.DingTalkDepartment{}).Where("config_id = ?", configID).Pluck("dept_id", &existing).Error; err != nil {
			return fmt.Errorf("查询本地部门失败: %w", err)
		}
		for _, batch := range chunk(staleKeys(existing, seen), deleteBatchSize) {
			if err := tx.Where("config_id = ? AND dept_id IN ?", configID, batch).Delete(&models.DingTalkDeptBinding{}).Error; err != nil {
				return fmt.Errorf("删除过期部门绑定失败: %w", err)
			}
			result := tx.Where("config_id = ? AND dept_id IN ?", configID, batch).Delete(&models.DingTalkDepartment{})
			if result.Error != nil {
				return fmt.Errorf("删除过期部门失败: %w", result.Error)
			}
			stale += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stale, nil
}

// ReplaceUsers upsert 本次拉取的用户并删除过期用户及其绑定，返回删除的用户数量
func (s *Store) ReplaceUsers(ctx context.Context, configID string, users []models.DingTalkUser) (int64, error) {
	seen := make(map[string]struct{}, len(users))
	for _, user := range users {
		seen[user.UserID] = struct{}{}
	}

	var stale int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(users) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "config_id"}, {Name: "userid"}},
				UpdateAll: true,
			}).CreateInBatches(&users, upsertBatchSize).Error
			if err != nil {
				return fmt.Errorf("写入用户失败: %w", err)
			}
		}

		var existing []string
		if err := tx.Model(&models.DingTalkUser{}).Where("config_id = ?", configID).Pluck("userid", &existing).Error; err != nil {
			return fmt.Errorf("查询本地用户失败: %w", err)
		}
		staleIDs := staleKeys(existing, seen)
		if _, err := deleteByUserID(tx, &models.DingTalkUserBinding{}, configID, staleIDs); err != nil {
			return fmt.Errorf("删除过期用户绑定失败: %w", err)
		}
		deleted, err := deleteByUserID(tx, &models.DingTalkUser{}, configID, staleIDs)
		if err != nil {
			return fmt.Errorf("删除过期用户失败: %w", err)
		}
		stale = deleted
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stale, nil
}

// ReplaceDimissionUsers upsert 本次拉取的离职员工并删除过期记录，返回删除数量
func (s *Store) ReplaceDimissionUsers(ctx context.Context, configID string, users []models.DingTalkDimissionUser) (int64, error) {
	seen := make(map[string]struct{}, len(users))
	for _, user := range users {
		seen[user.UserID] = struct{}{}
	}

	var stale int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(users) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "config_id"}, {Name: "userid"}},
				UpdateAll: true,
			}).CreateInBatches(&users, upsertBatchSize).Error
			if err != nil {
				return fmt.Errorf("写入离职员工失败: %w", err)
			}
		}

		var existing []string
		if err := tx.Model(&models.DingTalkDimissionUser{}).Where("config_id = ?", configID).Pluck("userid", &existing).Error; err != nil {
			return fmt.Errorf("查询本地离职员工失败: %w", err)
		}
		deleted, err := deleteByUserID(tx, &models.DingTalkDimissionUser{}, configID, staleKeys(existing, seen))
		if err != nil {
			return fmt.Errorf("删除过期离职员工失败: %w", err)
		}
		stale = deleted
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stale, nil
}

// UpsertAttendanceRecords upsert 考勤记录，考勤只追加不清理
func (s *Store) UpsertAttendanceRecords(ctx context.Context, records []models.DingTalkAttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "config_id"}, {Name: "record_id"}},
			UpdateAll: true,
		}).CreateInBatches(&records, upsertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("写入考勤记录失败: %w", err)
	}
	return nil
}

// staleKeys 本地存在但本次未拉取到的键
func staleKeys[K comparable](existing []K, seen map[K]struct{}) []K {
	stale := make([]K, 0)
	for _, key := range existing {
		if _, ok := seen[key]; !ok {
			stale = append(stale, key)
		}
	}
	return stale
}

func deleteByUserID(tx *gorm.DB, model interface{}, configID string, staleIDs []string) (int64, error) {
	var deleted int64
	for _, batch := range chunk(staleIDs, deleteBatchSize) {
		result := tx.Where("config_id = ? AND userid IN ?", configID, batch).Delete(model)
		if result.Error != nil {
			return deleted, result.Error
		}
		deleted += result.RowsAffected
	}
	return deleted, nil
}

func chunk[T any](items []T, size int) [][]T {
	var batches [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
