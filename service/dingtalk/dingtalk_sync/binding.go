/*
 * @module service/dingtalk/dingtalk_sync/binding
 * @description 钉钉部门、用户与本地标识的绑定维护
 * @architecture 仓储层 - 基于GORM
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 校验配置与快照 -> 查重 -> 写入；读取时回填快照名称
 * @rules 绑定目标必须存在于同一 config_id 的本地快照；(config_id, 钉钉ID, 本地标识) 唯一；
 *        快照被同步清理时绑定随之删除，见 ReplaceDepartments/ReplaceUsers
 * @dependencies gorm.io/gorm
 * @refs service/models/dingtalk_binding.go
 */

package dingtalk_sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dingtalk-sync-service/service/models"

	"gorm.io/gorm"
)

var (
	// ErrBindingNotFound 绑定关系不存在
	ErrBindingNotFound = errors.New("绑定关系不存在")
	// ErrBindingExists 绑定关系已存在
	ErrBindingExists = errors.New("绑定关系已存在")
	// ErrBindingTargetNotFound 绑定的钉钉部门或用户不在本地快照中
	ErrBindingTargetNotFound = errors.New("绑定的钉钉部门或用户不在本地快照中")
	// ErrInvalidBinding 绑定参数不完整
	ErrInvalidBinding = errors.New("绑定参数不完整")
)

// BindingQuery 绑定查询条件，零值字段不过滤
type BindingQuery struct {
	ConfigID string
	DeptID   int64
	UserID   string
	LocalID  string
	Page     int
	PageSize int
}

// ListDeptBindings 分页查询部门绑定
func (s *Store) ListDeptBindings(ctx context.Context, query BindingQuery) ([]models.DingTalkDeptBinding, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.DingTalkDeptBinding{}).Where("config_id = ?", query.ConfigID)
	if query.DeptID != 0 {
		db = db.Where("dept_id = ?", query.DeptID)
	}
	if query.LocalID != "" {
		db = db.Where("local_dept_code = ?", query.LocalID)
	}
	bindings, total, err := paginate[models.DingTalkDeptBinding](db, query.Page, query.PageSize, "dept_id, local_dept_code", "部门绑定")
	if err != nil {
		return nil, 0, err
	}
	if err := s.fillDeptNames(ctx, bindings); err != nil {
		return nil, 0, err
	}
	return bindings, total, nil
}

// GetDeptBinding 获取部门绑定
func (s *Store) GetDeptBinding(ctx context.Context, id string) (*models.DingTalkDeptBinding, error) {
	binding := models.DingTalkDeptBinding{}
	if err := s.db.WithContext(ctx).First(&binding, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("获取部门绑定失败: %w", err)
	}
	bindings := []models.DingTalkDeptBinding{binding}
	if err := s.fillDeptNames(ctx, bindings); err != nil {
		return nil, err
	}
	return &bindings[0], nil
}

// CreateDeptBinding 创建部门绑定
func (s *Store) CreateDeptBinding(ctx context.Context, binding *models.DingTalkDeptBinding) error {
	binding.LocalDeptCode = strings.TrimSpace(binding.LocalDeptCode)
	if binding.DeptID == 0 || binding.LocalDeptCode == "" {
		return ErrInvalidBinding
	}
	if err := s.requireConfig(ctx, binding.ConfigID); err != nil {
		return err
	}
	found, err := s.exists(ctx, &models.DingTalkDepartment{}, "config_id = ? AND dept_id = ?", binding.ConfigID, binding.DeptID)
	if err != nil {
		return fmt.Errorf("检查钉钉部门失败: %w", err)
	}
	if !found {
		return fmt.Errorf("部门 %d: %w", binding.DeptID, ErrBindingTargetNotFound)
	}
	if err := s.requireUniqueDeptBinding(ctx, binding); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(binding).Error; err != nil {
		return fmt.Errorf("创建部门绑定失败: %w", err)
	}
	created := []models.DingTalkDeptBinding{*binding}
	if err := s.fillDeptNames(ctx, created); err != nil {
		return err
	}
	*binding = created[0]
	return nil
}

// UpdateDeptBinding 修改部门绑定的本地部门编码
func (s *Store) UpdateDeptBinding(ctx context.Context, id, localDeptCode string) (*models.DingTalkDeptBinding, error) {
	binding, err := s.GetDeptBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	binding.LocalDeptCode = strings.TrimSpace(localDeptCode)
	if binding.LocalDeptCode == "" {
		return nil, ErrInvalidBinding
	}
	if err := s.requireUniqueDeptBinding(ctx, binding); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(&models.DingTalkDeptBinding{}).
		Where("id = ?", id).
		Update("local_dept_code", binding.LocalDeptCode).Error
	if err != nil {
		return nil, fmt.Errorf("更新部门绑定失败: %w", err)
	}
	return s.GetDeptBinding(ctx, id)
}

// DeleteDeptBinding 删除部门绑定
func (s *Store) DeleteDeptBinding(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DingTalkDeptBinding{})
	if result.Error != nil {
		return fmt.Errorf("删除部门绑定失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBindingNotFound
	}
	return nil
}

// ListUserBindings 分页查询用户绑定
func (s *Store) ListUserBindings(ctx context.Context, query BindingQuery) ([]models.DingTalkUserBinding, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.DingTalkUserBinding{}).Where("config_id = ?", query.ConfigID)
	if query.UserID != "" {
		db = db.Where("userid = ?", query.UserID)
	}
	if query.LocalID != "" {
		db = db.Where("local_user_id = ?", query.LocalID)
	}
	bindings, total, err := paginate[models.DingTalkUserBinding](db, query.Page, query.PageSize, "userid, local_user_id", "用户绑定")
	if err != nil {
		return nil, 0, err
	}
	if err := s.fillUserNames(ctx, bindings); err != nil {
		return nil, 0, err
	}
	return bindings, total, nil
}

// GetUserBinding 获取用户绑定
func (s *Store) GetUserBinding(ctx context.Context, id string) (*models.DingTalkUserBinding, error) {
	binding := models.DingTalkUserBinding{}
	if err := s.db.WithContext(ctx).First(&binding, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("获取用户绑定失败: %w", err)
	}
	bindings := []models.DingTalkUserBinding{binding}
	if err := s.fillUserNames(ctx, bindings); err != nil {
		return nil, err
	}
	return &bindings[0], nil
}

// CreateUserBinding 创建用户绑定
func (s *Store) CreateUserBinding(ctx context.Context, binding *models.DingTalkUserBinding) error {
	binding.UserID = strings.TrimSpace(binding.UserID)
	binding.LocalUserID = strings.TrimSpace(binding.LocalUserID)
	if binding.UserID == "" || binding.LocalUserID == "" {
		return ErrInvalidBinding
	}
	if err := s.requireConfig(ctx, binding.ConfigID); err != nil {
		return err
	}
	found, err := s.exists(ctx, &models.DingTalkUser{}, "config_id = ? AND userid = ?", binding.ConfigID, binding.UserID)
	if err != nil {
		return fmt.Errorf("检查钉钉用户失败: %w", err)
	}
	if !found {
		return fmt.Errorf("用户 %s: %w", binding.UserID, ErrBindingTargetNotFound)
	}
	if err := s.requireUniqueUserBinding(ctx, binding); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(binding).Error; err != nil {
		return fmt.Errorf("创建用户绑定失败: %w", err)
	}
	created := []models.DingTalkUserBinding{*binding}
	if err := s.fillUserNames(ctx, created); err != nil {
		return err
	}
	*binding = created[0]
	return nil
}

// UpdateUserBinding 修改用户绑定的本地用户标识
func (s *Store) UpdateUserBinding(ctx context.Context, id, localUserID string) (*models.DingTalkUserBinding, error) {
	binding, err := s.GetUserBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	binding.LocalUserID = strings.TrimSpace(localUserID)
	if binding.LocalUserID == "" {
		return nil, ErrInvalidBinding
	}
	if err := s.requireUniqueUserBinding(ctx, binding); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(&models.DingTalkUserBinding{}).
		Where("id = ?", id).
		Update("local_user_id", binding.LocalUserID).Error
	if err != nil {
		return nil, fmt.Errorf("更新用户绑定失败: %w", err)
	}
	return s.GetUserBinding(ctx, id)
}

// DeleteUserBinding 删除用户绑定
func (s *Store) DeleteUserBinding(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DingTalkUserBinding{})
	if result.Error != nil {
		return fmt.Errorf("删除用户绑定失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBindingNotFound
	}
	return nil
}

func (s *Store) requireConfig(ctx context.Context, configID string) error {
	found, err := s.exists(ctx, &models.DingTalkConfig{}, "id = ?", configID)
	if err != nil {
		return fmt.Errorf("检查钉钉配置失败: %w", err)
	}
	if !found {
		return ErrConfigNotFound
	}
	return nil
}

func (s *Store) requireUniqueDeptBinding(ctx context.Context, binding *models.DingTalkDeptBinding) error {
	found, err := s.exists(ctx, &models.DingTalkDeptBinding{},
		"config_id = ? AND dept_id = ? AND local_dept_code = ? AND id <> ?",
		binding.ConfigID, binding.DeptID, binding.LocalDeptCode, binding.ID)
	if err != nil {
		return fmt.Errorf("检查部门绑定失败: %w", err)
	}
	if found {
		return ErrBindingExists
	}
	return nil
}

func (s *Store) requireUniqueUserBinding(ctx context.Context, binding *models.DingTalkUserBinding) error {
	found, err := s.exists(ctx, &models.DingTalkUserBinding{},
		"config_id = ? AND userid = ? AND local_user_id = ? AND id <> ?",
		binding.ConfigID, binding.UserID, binding.LocalUserID, binding.ID)
	if err != nil {
		return fmt.Errorf("检查用户绑定失败: %w", err)
	}
	if found {
		return ErrBindingExists
	}
	return nil
}

func (s *Store) exists(ctx context.Context, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// fillDeptNames 按快照回填部门名称，快照缺失时保持为空
func (s *Store) fillDeptNames(ctx context.Context, bindings []models.DingTalkDeptBinding) error {
	ids := make(map[string][]int64)
	for _, binding := range bindings {
		ids[binding.ConfigID] = append(ids[binding.ConfigID], binding.DeptID)
	}
	names := make(map[string]map[int64]string, len(ids))
	for configID, deptIDs := range ids {
		var depts []models.DingTalkDepartment
		err := s.db.WithContext(ctx).Select("dept_id", "name").
			Where("config_id = ? AND dept_id IN ?", configID, deptIDs).
			Find(&depts).Error
		if err != nil {
			return fmt.Errorf("查询部门名称失败: %w", err)
		}
		names[configID] = make(map[int64]string, len(depts))
		for _, dept := range depts {
			names[configID][dept.DeptID] = dept.Name
		}
	}
	for i := range bindings {
		bindings[i].DeptName = names[bindings[i].ConfigID][bindings[i].DeptID]
	}
	return nil
}

// fillUserNames 按快照回填用户姓名
func (s *Store) fillUserNames(ctx context.Context, bindings []models.DingTalkUserBinding) error {
	ids := make(map[string][]string)
	for _, binding := range bindings {
		ids[binding.ConfigID] = append(ids[binding.ConfigID], binding.UserID)
	}
	names := make(map[string]map[string]string, len(ids))
	for configID, userIDs := range ids {
		var users []models.DingTalkUser
		err := s.db.WithContext(ctx).Select("userid", "name").
			Where("config_id = ? AND userid IN ?", configID, userIDs).
			Find(&users).Error
		if err != nil {
			return fmt.Errorf("查询用户姓名失败: %w", err)
		}
		names[configID] = make(map[string]string, len(users))
		for _, user := range users {
			names[configID][user.UserID] = user.Name
		}
	}
	for i := range bindings {
		bindings[i].UserName = names[bindings[i].ConfigID][bindings[i].UserID]
	}
	return nil
}
