/*
 * @module api/controllers/dingtalk_controller
 * @description 钉钉集成控制器：配置管理、同步命令、同步日志、本地快照、绑定维护、实时预览与回调接收
 * @architecture 分层架构 - 控制器层
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow HTTP请求 -> 参数解析 -> 同步服务调用 -> 错误映射 -> 响应返回
 * @rules 同步失败已由同步服务写入台账，控制器只做状态码映射：
 *        钉钉接口错误 502，配置缺失/未启用/参数错误 400，配置或绑定不存在 404，绑定重复 409，其他 500；
 *        响应中不返回 AppSecret、回调 Token 与 AES Key 明文
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, github.com/google/uuid
 * @refs service/dingtalk/dingtalk_sync, api/routes.go
 */

package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dingtalk-sync-service/service/dingtalk/dingtalk_client"
	"dingtalk-sync-service/service/dingtalk/dingtalk_mapper"
	"dingtalk-sync-service/service/dingtalk/dingtalk_sync"
	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/monitoring"
	"dingtalk-sync-service/service/scheduler"
	"dingtalk-sync-service/service/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduleManager 控制器使用的调度器接口
type ScheduleManager interface {
	ReloadConfig(ctx context.Context, configID string) error
	Entries() []scheduler.ScheduledEntry
}

// DingTalkController 钉钉集成控制器
type DingTalkController struct {
	syncService *dingtalk_sync.SyncService
	scheduler   ScheduleManager
	collector   *monitoring.MetricsCollector
	now         func() time.Time
}

// NewDingTalkController 创建钉钉集成控制器，scheduler/collector 可以为 nil
func NewDingTalkController(syncService *dingtalk_sync.SyncService, scheduler ScheduleManager, collector *monitoring.MetricsCollector) *DingTalkController {
	return &DingTalkController{
		syncService: syncService,
		scheduler:   scheduler,
		collector:   collector,
		now:         time.Now,
	}
}

// ConfigView 配置响应，敏感字段只返回脱敏值
type ConfigView struct {
	*models.DingTalkConfig
	AppSecretMasked   string `json:"app_secret_masked" example:"abcd********wxyz"`
	HasCallbackToken  bool   `json:"has_callback_token"`
	HasCallbackAESKey bool   `json:"has_callback_aes_key"`
	TokenValid        bool   `json:"token_valid"`
}

// SyncInfo 同步汇总信息
type SyncInfo struct {
	ConfigID                string     `json:"config_id"`
	LastSyncTime            *time.Time `json:"last_sync_time,omitempty"`
	LastSyncStatus          string     `json:"last_sync_status"`
	LastSyncMessage         string     `json:"last_sync_message"`
	LastUserSyncTime        *time.Time `json:"last_user_sync_time,omitempty"`
	LastDeptSyncTime        *time.Time `json:"last_dept_sync_time,omitempty"`
	LastAttendanceSyncTime  *time.Time `json:"last_attendance_sync_time,omitempty"`
	LastDimissionSyncTime   *time.Time `json:"last_dimission_sync_time,omitempty"`
	LastUserSyncCount       int        `json:"last_user_sync_count"`
	LastDeptSyncCount       int        `json:"last_dept_sync_count"`
	LastAttendanceSyncCount int        `json:"last_attendance_sync_count"`
	LastDimissionSyncCount  int        `json:"last_dimission_sync_count"`
}

// CreateConfigRequest 创建配置请求
type CreateConfigRequest struct {
	ID             string                 `json:"id" example:"default"`
	Name           string                 `json:"name" example:"默认钉钉配置"`
	TenantID       string                 `json:"tenant_id"`
	AppKey         string                 `json:"app_key"`
	AppSecret      string                 `json:"app_secret"`
	AgentID        string                 `json:"agent_id"`
	Enabled        bool                   `json:"enabled"`
	SyncUsers      *bool                  `json:"sync_users,omitempty"`
	SyncDepts      *bool                  `json:"sync_departments,omitempty"`
	SyncAttendance bool                   `json:"sync_attendance"`
	CallbackURL    string                 `json:"callback_url"`
	CallbackToken  string                 `json:"callback_token"`
	CallbackAESKey string                 `json:"callback_aes_key"`
	Remark         string                 `json:"remark"`
	Schedule       map[string]interface{} `json:"schedule,omitempty"`
	CreatedBy      string                 `json:"created_by" example:"admin"`
}

// SyncCommandRequest 同步命令请求
type SyncCommandRequest struct {
	Operation string   `json:"operation" example:"sync_users"`
	Mode      string   `json:"mode,omitempty" example:"full"`
	Start     string   `json:"start,omitempty" example:"2025-10-01T00:00:00+08:00"`
	End       string   `json:"end,omitempty" example:"2025-10-02T00:00:00+08:00"`
	UserIDs   []string `json:"userIds,omitempty"`
}

func (c *DingTalkController) configView(config *models.DingTalkConfig) ConfigView {
	return ConfigView{
		DingTalkConfig:    config,
		AppSecretMasked:   utils.MaskSecret(config.AppSecret),
		HasCallbackToken:  config.CallbackToken != "",
		HasCallbackAESKey: config.CallbackAESKey != "",
		TokenValid:        config.TokenValidAt(c.now(), 0),
	}
}

// syncErrorStatus 同步错误对应的HTTP状态码
func syncErrorStatus(err error) int {
	if _, ok := dingtalk_client.AsAPIError(err); ok {
		return http.StatusBadGateway
	}
	switch {
	case dingtalk_client.IsConfigurationError(err),
		dingtalk_client.IsDisabledError(err),
		errors.Is(err, dingtalk_sync.ErrUnsupportedOperation),
		errors.Is(err, dingtalk_sync.ErrAttendanceWindowRequired),
		errors.Is(err, dingtalk_sync.ErrInvalidBinding),
		errors.Is(err, dingtalk_sync.ErrBindingTargetNotFound):
		return http.StatusBadRequest
	case errors.Is(err, dingtalk_sync.ErrConfigNotFound),
		errors.Is(err, dingtalk_sync.ErrBindingNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, dingtalk_sync.ErrBindingExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (c *DingTalkController) writeSyncError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, syncErrorStatus(err), "", err)
}

// configIDFromRequest 路径参数优先，其次 config_id 查询参数，缺省为 default
func configIDFromRequest(r *http.Request) string {
	if id := chi.URLParam(r, "config_id"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("config_id"); id != "" {
		return id
	}
	return meta.DingTalkDefaultConfigID
}

func queryInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return value
}

// ListConfigs 获取钉钉配置列表
// @Summary 获取钉钉配置列表
// @Description 获取全部钉钉集成配置，敏感字段已脱敏
// @Tags 钉钉集成
// @Produce json
// @Success 200 {object} APIResponse{data=[]ConfigView}
// @Failure 500 {object} APIResponse
// @Router /dingtalk/configs [get]
func (c *DingTalkController) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := c.syncService.Store().ListConfigs(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "获取钉钉配置列表失败", err)
		return
	}

	views := make([]ConfigView, 0, len(configs))
	for i := range configs {
		views = append(views, c.configView(&configs[i]))
	}
	writeSuccess(w, r, "成功获取钉钉配置列表", views)
}

// GetConfig 获取钉钉配置
// @Summary 获取钉钉配置
// @Description 获取指定钉钉配置，default 配置不存在时自动创建
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "配置ID"
// @Success 200 {object} APIResponse{data=ConfigView}
// @Failure 404 {object} APIResponse
// @Router /dingtalk/configs/{id} [get]
func (c *DingTalkController) GetConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var config *models.DingTalkConfig
	var err error
	if id == meta.DingTalkDefaultConfigID {
		config, err = c.syncService.Store().LoadConfig(r.Context(), id)
	} else {
		config, err = c.syncService.Store().GetConfig(r.Context(), id)
	}
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "成功获取钉钉配置", c.configView(config))
}

// CreateConfig 创建钉钉配置
// @Summary 创建钉钉配置
// @Description 创建钉钉集成配置，未指定ID时自动生成
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param config body CreateConfigRequest true "配置信息"
// @Success 200 {object} APIResponse{data=ConfigView}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /dingtalk/configs [post]
func (c *DingTalkController) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	if len(id) > 32 {
		writeError(w, r, http.StatusBadRequest, "配置ID长度不能超过32", nil)
		return
	}
	if _, err := c.syncService.Store().GetConfig(r.Context(), id); err == nil {
		writeError(w, r, http.StatusBadRequest, "配置已存在: "+id, nil)
		return
	} else if !errors.Is(err, dingtalk_sync.ErrConfigNotFound) {
		writeError(w, r, http.StatusInternalServerError, "检查配置失败", err)
		return
	}

	config := &models.DingTalkConfig{
		ID:             id,
		Name:           strings.TrimSpace(req.Name),
		TenantID:       strings.TrimSpace(req.TenantID),
		AppKey:         strings.TrimSpace(req.AppKey),
		AppSecret:      strings.TrimSpace(req.AppSecret),
		AgentID:        strings.TrimSpace(req.AgentID),
		Enabled:        req.Enabled,
		SyncUsers:      req.SyncUsers == nil || *req.SyncUsers,
		SyncDepts:      req.SyncDepts == nil || *req.SyncDepts,
		SyncAttendance: req.SyncAttendance,
		CallbackURL:    strings.TrimSpace(req.CallbackURL),
		CallbackToken:  strings.TrimSpace(req.CallbackToken),
		CallbackAESKey: strings.TrimSpace(req.CallbackAESKey),
		Remark:         req.Remark,
		Schedule:       models.JSONB(req.Schedule),
		CreatedBy:      req.CreatedBy,
		UpdatedBy:      req.CreatedBy,
	}
	if config.Schedule == nil {
		config.Schedule = models.JSONB{}
	}
	if err := c.syncService.Store().CreateConfig(r.Context(), config); err != nil {
		writeError(w, r, http.StatusInternalServerError, "创建钉钉配置失败", err)
		return
	}

	c.reloadSchedule(r.Context(), config.ID)
	writeSuccess(w, r, "钉钉配置创建成功", c.configView(config))
}

// UpdateConfig 更新钉钉配置
// @Summary 更新钉钉配置
// @Description 按字段更新钉钉配置，AppKey/AppSecret 变化时清空缓存的访问令牌
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param id path string true "配置ID"
// @Param config body dingtalk_sync.ConfigUpdate true "更新内容"
// @Success 200 {object} APIResponse{data=ConfigView}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /dingtalk/configs/{id} [put]
func (c *DingTalkController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update dingtalk_sync.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}
	update.UpdatedBy = r.Header.Get("X-User-Name")

	config, err := c.syncService.Store().UpdateConfig(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}

	c.reloadSchedule(r.Context(), config.ID)
	writeSuccess(w, r, "钉钉配置更新成功", c.configView(config))
}

func (c *DingTalkController) reloadSchedule(ctx context.Context, configID string) {
	if c.scheduler == nil {
		return
	}
	if err := c.scheduler.ReloadConfig(ctx, configID); err != nil {
		slog.Error("重新加载计划同步任务失败", "config_id", configID, "error", err)
	}
}

// GetSyncInfo 获取同步汇总信息
// @Summary 获取同步汇总信息
// @Description 获取配置最近一次同步的状态与各类数据的同步时间、数量
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "配置ID"
// @Success 200 {object} APIResponse{data=SyncInfo}
// @Failure 404 {object} APIResponse
// @Router /dingtalk/configs/{id}/sync-info [get]
func (c *DingTalkController) GetSyncInfo(w http.ResponseWriter, r *http.Request) {
	config, err := c.syncService.Store().GetConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}

	writeSuccess(w, r, "成功获取同步信息", SyncInfo{
		ConfigID:                config.ID,
		LastSyncTime:            config.LastSyncTime,
		LastSyncStatus:          config.LastSyncStatus,
		LastSyncMessage:         config.LastSyncMessage,
		LastUserSyncTime:        config.LastUserSyncTime,
		LastDeptSyncTime:        config.LastDeptSyncTime,
		LastAttendanceSyncTime:  config.LastAttendanceSyncTime,
		LastDimissionSyncTime:   config.LastDimissionSyncTime,
		LastUserSyncCount:       config.LastUserSyncCount,
		LastDeptSyncCount:       config.LastDeptSyncCount,
		LastAttendanceSyncCount: config.LastAttendanceSyncCount,
		LastDimissionSyncCount:  config.LastDimissionSyncCount,
	})
}

// ResetToken 重置访问令牌
// @Summary 重置访问令牌
// @Description 清空缓存的访问令牌，下次调用时重新获取
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "配置ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /dingtalk/configs/{id}/reset-token [post]
func (c *DingTalkController) ResetToken(w http.ResponseWriter, r *http.Request) {
	if err := c.syncService.Store().ResetAccessToken(r.Context(), chi.URLParam(r, "id")); err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "访问令牌已重置", nil)
}

// syncSuccessMessages 同步命令成功提示
var syncSuccessMessages = map[string]string{
	meta.SyncOperationTestConnection:     "钉钉连接正常",
	meta.SyncOperationSyncDepartments:    "部门同步完成",
	meta.SyncOperationSyncUsers:          "用户同步完成",
	meta.SyncOperationSyncDimissionUsers: "离职人员同步完成",
	meta.SyncOperationSyncAttendance:     "考勤同步完成",
	meta.SyncOperationFullSync:           "全量同步完成",
}

// parseTimeParam 解析时间参数，无时区时按默认时区解释
func parseTimeParam(value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	parsed, ok := dingtalk_mapper.ParseDateTime(value)
	if !ok {
		return nil, false
	}
	return &parsed, true
}

// RunSync 执行同步命令
// @Summary 执行同步命令
// @Description 对指定配置执行一次同步，未指定配置时使用 default
// @Description
// @Description **支持的操作:**
// @Description - test_connection: 测试连接
// @Description - sync_departments: 同步部门
// @Description - sync_users: 同步用户
// @Description - sync_dimission_users: 同步离职人员
// @Description - sync_attendance: 同步考勤（需要 start 与 end）
// @Description - full_sync: 部门与用户全量同步
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param config_id path string false "配置ID"
// @Param command body SyncCommandRequest true "同步命令"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse "参数错误、配置缺失或未启用"
// @Failure 502 {object} APIResponse "钉钉接口错误"
// @Failure 500 {object} APIResponse
// @Router /dingtalk/{config_id}/sync [post]
func (c *DingTalkController) RunSync(w http.ResponseWriter, r *http.Request) {
	var req SyncCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}

	start, ok := parseTimeParam(req.Start)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "start 时间格式错误", nil)
		return
	}
	end, ok := parseTimeParam(req.End)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "end 时间格式错误", nil)
		return
	}

	result, err := c.syncService.Run(r.Context(), req.Operation, configIDFromRequest(r), dingtalk_sync.RunParams{
		Mode:    req.Mode,
		Start:   start,
		End:     end,
		UserIDs: req.UserIDs,
	})
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, syncSuccessMessages[req.Operation], result)
}

// HandleCallback 接收钉钉事件回调
// @Summary 接收钉钉事件回调
// @Description 未配置回调 Token/AES Key 时拒绝；否则记录日志并确认接收
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param config_id path string true "配置ID"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /dingtalk/{config_id}/callbacks [post]
func (c *DingTalkController) HandleCallback(w http.ResponseWriter, r *http.Request) {
	config, err := c.syncService.Store().LoadConfig(r.Context(), configIDFromRequest(r))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	if config.CallbackToken == "" || config.CallbackAESKey == "" {
		writeError(w, r, http.StatusBadRequest, "未配置回调 Token/AES Key", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "读取回调内容失败", err)
		return
	}
	slog.Info("收到钉钉回调", "config_id", config.ID, "payload", string(body))
	writeSuccess(w, r, "回调已接收", nil)
}

// CallbackRegisterRequest 注册回调请求
type CallbackRegisterRequest struct {
	Events []string `json:"events"`
}

// RegisterCallback 向钉钉注册事件回调
// @Summary 注册钉钉事件回调
// @Description 使用配置中的回调地址、Token、AES Key 注册事件回调，events 为空时订阅通讯录默认事件
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param config_id path string true "配置ID"
// @Param request body CallbackRegisterRequest false "订阅事件"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /dingtalk/{config_id}/callbacks/register [post]
func (c *DingTalkController) RegisterCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}

	config, err := c.syncService.Store().LoadConfig(r.Context(), configIDFromRequest(r))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	resp, err := c.syncService.RegisterCallback(r.Context(), config, req.Events)
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "回调注册成功", resp)
}

// UnregisterCallback 删除钉钉事件回调
// @Summary 删除钉钉事件回调
// @Tags 钉钉集成
// @Produce json
// @Param config_id path string true "配置ID"
// @Success 200 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /dingtalk/{config_id}/callbacks [delete]
func (c *DingTalkController) UnregisterCallback(w http.ResponseWriter, r *http.Request) {
	config, err := c.syncService.Store().LoadConfig(r.Context(), configIDFromRequest(r))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	resp, err := c.syncService.UnregisterCallback(r.Context(), config)
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "回调已删除", resp)
}

// ListLogs 获取同步日志
// @Summary 获取同步日志
// @Description 分页获取同步日志，按创建时间倒序
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param operation query string false "操作类型"
// @Param status query string false "状态(success/failed)"
// @Param level query string false "级别(info/warning/error)"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.DingTalkSyncLog}
// @Failure 500 {object} APIResponse
// @Router /dingtalk/logs [get]
func (c *DingTalkController) ListLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 20)

	logs, total, err := c.syncService.Ledger().ListLogs(r.Context(), dingtalk_sync.LogQuery{
		ConfigID:  query.Get("config_id"),
		Operation: query.Get("operation"),
		Status:    query.Get("status"),
		Level:     query.Get("level"),
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "获取同步日志失败", err)
		return
	}
	writeResponse(w, r, http.StatusOK, &PaginatedResponse{
		Status: 0,
		Msg:    "成功获取同步日志",
		Data:   logs,
		Total:  total,
		Page:   page,
		Size:   size,
	})
}

// GetLog 获取同步日志详情
// @Summary 获取同步日志详情
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "日志ID"
// @Success 200 {object} APIResponse{data=models.DingTalkSyncLog}
// @Failure 404 {object} APIResponse
// @Router /dingtalk/logs/{id} [get]
func (c *DingTalkController) GetLog(w http.ResponseWriter, r *http.Request) {
	log, err := c.syncService.Ledger().GetLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "成功获取同步日志", log)
}

func snapshotQuery(r *http.Request) dingtalk_sync.SnapshotQuery {
	query := r.URL.Query()
	result := dingtalk_sync.SnapshotQuery{
		ConfigID: configIDFromRequest(r),
		Keyword:  query.Get("keyword"),
		UserID:   query.Get("userid"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "size", 20),
	}
	if start, ok := parseTimeParam(query.Get("start")); ok {
		result.Start = start
	}
	if end, ok := parseTimeParam(query.Get("end")); ok {
		result.End = end
	}
	return result
}

func writePage(w http.ResponseWriter, r *http.Request, msg string, data interface{}, total int64, query dingtalk_sync.SnapshotQuery) {
	writeResponse(w, r, http.StatusOK, &PaginatedResponse{
		Status: 0,
		Msg:    msg,
		Data:   data,
		Total:  total,
		Page:   query.Page,
		Size:   query.PageSize,
	})
}

// ListDepartments 获取本地部门快照
// @Summary 获取本地部门快照
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param keyword query string false "部门名称关键字"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.DingTalkDepartment}
// @Router /dingtalk/departments [get]
func (c *DingTalkController) ListDepartments(w http.ResponseWriter, r *http.Request) {
	query := snapshotQuery(r)
	items, total, err := c.syncService.Store().ListDepartmentSnapshots(r.Context(), query)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	writePage(w, r, "成功获取部门列表", items, total, query)
}

// ListUsers 获取本地用户快照
// @Summary 获取本地用户快照
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param keyword query string false "姓名/手机号/userid关键字"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.DingTalkUser}
// @Router /dingtalk/users [get]
func (c *DingTalkController) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := snapshotQuery(r)
	items, total, err := c.syncService.Store().ListUserSnapshots(r.Context(), query)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	writePage(w, r, "成功获取用户列表", items, total, query)
}

// ListDimissionUsers 获取本地离职人员快照
// @Summary 获取本地离职人员快照
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param keyword query string false "姓名/手机号/userid关键字"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.DingTalkDimissionUser}
// @Router /dingtalk/dimission-users [get]
func (c *DingTalkController) ListDimissionUsers(w http.ResponseWriter, r *http.Request) {
	query := snapshotQuery(r)
	items, total, err := c.syncService.Store().ListDimissionSnapshots(r.Context(), query)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	writePage(w, r, "成功获取离职人员列表", items, total, query)
}

// ListAttendances 获取本地考勤记录
// @Summary 获取本地考勤记录
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param userid query string false "用户ID"
// @Param start query string false "开始时间"
// @Param end query string false "结束时间"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.DingTalkAttendanceRecord}
// @Router /dingtalk/attendances [get]
func (c *DingTalkController) ListAttendances(w http.ResponseWriter, r *http.Request) {
	query := snapshotQuery(r)
	items, total, err := c.syncService.Store().ListAttendanceSnapshots(r.Context(), query)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	writePage(w, r, "成功获取考勤记录", items, total, query)
}

// ListCursors 获取同步游标
// @Summary 获取同步游标
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Success 200 {object} APIResponse{data=[]models.DingTalkSyncCursor}
// @Router /dingtalk/cursors [get]
func (c *DingTalkController) ListCursors(w http.ResponseWriter, r *http.Request) {
	cursors, err := c.syncService.Store().ListCursors(r.Context(), configIDFromRequest(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "", err)
		return
	}
	writeSuccess(w, r, "成功获取同步游标", cursors)
}

// loadConfigForPreview 预览使用的配置，不存在时按默认值创建
func (c *DingTalkController) loadConfigForPreview(w http.ResponseWriter, r *http.Request) (*models.DingTalkConfig, bool) {
	config, err := c.syncService.Store().LoadConfig(r.Context(), configIDFromRequest(r))
	if err != nil {
		c.writeSyncError(w, r, err)
		return nil, false
	}
	return config, true
}

// PreviewDepartments 实时预览钉钉部门
// @Summary 实时预览钉钉部门
// @Description 直接调用钉钉接口获取部门树，不写入本地快照
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param root_dept_id query int false "根部门ID" default(1)
// @Param limit query int false "返回条数"
// @Success 200 {object} APIResponse{data=dingtalk_sync.PreviewResult}
// @Failure 400 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /dingtalk/departments/remote [get]
func (c *DingTalkController) PreviewDepartments(w http.ResponseWriter, r *http.Request) {
	config, ok := c.loadConfigForPreview(w, r)
	if !ok {
		return
	}
	result, err := c.syncService.PreviewDepartments(r.Context(), config, int64(queryInt(r, "root_dept_id", 1)), queryInt(r, "limit", 0))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "成功获取实时部门列表", result)
}

// PreviewUsers 实时预览钉钉用户
// @Summary 实时预览钉钉用户
// @Description 遍历钉钉部门获取用户，按关键字过滤姓名/手机号/userid/邮箱
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param keyword query string false "关键字"
// @Param limit query int false "返回条数"
// @Success 200 {object} APIResponse{data=dingtalk_sync.PreviewResult}
// @Failure 400 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /dingtalk/users/remote [get]
func (c *DingTalkController) PreviewUsers(w http.ResponseWriter, r *http.Request) {
	config, ok := c.loadConfigForPreview(w, r)
	if !ok {
		return
	}
	result, err := c.syncService.PreviewUsers(r.Context(), config, r.URL.Query().Get("keyword"), queryInt(r, "limit", 0))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "成功获取实时用户列表", result)
}

// AttendancePreview 考勤预览结果
type AttendancePreview struct {
	Records []models.DingTalkAttendanceRecord `json:"records"`
	Count   int                               `json:"count"`
}

// previewUserIDs 解析 userIds、userIds[]、userIds[n] 与逗号分隔形式的用户ID
func previewUserIDs(values url.Values) []string {
	var raw []string
	raw = append(raw, values["userIds"]...)
	raw = append(raw, values["userIds[]"]...)
	if len(raw) == 0 {
		for key, items := range values {
			if strings.HasPrefix(key, "userIds[") {
				raw = append(raw, items...)
			}
		}
	}

	var result []string
	seen := make(map[string]struct{})
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			result = append(result, part)
		}
	}
	return result
}

// PreviewAttendance 实时预览钉钉考勤
// @Summary 实时预览钉钉考勤
// @Description 默认时间窗口为最近7天；未指定用户时使用本地已同步的用户
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param start query string false "开始时间"
// @Param end query string false "结束时间"
// @Param userIds query []string false "用户ID列表，支持逗号分隔"
// @Param limit query int false "返回条数" default(200)
// @Success 200 {object} APIResponse{data=AttendancePreview}
// @Failure 400 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /dingtalk/attendances/remote [get]
func (c *DingTalkController) PreviewAttendance(w http.ResponseWriter, r *http.Request) {
	config, ok := c.loadConfigForPreview(w, r)
	if !ok {
		return
	}

	now := c.now()
	start := now.AddDate(0, 0, -7)
	end := now
	if parsed, ok := parseTimeParam(r.URL.Query().Get("start")); ok && parsed != nil {
		start = *parsed
	}
	if parsed, ok := parseTimeParam(r.URL.Query().Get("end")); ok && parsed != nil {
		end = *parsed
	}

	params := dingtalk_sync.AttendanceParams{Start: start, End: end}
	if userIDs := previewUserIDs(r.URL.Query()); len(userIDs) > 0 {
		params.UserIDs = userIDs
	}

	records, err := c.syncService.PreviewAttendance(r.Context(), config, params, queryInt(r, "limit", dingtalk_sync.DefaultAttendancePreviewLimit))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "成功获取考勤预览", AttendancePreview{Records: records, Count: len(records)})
}

// GetMetricsSummary 获取同步指标汇总
// @Summary 获取同步指标汇总
// @Description 按时间范围统计同步成功率、失败分布与同步数据量
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param time_range query string false "时间范围(1h/24h/7d/30d)" default(24h)
// @Success 200 {object} APIResponse{data=monitoring.SyncTaskMetrics}
// @Failure 500 {object} APIResponse
// @Router /dingtalk/metrics/summary [get]
func (c *DingTalkController) GetMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if c.collector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "指标收集器未启用", nil)
		return
	}
	timeRange := r.URL.Query().Get("time_range")
	if timeRange == "" {
		timeRange = "24h"
	}
	metrics, err := c.collector.CollectSyncTaskMetrics(configIDFromRequest(r), timeRange)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "获取同步指标失败", err)
		return
	}
	writeSuccess(w, r, "成功获取同步指标", metrics)
}

// ListSchedules 获取已注册的计划同步任务
// @Summary 获取计划同步任务
// @Tags 钉钉集成
// @Produce json
// @Success 200 {object} APIResponse{data=[]scheduler.ScheduledEntry}
// @Router /dingtalk/schedules [get]
func (c *DingTalkController) ListSchedules(w http.ResponseWriter, r *http.Request) {
	entries := []scheduler.ScheduledEntry{}
	if c.scheduler != nil {
		entries = append(entries, c.scheduler.Entries()...)
	}
	writeSuccess(w, r, "成功获取计划同步任务", entries)
}

// SyncMeta 同步相关枚举
type SyncMeta struct {
	Operations []meta.MetaField `json:"operations"`
	Modes      []meta.MetaField `json:"modes"`
	Statuses   []meta.MetaField `json:"statuses"`
}

// GetSyncMeta 获取同步枚举
// @Summary 获取同步枚举
// @Description 获取同步操作类型、同步模式与日志状态的枚举定义
// @Tags 钉钉集成
// @Produce json
// @Success 200 {object} APIResponse{data=SyncMeta}
// @Router /dingtalk/meta [get]
func (c *DingTalkController) GetSyncMeta(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, "成功获取同步枚举", SyncMeta{
		Operations: meta.SyncOperations,
		Modes:      meta.SyncModes,
		Statuses:   meta.SyncStatuses,
	})
}
