package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dingtalk-sync-service/service/dingtalk/dingtalk_sync"
	"dingtalk-sync-service/service/models"

	"github.com/go-chi/chi/v5"
)

// DeptBindingRequest 部门绑定请求
type DeptBindingRequest struct {
	ConfigID      string `json:"config_id,omitempty"`
	DeptID        int64  `json:"dept_id"`
	LocalDeptCode string `json:"local_dept_code"`
}

// UserBindingRequest 用户绑定请求
type UserBindingRequest struct {
	ConfigID    string `json:"config_id,omitempty"`
	UserID      string `json:"userid"`
	LocalUserID string `json:"local_user_id"`
}

func bindingQuery(r *http.Request) dingtalk_sync.BindingQuery {
	query := r.URL.Query()
	deptID, _ := strconv.ParseInt(query.Get("dept_id"), 10, 64)
	local := query.Get("local_id")
	if local == "" {
		local = query.Get("local_dept_code")
	}
	if local == "" {
		local = query.Get("local_user_id")
	}
	return dingtalk_sync.BindingQuery{
		ConfigID: configIDFromRequest(r),
		DeptID:   deptID,
		UserID:   query.Get("userid"),
		LocalID:  local,
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "size", 20),
	}
}

func writeBindingPage(w http.ResponseWriter, r *http.Request, msg string, data interface{}, total int64, query dingtalk_sync.BindingQuery) {
	writeResponse(w, r, http.StatusOK, &PaginatedResponse{
		Status: 0,
		Msg:    msg,
		Data:   data,
		Total:  total,
		Page:   query.Page,
		Size:   query.PageSize,
	})
}

// ListDeptBindings 获取部门绑定列表
// @Summary 获取部门绑定列表
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param dept_id query int false "钉钉部门ID"
// @Param local_dept_code query string false "本地部门编码"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.DingTalkDeptBinding}
// @Router /dingtalk/dept-bindings [get]
func (c *DingTalkController) ListDeptBindings(w http.ResponseWriter, r *http.Request) {
	query := bindingQuery(r)
	items, total, err := c.syncService.Store().ListDeptBindings(r.Context(), query)
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeBindingPage(w, r, "成功获取部门绑定", items, total, query)
}

// CreateDeptBinding 创建部门绑定
// @Summary 创建部门绑定
// @Description 绑定钉钉部门与本地部门编码，钉钉部门必须已同步到本地快照
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param binding body DeptBindingRequest true "绑定信息"
// @Success 200 {object} APIResponse{data=models.DingTalkDeptBinding}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /dingtalk/dept-bindings [post]
func (c *DingTalkController) CreateDeptBinding(w http.ResponseWriter, r *http.Request) {
	var req DeptBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}
	configID := req.ConfigID
	if configID == "" {
		configID = configIDFromRequest(r)
	}
	binding := &models.DingTalkDeptBinding{ConfigID: configID, DeptID: req.DeptID, LocalDeptCode: req.LocalDeptCode}
	if err := c.syncService.Store().CreateDeptBinding(r.Context(), binding); err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "部门绑定创建成功", binding)
}

// GetDeptBinding 获取部门绑定详情
// @Summary 获取部门绑定详情
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "绑定ID"
// @Success 200 {object} APIResponse{data=models.DingTalkDeptBinding}
// @Failure 404 {object} APIResponse
// @Router /dingtalk/dept-bindings/{id} [get]
func (c *DingTalkController) GetDeptBinding(w http.ResponseWriter, r *http.Request) {
	binding, err := c.syncService.Store().GetDeptBinding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "成功获取部门绑定", binding)
}

// UpdateDeptBinding 修改部门绑定
// @Summary 修改部门绑定
// @Description 仅允许修改本地部门编码
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param id path string true "绑定ID"
// @Param binding body DeptBindingRequest true "绑定信息"
// @Success 200 {object} APIResponse{data=models.DingTalkDeptBinding}
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /dingtalk/dept-bindings/{id} [put]
func (c *DingTalkController) UpdateDeptBinding(w http.ResponseWriter, r *http.Request) {
	var req DeptBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}
	binding, err := c.syncService.Store().UpdateDeptBinding(r.Context(), chi.URLParam(r, "id"), req.LocalDeptCode)
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "部门绑定更新成功", binding)
}

// DeleteDeptBinding 删除部门绑定
// @Summary 删除部门绑定
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "绑定ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /dingtalk/dept-bindings/{id} [delete]
func (c *DingTalkController) DeleteDeptBinding(w http.ResponseWriter, r *http.Request) {
	if err := c.syncService.Store().DeleteDeptBinding(r.Context(), chi.URLParam(r, "id")); err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "部门绑定已删除", nil)
}

// ListUserBindings 获取用户绑定列表
// @Summary 获取用户绑定列表
// @Tags 钉钉集成
// @Produce json
// @Param config_id query string false "配置ID"
// @Param userid query string false "钉钉userid"
// @Param local_user_id query string false "本地用户标识"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.DingTalkUserBinding}
// @Router /dingtalk/user-bindings [get]
func (c *DingTalkController) ListUserBindings(w http.ResponseWriter, r *http.Request) {
	query := bindingQuery(r)
	items, total, err := c.syncService.Store().ListUserBindings(r.Context(), query)
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeBindingPage(w, r, "成功获取用户绑定", items, total, query)
}

// CreateUserBinding 创建用户绑定
// @Summary 创建用户绑定
// @Description 绑定钉钉用户与本地用户，钉钉用户必须已同步到本地快照
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param binding body UserBindingRequest true "绑定信息"
// @Success 200 {object} APIResponse{data=models.DingTalkUserBinding}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /dingtalk/user-bindings [post]
func (c *DingTalkController) CreateUserBinding(w http.ResponseWriter, r *http.Request) {
	var req UserBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}
	configID := req.ConfigID
	if configID == "" {
		configID = configIDFromRequest(r)
	}
	binding := &models.DingTalkUserBinding{ConfigID: configID, UserID: req.UserID, LocalUserID: req.LocalUserID}
	if err := c.syncService.Store().CreateUserBinding(r.Context(), binding); err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "用户绑定创建成功", binding)
}

// GetUserBinding 获取用户绑定详情
// @Summary 获取用户绑定详情
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "绑定ID"
// @Success 200 {object} APIResponse{data=models.DingTalkUserBinding}
// @Failure 404 {object} APIResponse
// @Router /dingtalk/user-bindings/{id} [get]
func (c *DingTalkController) GetUserBinding(w http.ResponseWriter, r *http.Request) {
	binding, err := c.syncService.Store().GetUserBinding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "成功获取用户绑定", binding)
}

// UpdateUserBinding 修改用户绑定
// @Summary 修改用户绑定
// @Description 仅允许修改本地用户标识
// @Tags 钉钉集成
// @Accept json
// @Produce json
// @Param id path string true "绑定ID"
// @Param binding body UserBindingRequest true "绑定信息"
// @Success 200 {object} APIResponse{data=models.DingTalkUserBinding}
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /dingtalk/user-bindings/{id} [put]
func (c *DingTalkController) UpdateUserBinding(w http.ResponseWriter, r *http.Request) {
	var req UserBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败", err)
		return
	}
	binding, err := c.syncService.Store().UpdateUserBinding(r.Context(), chi.URLParam(r, "id"), req.LocalUserID)
	if err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "用户绑定更新成功", binding)
}

// DeleteUserBinding 删除用户绑定
// @Summary 删除用户绑定
// @Tags 钉钉集成
// @Produce json
// @Param id path string true "绑定ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /dingtalk/user-bindings/{id} [delete]
func (c *DingTalkController) DeleteUserBinding(w http.ResponseWriter, r *http.Request) {
	if err := c.syncService.Store().DeleteUserBinding(r.Context(), chi.URLParam(r, "id")); err != nil {
		c.writeSyncError(w, r, err)
		return
	}
	writeSuccess(w, r, "用户绑定已删除", nil)
}
