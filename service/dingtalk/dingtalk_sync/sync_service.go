/*
 * @module service/dingtalk/dingtalk_sync/sync_service
 * @description 钉钉同步编排：部门、用户、离职人员、考勤的拉取、映射、对账与台账记录
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow pre_sync -> 拉取 -> 映射 -> upsert + 过期清理(同一事务) -> 记录台账 -> 更新汇总 -> post_sync；
 *            任一步骤失败 -> 记录失败日志 -> 更新汇总 -> sync_failed -> 返回原错误
 * @rules 每次操作恰好一条台账日志；配置错误与未启用记为 warning，其余失败记为 error；
 *        考勤只追加不清理；指定用户的考勤同步跳过启用检查；离职记录获取失败降级为统计中的警告
 * @dependencies gorm.io/gorm, log/slog
 * @refs service/dingtalk/dingtalk_client, service/dingtalk/dingtalk_mapper, service/dingtalk/dingtalk_sync/store.go
 */

package dingtalk_sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dingtalk-sync-service/service/dingtalk/dingtalk_client"
	"dingtalk-sync-service/service/dingtalk/dingtalk_mapper"
	"dingtalk-sync-service/service/meta"
	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/service/monitoring"

	"github.com/spf13/cast"
)

// Options 同步服务选项
type Options struct {
	// ClientOptions 钉钉客户端选项，TokenStore/Metrics 未指定时使用同步服务自身的
	ClientOptions dingtalk_client.Options
	Hooks         *Hooks
	Metrics       *monitoring.SyncMetrics
	// RosterFields 离职花名册补全字段（环境变量），配置中的 schedule 优先
	RosterFields []string
	Now          func() time.Time
}

// SyncService 钉钉同步服务
type SyncService struct {
	store         *Store
	ledger        *Ledger
	hooks         *Hooks
	metrics       *monitoring.SyncMetrics
	clientOptions dingtalk_client.Options
	rosterFields  []string
	now           func() time.Time
}

// NewSyncService 创建同步服务
func NewSyncService(store *Store, ledger *Ledger, opts Options) *SyncService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hooks == nil {
		opts.Hooks = NewHooks()
	}
	clientOptions := opts.ClientOptions
	if clientOptions.TokenStore == nil {
		clientOptions.TokenStore = store
	}
	if clientOptions.Metrics == nil {
		clientOptions.Metrics = opts.Metrics
	}
	return &SyncService{
		store:         store,
		ledger:        ledger,
		hooks:         opts.Hooks,
		metrics:       opts.Metrics,
		clientOptions: clientOptions,
		rosterFields:  opts.RosterFields,
		now:           opts.Now,
	}
}

// Store 获取存储
func (s *SyncService) Store() *Store {
	return s.store
}

// Ledger 获取同步台账
func (s *SyncService) Ledger() *Ledger {
	return s.ledger
}

// Hooks 获取同步钩子
func (s *SyncService) Hooks() *Hooks {
	return s.hooks
}

// ConnectionResult 连接测试结果
type ConnectionResult struct {
	AccessToken string     `json:"accessToken"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// SyncResult 快照同步结果
type SyncResult struct {
	Count      int   `json:"count"`
	StaleCount int64 `json:"staleCount"`
}

// AttendanceResult 考勤同步结果
type AttendanceResult struct {
	Count int `json:"count"`
}

// FullSyncResult 全量同步结果
type FullSyncResult struct {
	DeptCount int `json:"deptCount"`
	UserCount int `json:"userCount"`
}

func (s *SyncService) newClient(config *models.DingTalkConfig) (*dingtalk_client.Client, error) {
	return dingtalk_client.NewClient(config, s.clientOptions)
}

func ensureEnabled(config *models.DingTalkConfig) error {
	if !config.Enabled {
		return &dingtalk_client.DisabledError{Message: dingtalk_client.MsgIntegrationDisabled}
	}
	return nil
}

func newStartAfterEndError() error {
	return dingtalk_client.NewAPIError(dingtalk_client.MsgStartAfterEnd, nil)
}

func (s *SyncService) emit(ctx context.Context, event string, config *models.DingTalkConfig, operation string, stats map[string]interface{}, err error) {
	payload := models.DingTalkSyncEvent{
		Event:     event,
		ConfigID:  config.ID,
		Operation: operation,
		Stats:     stats,
		Timestamp: s.now(),
	}
	if err != nil {
		payload.Error = err.Error()
	}
	s.hooks.Emit(ctx, payload)
}

// begin 发出 pre_sync 并返回开始时间
func (s *SyncService) begin(ctx context.Context, config *models.DingTalkConfig, operation string) time.Time {
	slog.Info("钉钉同步开始", "config_id", config.ID, "operation", operation)
	s.emit(ctx, meta.SyncEventPreSync, config, operation, nil, nil)
	return s.now()
}

// succeed 记录成功台账、更新汇总并发出 post_sync
func (s *SyncService) succeed(ctx context.Context, config *models.DingTalkConfig, operation string, started time.Time, message string, stats map[string]interface{}, rollup *Rollup) {
	if _, err := s.ledger.Append(ctx, Entry{
		ConfigID:  config.ID,
		Operation: operation,
		Status:    meta.SyncStatusSuccess,
		Level:     meta.SyncLevelInfo,
		Message:   message,
		Stats:     stats,
	}); err != nil {
		slog.Error("写入同步日志失败", "config_id", config.ID, "operation", operation, "error", err)
	}
	if rollup != nil {
		rollup.Status = meta.SyncStatusSuccess
		rollup.Message = message
		rollup.Stats = stats
		if err := s.ledger.UpdateRollup(ctx, config, *rollup); err != nil {
			slog.Error("更新同步汇总失败", "config_id", config.ID, "operation", operation, "error", err)
		}
	}

	s.metrics.ObserveSync(operation, meta.SyncStatusSuccess, s.now().Sub(started))
	slog.Info("钉钉同步完成", "config_id", config.ID, "operation", operation, "message", message, "stats", stats)
	s.emit(ctx, meta.SyncEventPostSync, config, operation, stats, nil)
}

// fail 记录失败台账、更新汇总并发出 sync_failed，返回原错误
func (s *SyncService) fail(ctx context.Context, config *models.DingTalkConfig, operation string, started time.Time, err error, stats map[string]interface{}) error {
	level := meta.SyncLevelError
	detail := ""
	if apiErr, ok := dingtalk_client.AsAPIError(err); ok {
		detail = apiErr.Detail()
	} else if dingtalk_client.IsConfigurationError(err) || dingtalk_client.IsDisabledError(err) {
		level = meta.SyncLevelWarning
	}

	message := err.Error()
	if _, logErr := s.ledger.Append(ctx, Entry{
		ConfigID:  config.ID,
		Operation: operation,
		Status:    meta.SyncStatusFailed,
		Level:     level,
		Message:   message,
		Detail:    detail,
		Stats:     stats,
	}); logErr != nil {
		slog.Error("写入同步日志失败", "config_id", config.ID, "operation", operation, "error", logErr)
	}
	if rollupErr := s.ledger.UpdateRollup(ctx, config, Rollup{
		Status:  meta.SyncStatusFailed,
		Message: message,
		Stats:   stats,
	}); rollupErr != nil {
		slog.Error("更新同步汇总失败", "config_id", config.ID, "operation", operation, "error", rollupErr)
	}

	s.metrics.ObserveSync(operation, meta.SyncStatusFailed, s.now().Sub(started))
	if level == meta.SyncLevelWarning {
		slog.Warn("钉钉同步失败", "config_id", config.ID, "operation", operation, "error", err)
	} else {
		slog.Error("钉钉同步失败", "config_id", config.ID, "operation", operation, "error", err, "detail", detail)
	}
	s.emit(ctx, meta.SyncEventSyncFailed, config, operation, stats, err)
	return err
}

// TestConnection 强制刷新访问令牌以验证凭据
func (s *SyncService) TestConnection(ctx context.Context, config *models.DingTalkConfig) (*ConnectionResult, error) {
	started := s.begin(ctx, config, meta.SyncOperationTestConnection)

	client, err := s.newClient(config)
	if err != nil {
		return nil, s.fail(ctx, config, meta.SyncOperationTestConnection, started, err, nil)
	}
	token, err := client.GetAccessToken(ctx, true)
	if err != nil {
		return nil, s.fail(ctx, config, meta.SyncOperationTestConnection, started, err, nil)
	}

	var expiresAt interface{}
	if config.AccessTokenExpiresAt != nil {
		expiresAt = config.AccessTokenExpiresAt.Format(time.RFC3339)
	}
	stats := map[string]interface{}{"expires_at": expiresAt}
	s.succeed(ctx, config, meta.SyncOperationTestConnection, started, "钉钉连接测试成功", stats, nil)
	return &ConnectionResult{AccessToken: token, ExpiresAt: config.AccessTokenExpiresAt}, nil
}

// SyncDepartments 全量同步部门树
func (s *SyncService) SyncDepartments(ctx context.Context, config *models.DingTalkConfig, mode string) (*SyncResult, error) {
	operation := meta.SyncOperationSyncDepartments
	mode = normalizeMode(mode)
	if err := ensureEnabled(config); err != nil {
		return nil, s.fail(ctx, config, operation, s.now(), err, nil)
	}
	started := s.begin(ctx, config, operation)

	client, err := s.newClient(config)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	payloads, err := client.ListDepartments(ctx, meta.DingTalkRootDepartmentID)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}

	depts := make([]models.DingTalkDepartment, 0, len(payloads))
	index := make(map[int64]int, len(payloads))
	for _, payload := range payloads {
		dept := dingtalk_mapper.MapDepartment(config.ID, payload)
		if dept.DeptID == 0 {
			continue
		}
		if pos, ok := index[dept.DeptID]; ok {
			depts[pos] = dept
			continue
		}
		index[dept.DeptID] = len(depts)
		depts = append(depts, dept)
	}

	syncTime := s.now()
	stale, err := s.store.ReplaceDepartments(ctx, config.ID, depts)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}

	s.advanceCursor(ctx, config.ID, meta.CursorTypeDepartment, syncTime, map[string]interface{}{"count": len(depts)})

	stats := map[string]interface{}{"dept_count": len(depts), "stale_count": stale, "mode": mode}
	message := fmt.Sprintf("同步部门完成 (%d 个)", len(depts))
	s.succeed(ctx, config, operation, started, message, stats, &Rollup{DeptSyncTime: &syncTime})
	return &SyncResult{Count: len(depts), StaleCount: stale}, nil
}

// userSyncDeptIDs 用户同步的部门范围，本地尚无部门时从根部门开始
func (s *SyncService) userSyncDeptIDs(ctx context.Context, configID string) ([]int64, error) {
	ids, err := s.store.DepartmentIDs(ctx, configID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = []int64{meta.DingTalkRootDepartmentID}
	}
	return ids, nil
}

// SyncUsers 全量同步在职用户
func (s *SyncService) SyncUsers(ctx context.Context, config *models.DingTalkConfig, mode string) (*SyncResult, error) {
	operation := meta.SyncOperationSyncUsers
	mode = normalizeMode(mode)
	if err := ensureEnabled(config); err != nil {
		return nil, s.fail(ctx, config, operation, s.now(), err, nil)
	}
	started := s.begin(ctx, config, operation)

	deptIDs, err := s.userSyncDeptIDs(ctx, config.ID)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	client, err := s.newClient(config)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	payloads, err := client.ListAllUsers(ctx, deptIDs)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}

	users := make([]models.DingTalkUser, 0, len(payloads))
	index := make(map[string]int, len(payloads))
	for _, payload := range payloads {
		user := dingtalk_mapper.MapUser(config.ID, payload)
		if user.UserID == "" {
			continue
		}
		if pos, ok := index[user.UserID]; ok {
			users[pos] = user
			continue
		}
		index[user.UserID] = len(users)
		users = append(users, user)
	}

	syncTime := s.now()
	stale, err := s.store.ReplaceUsers(ctx, config.ID, users)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}

	s.advanceCursor(ctx, config.ID, meta.CursorTypeUser, syncTime, map[string]interface{}{"count": len(users)})

	stats := map[string]interface{}{"user_count": len(users), "stale_count": stale, "mode": mode}
	message := fmt.Sprintf("同步用户完成 (%d 个)", len(users))
	s.succeed(ctx, config, operation, started, message, stats, &Rollup{UserSyncTime: &syncTime})
	return &SyncResult{Count: len(users), StaleCount: stale}, nil
}

// SyncDimissionUsers 同步离职人员：ID列表 -> 离职详情 -> 花名册补全 -> 离职记录 -> 映射入库
func (s *SyncService) SyncDimissionUsers(ctx context.Context, config *models.DingTalkConfig, mode string) (*SyncResult, error) {
	operation := meta.SyncOperationSyncDimissionUsers
	mode = normalizeMode(mode)
	if err := ensureEnabled(config); err != nil {
		return nil, s.fail(ctx, config, operation, s.now(), err, nil)
	}
	started := s.begin(ctx, config, operation)

	client, err := s.newClient(config)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	userIDs, err := client.ListDimissionUserIDs(ctx, dingtalk_client.DefaultDimissionMaxResults)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	details, err := client.ListDimissionInfos(ctx, userIDs)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}

	detailMap := make(map[string]map[string]interface{}, len(details))
	for _, item := range details {
		userID := cast.ToString(firstPresent(item, "userid", "userId"))
		if userID != "" {
			detailMap[userID] = item
		}
	}

	stats := map[string]interface{}{}

	rosterFields := config.DimissionRosterFields(s.rosterFields)
	roster, err := client.ListRosterInfos(ctx, userIDs, rosterFields)
	if err != nil {
		if _, ok := dingtalk_client.AsAPIError(err); !ok {
			return nil, s.fail(ctx, config, operation, started, err, nil)
		}
		slog.Warn("获取离职人员花名册失败", "config_id", config.ID, "error", err)
		stats["roster_error"] = err.Error()
	}
	for userID, fields := range roster {
		detailMap[userID] = dingtalk_mapper.EnrichWithRoster(userID, detailMap[userID], fields)
	}

	recordMap := make(map[string]map[string]interface{})
	if len(userIDs) > 0 {
		records, err := client.ListDimissionRecords(ctx, time.Time{}, time.Time{}, dingtalk_client.DefaultDimissionRecordsMaxResults)
		if err != nil {
			if _, ok := dingtalk_client.AsAPIError(err); !ok {
				return nil, s.fail(ctx, config, operation, started, err, nil)
			}
			slog.Warn("获取离职人员离职记录失败", "config_id", config.ID, "error", err)
			stats["dimission_record_error"] = err.Error()
		}
		for _, record := range records {
			userID := cast.ToString(firstPresent(record, "userId", "userid"))
			if userID == "" {
				continue
			}
			if _, exists := recordMap[userID]; !exists {
				recordMap[userID] = record
			}
		}
	}

	users := make([]models.DingTalkDimissionUser, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		info, ok := detailMap[userID]
		if !ok {
			info = map[string]interface{}{"userid": userID}
		}
		user := dingtalk_mapper.MapDimission(config.ID, info, recordMap[userID])
		user.UserID = userID
		users = append(users, user)
	}

	syncTime := s.now()
	stale, err := s.store.ReplaceDimissionUsers(ctx, config.ID, users)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}

	stats["dimission_count"] = len(users)
	stats["stale_count"] = stale
	stats["mode"] = mode
	message := fmt.Sprintf("同步离职人员完成 (%d 个)", len(users))
	s.succeed(ctx, config, operation, started, message, stats, &Rollup{DimissionSyncTime: &syncTime})
	return &SyncResult{Count: len(users), StaleCount: stale}, nil
}

// AttendanceParams 考勤同步参数，UserIDs 为 nil 表示使用本地全部用户
type AttendanceParams struct {
	Start   time.Time
	End     time.Time
	Mode    string
	UserIDs []string
}

// resolveAttendanceUsers 解析考勤用户范围；explicit 为 true 表示调用方指定了用户
func (s *SyncService) resolveAttendanceUsers(ctx context.Context, config *models.DingTalkConfig, userIDs []string) (ids []string, explicit bool, err error) {
	if userIDs != nil {
		return normalizeUserIDs(userIDs), true, nil
	}
	if err := ensureEnabled(config); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// localUserIDs 本地用户ID，尚无用户时先同步一次用户
func (s *SyncService) localUserIDs(ctx context.Context, config *models.DingTalkConfig) ([]string, error) {
	ids, err := s.store.UserIDs(ctx, config.ID)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}
	if _, err := s.SyncUsers(ctx, config, meta.SyncModeFull); err != nil {
		return nil, err
	}
	return s.store.UserIDs(ctx, config.ID)
}

// SyncAttendance 同步考勤打卡记录，只 upsert 不清理
func (s *SyncService) SyncAttendance(ctx context.Context, config *models.DingTalkConfig, params AttendanceParams) (*AttendanceResult, error) {
	operation := meta.SyncOperationSyncAttendance
	mode := normalizeMode(params.Mode)
	if params.Start.After(params.End) {
		return nil, s.fail(ctx, config, operation, s.now(), newStartAfterEndError(), nil)
	}

	userIDs, explicit, err := s.resolveAttendanceUsers(ctx, config, params.UserIDs)
	if err != nil {
		return nil, s.fail(ctx, config, operation, s.now(), err, nil)
	}
	if explicit && len(userIDs) == 0 {
		return &AttendanceResult{Count: 0}, nil
	}

	started := s.begin(ctx, config, operation)
	if !explicit {
		userIDs, err = s.localUserIDs(ctx, config)
		if err != nil {
			return nil, s.fail(ctx, config, operation, started, err, nil)
		}
	}

	records := make([]models.DingTalkAttendanceRecord, 0)
	if len(userIDs) > 0 {
		client, err := s.newClient(config)
		if err != nil {
			return nil, s.fail(ctx, config, operation, started, err, nil)
		}
		payloads, err := client.ListAttendanceRecords(ctx, userIDs, params.Start, params.End)
		if err != nil {
			return nil, s.fail(ctx, config, operation, started, err, nil)
		}

		index := make(map[string]int, len(payloads))
		for _, payload := range payloads {
			record := dingtalk_mapper.MapAttendance(config.ID, payload)
			if record.RecordID == "" {
				continue
			}
			if pos, ok := index[record.RecordID]; ok {
				records[pos] = record
				continue
			}
			index[record.RecordID] = len(records)
			records = append(records, record)
		}
		if err := s.store.UpsertAttendanceRecords(ctx, records); err != nil {
			return nil, s.fail(ctx, config, operation, started, err, nil)
		}
	}
	s.advanceCursor(ctx, config.ID, meta.CursorTypeAttendance, params.End, map[string]interface{}{
		"start": params.Start.Format(time.RFC3339),
		"count": len(records),
	})

	stats := map[string]interface{}{
		"attendance_count": len(records),
		"mode":             mode,
		"userIds":          userIDs,
		"manual":           explicit,
	}
	message := fmt.Sprintf("同步考勤完成 (%d 条)", len(records))
	end := params.End
	s.succeed(ctx, config, operation, started, message, stats, &Rollup{AttendanceSyncTime: &end})
	return &AttendanceResult{Count: len(records)}, nil
}

// FullSync 依次同步部门与用户
func (s *SyncService) FullSync(ctx context.Context, config *models.DingTalkConfig) (*FullSyncResult, error) {
	operation := meta.SyncOperationFullSync
	started := s.begin(ctx, config, operation)

	deptResult, err := s.SyncDepartments(ctx, config, meta.SyncModeFull)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, nil)
	}
	userResult, err := s.SyncUsers(ctx, config, meta.SyncModeFull)
	if err != nil {
		return nil, s.fail(ctx, config, operation, started, err, map[string]interface{}{"dept_count": deptResult.Count})
	}

	stats := map[string]interface{}{"dept_count": deptResult.Count, "user_count": userResult.Count}
	message := fmt.Sprintf("全量同步完成，部门 %d 个，用户 %d 个", deptResult.Count, userResult.Count)
	s.succeed(ctx, config, operation, started, message, stats, &Rollup{})
	return &FullSyncResult{DeptCount: deptResult.Count, UserCount: userResult.Count}, nil
}

// advanceCursor 推进增量游标，失败只记录告警
func (s *SyncService) advanceCursor(ctx context.Context, configID, cursorType string, value time.Time, extra map[string]interface{}) {
	if err := s.store.UpdateCursor(ctx, configID, cursorType, value.Format(time.RFC3339), extra); err != nil {
		slog.Warn("更新同步游标失败", "config_id", configID, "cursor_type", cursorType, "error", err)
	}
}

func normalizeMode(mode string) string {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return meta.SyncModeFull
	}
	return mode
}

// normalizeUserIDs 去除空白与重复，保持顺序
func normalizeUserIDs(userIDs []string) []string {
	result := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func firstPresent(payload map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if value, ok := payload[key]; ok && value != nil && value != "" {
			return value
		}
	}
	return nil
}
