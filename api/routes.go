/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers, service/init.go
 */

package api

import (
	"dingtalk-sync-service/api/controllers"
	"dingtalk-sync-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-User-Name"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController(service.DB)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 钉钉集成
	r.Route("/dingtalk", func(r chi.Router) {
		dingtalkController := controllers.NewDingTalkController(
			service.GlobalSyncService,
			service.GlobalSchedulerService,
			service.GlobalMetricsCollector,
		)

		// 配置管理
		r.Get("/configs", dingtalkController.ListConfigs)
		r.Post("/configs", dingtalkController.CreateConfig)
		r.Get("/configs/{id}", dingtalkController.GetConfig)
		r.Put("/configs/{id}", dingtalkController.UpdateConfig)
		r.Get("/configs/{id}/sync-info", dingtalkController.GetSyncInfo)
		r.Post("/configs/{id}/reset-token", dingtalkController.ResetToken)

		// 同步命令与回调
		r.Post("/sync", dingtalkController.RunSync)
		r.Post("/{config_id}/sync", dingtalkController.RunSync)
		r.Post("/{config_id}/callbacks", dingtalkController.HandleCallback)
		r.Post("/{config_id}/callbacks/register", dingtalkController.RegisterCallback)
		r.Delete("/{config_id}/callbacks", dingtalkController.UnregisterCallback)

		// 同步日志
		r.Get("/logs", dingtalkController.ListLogs)
		r.Get("/logs/{id}", dingtalkController.GetLog)

		// 本地快照与实时预览
		r.Get("/departments", dingtalkController.ListDepartments)
		r.Get("/departments/remote", dingtalkController.PreviewDepartments)
		r.Get("/users", dingtalkController.ListUsers)
		r.Get("/users/remote", dingtalkController.PreviewUsers)
		r.Get("/dimission-users", dingtalkController.ListDimissionUsers)
		r.Get("/attendances", dingtalkController.ListAttendances)
		r.Get("/attendances/remote", dingtalkController.PreviewAttendance)
		r.Get("/cursors", dingtalkController.ListCursors)

		// 部门、用户绑定
		r.Get("/dept-bindings", dingtalkController.ListDeptBindings)
		r.Post("/dept-bindings", dingtalkController.CreateDeptBinding)
		r.Get("/dept-bindings/{id}", dingtalkController.GetDeptBinding)
		r.Put("/dept-bindings/{id}", dingtalkController.UpdateDeptBinding)
		r.Delete("/dept-bindings/{id}", dingtalkController.DeleteDeptBinding)
		r.Get("/user-bindings", dingtalkController.ListUserBindings)
		r.Post("/user-bindings", dingtalkController.CreateUserBinding)
		r.Get("/user-bindings/{id}", dingtalkController.GetUserBinding)
		r.Put("/user-bindings/{id}", dingtalkController.UpdateUserBinding)
		r.Delete("/user-bindings/{id}", dingtalkController.DeleteUserBinding)

		// 枚举、监控与调度
		r.Get("/meta", dingtalkController.GetSyncMeta)
		r.Get("/metrics/summary", dingtalkController.GetMetricsSummary)
		r.Get("/schedules", dingtalkController.ListSchedules)
	})
}
