// Package router 注册 HTTP 路由
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cvagent/cvagent-rules/internal/handler"
	"github.com/cvagent/cvagent-rules/internal/middleware"
)

// Handlers 所有处理器
type Handlers struct {
	Rule     *handler.RuleHandler
	Optimize *handler.OptimizeHandler
	Version  *handler.VersionHandler
	Health   *handler.HealthHandler
}

// SetupRouter 设置路由
// adminToken 非空时规则写接口要求 X-Admin-Token
func SetupRouter(r *gin.Engine, h *Handlers, adminToken string) {
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())
	r.Use(gin.Recovery())

	// 健康检查与指标
	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 规则查询 (只读)
		rules := v1.Group("/rules")
		{
			rules.GET("", h.Rule.List)
			rules.GET("/active", h.Rule.ListActive)
			rules.GET("/categories", h.Rule.ListCategories)
			rules.GET("/search", h.Rule.Search)
			rules.GET("/statistics", h.Rule.Statistics)
			rules.GET("/category/:category", h.Rule.ListByCategory)
			rules.GET("/:id", h.Rule.Get)

			// 版本历史 (只读)
			rules.GET("/:id/versions", h.Version.List)
			rules.GET("/:id/versions/compare", h.Version.Compare)
			rules.GET("/:id/versions/statistics", h.Version.Statistics)
			rules.GET("/:id/versions/:version", h.Version.Get)
		}

		// 规则变更 (需要管理令牌)
		mutation := v1.Group("/rules")
		mutation.Use(middleware.AdminAuth(adminToken))
		{
			mutation.POST("", h.Rule.Create)
			mutation.PUT("/:id", h.Rule.Update)
			mutation.PATCH("/:id/status", h.Rule.Toggle)
			mutation.DELETE("/:id", h.Rule.Delete)
			mutation.POST("/:id/versions/:version/restore", h.Version.Restore)
		}

		// 规则评估
		optimize := v1.Group("/optimize")
		{
			optimize.POST("/rule", h.Optimize.ApplyRule)
			optimize.POST("/apply", h.Optimize.Apply)
			optimize.POST("/batch", h.Optimize.BatchApply)
		}
	}
}
