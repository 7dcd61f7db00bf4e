package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db        *gorm.DB
	service   string
	startedAt time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(db *gorm.DB, service string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		service:   service,
		startedAt: time.Now(),
	}
}

// Health 健康检查
// 数据库不可达时返回 503
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	httpStatus := http.StatusOK

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	c.JSON(httpStatus, gin.H{
		"service":   h.service,
		"status":    status,
		"uptime_ms": time.Since(h.startedAt).Milliseconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}
