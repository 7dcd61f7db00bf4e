package app

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// AutoMigrate 自动执行数据库迁移
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Rule{}, &model.RuleVersion{}); err != nil {
		logger.Error("auto migration failed", zap.Error(err))
		return err
	}
	return nil
}
