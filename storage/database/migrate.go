package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"GuardWatch/internal/model"
	"GuardWatch/pkg/logger"
)

// 告警去重索引，AutoMigrate 无法表达部分索引，单独执行
var alertIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_alerts_open_shift_type
		ON alerts (shift_id, type) WHERE acknowledged_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_alerts_shift_type_due
		ON alerts (shift_id, type, due_at)`,
}

// MigrateDB 对指定连接执行迁移，集成测试复用
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.AutoMigrate(&model.Shift{}, &model.Alert{}); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	for _, stmt := range alertIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Logger.Error("Failed to create alert index", zap.Error(err))
			return err
		}
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
