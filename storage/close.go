package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GuardWatch/pkg/logger"
	"GuardWatch/storage/database"
	"GuardWatch/storage/mq"
	"GuardWatch/storage/redis"
)

// Close 关闭所有已初始化的连接，未初始化的自动跳过
// 顺序：MQ -> Redis -> Database，先停止对外推送，最后关闭数据库
func Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := []struct {
		name  string
		close func(context.Context) error
	}{
		{name: "rabbitmq", close: mq.Close},
		{name: "redis", close: redis.Close},
		{name: "database", close: database.Close},
	}

	var errs []error
	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage connection", zap.String("storage", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		logger.Logger.Debug("Storage connection closed", zap.String("storage", c.name))
	}

	logger.Logger.Info("Storage connections closed", zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
