// Package bootstrap 各进程共用的启动装配
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"GuardWatch/config"
	"GuardWatch/internal/fanout"
	"GuardWatch/pkg/logger"
	"GuardWatch/pkg/metrics"
	pkgotel "GuardWatch/pkg/otel"
	"GuardWatch/storage"
	"GuardWatch/storage/mq"
	"GuardWatch/storage/redis"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

// InitTelemetry 初始化链路追踪与指标，返回关闭函数
func InitTelemetry(ctx context.Context, component string) func() {
	shutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
		ServiceName:    config.Cfg.ServiceName + "-" + component,
		ServiceVersion: Version,
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTELEndpoint,
		SampleRatio:    config.Cfg.OTELSampleRatio,
		Enabled:        config.Cfg.OTELEnabled,
	})
	if err != nil {
		logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without it", zap.Error(err))
		return func() {}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}
}

// StorageOptions 根据推送驱动决定需要哪些连接
func StorageOptions(database bool) storage.Options {
	driver := strings.ToLower(config.Cfg.FanoutDriver)
	return storage.Options{
		Database: database,
		Redis:    true,
		RabbitMQ: driver == config.FanoutDriverRabbitMQ,
	}
}

// NewFanout 按 FANOUT_DRIVER 构建推送器，依赖的连接需已初始化
func NewFanout(clock clockwork.Clock) (fanout.Publisher, error) {
	deps := fanout.Deps{
		Redis:       redis.Client(),
		RedisPrefix: config.Cfg.RedisPrefix,
		Clock:       clock,
		Logger:      logger.Named("fanout"),
		Metrics:     metrics.GetMetrics(),
	}
	if strings.EqualFold(config.Cfg.FanoutDriver, config.FanoutDriverRabbitMQ) {
		deps.RabbitMQ = mq.NewPublisher()
	}
	return fanout.New(config.Cfg.FanoutDriver, deps)
}
