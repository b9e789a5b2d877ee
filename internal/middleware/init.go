package middleware

import (
	"go.uber.org/zap"

	"GuardWatch/pkg/logger"
)

// Init 初始化运营接口中间件，需在 token.Init 和 otel 初始化之后调用
func Init() error {
	if err := initAuthMiddleware(); err != nil {
		logger.Logger.Error("Failed to initialize operator auth", zap.Error(err))
		return err
	}

	if httpMetrics() == nil {
		logger.Logger.Warn("Operator API metrics unavailable, requests are traced only")
	}

	logger.Logger.Info("Operator API middlewares ready",
		zap.Int("rate_limit_per_window", OperatorRateLimitConfig.MaxRequests),
		zap.Duration("rate_limit_window", OperatorRateLimitConfig.Window),
	)
	return nil
}
