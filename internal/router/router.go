package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	goredis "github.com/redis/go-redis/v9"

	"GuardWatch/config"
	"GuardWatch/internal/handler"
	"GuardWatch/internal/middleware"
)

// Register 注册运营接口；redisClient 为 nil 时不启用限流
func Register(h *server.Hertz, redisClient *goredis.Client) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware(config.Cfg.GatewayAllowedOrigins))
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Healthz)

	v1 := h.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	v1.Use(middleware.RateLimitMiddleware(redisClient, middleware.OperatorRateLimitConfig))
	{
		v1.GET("/alerts/:alert_id", handler.GetAlert)
		v1.POST("/alerts/:alert_id/ack", handler.AcknowledgeAlert)
		v1.GET("/sites/:site_id/alerts/open", handler.ListOpenAlerts)
		v1.GET("/scan/status", handler.GetScanStatus)
	}
}
