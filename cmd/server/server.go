package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"GuardWatch/config"
	"GuardWatch/internal/bootstrap"
	"GuardWatch/internal/cache"
	"GuardWatch/internal/middleware"
	"GuardWatch/internal/repository"
	"GuardWatch/internal/router"
	"GuardWatch/internal/service"
	"GuardWatch/pkg/logger"
	"GuardWatch/pkg/metrics"
	"GuardWatch/pkg/snowflake"
	"GuardWatch/pkg/token"
	"GuardWatch/storage"
	"GuardWatch/storage/database"
	"GuardWatch/storage/redis"
)

func main() {
	logger.Init("server")
	defer logger.Sync()

	if err := config.Validate(); err != nil {
		logger.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownTelemetry := bootstrap.InitTelemetry(ctx, "server")
	defer shutdownTelemetry()

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(bootstrap.StorageOptions(true)); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() { _ = storage.Close() }()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	clock := clockwork.NewRealClock()

	publisher, err := bootstrap.NewFanout(clock)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize alert fanout", zap.Error(err))
	}

	repo := repository.NewRepository(database.DB(), snowflake.NextID, clock)
	service.Init(
		service.NewAlertService(repo.Alert, publisher, logger.Named("alert_service"), metrics.GetMetrics()),
		service.NewScanService(
			cache.NewScanStatusStore(redis.Client(), redis.Key("scan", "status"), config.Cfg.ScanStaleAfter),
			clock,
			logger.Named("scan_service"),
		),
	)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	serverOpts := []hzconfig.Option{server.WithHostPorts(addr)}
	var tracingMiddleware app.HandlerFunc
	if config.Cfg.OTELEnabled {
		tracerOpt, mw := middleware.NewServerTracerConfig()
		serverOpts = append(serverOpts, tracerOpt)
		tracingMiddleware = mw
	}

	h := server.Default(serverOpts...)
	if tracingMiddleware != nil {
		h.Use(tracingMiddleware)
	}

	router.Register(h, redis.Client())

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
