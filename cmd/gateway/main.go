package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GuardWatch/config"
	"GuardWatch/internal/bootstrap"
	"GuardWatch/internal/gateway"
	"GuardWatch/pkg/logger"
	"GuardWatch/pkg/metrics"
	"GuardWatch/pkg/token"
	"GuardWatch/storage"
	"GuardWatch/storage/redis"
)

func main() {
	logger.Init("gateway")
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

	shutdownTelemetry := bootstrap.InitTelemetry(ctx, "gateway")
	defer shutdownTelemetry()

	if err := storage.Init(bootstrap.StorageOptions(false)); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() { _ = storage.Close() }()

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	}

	hub := gateway.NewHub(logger.Named("gateway_hub"), metrics.GetMetrics())
	defer hub.Close()

	srcLogger := logger.Named("gateway_source")
	switch strings.ToLower(config.Cfg.FanoutDriver) {
	case config.FanoutDriverRabbitMQ:
		src := gateway.RabbitMQSource{ConsumerTag: "gateway-" + uuid.NewString(), Logger: srcLogger}
		go gateway.Consume(ctx, src, hub.Deliver, srcLogger)
	case config.FanoutDriverRedis:
		src := gateway.RedisSource{Client: redis.Client(), Prefix: config.Cfg.RedisPrefix, Logger: srcLogger}
		go gateway.Consume(ctx, src, hub.Deliver, srcLogger)
	default:
		logger.Logger.Warn("Fanout disabled, dashboards will only receive the welcome message",
			zap.String("fanout_driver", config.Cfg.FanoutDriver))
	}

	wsServer := gateway.NewServer(hub, config.Cfg.GatewayAllowedOrigins, authenticate, logger.Named("gateway"))

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.GatewayPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           wsServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown gateway server", zap.Error(err))
		}
	}()

	logger.Logger.Info("Gateway listening",
		zap.String("addr", addr),
		zap.String("fanout_driver", config.Cfg.FanoutDriver),
	)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Logger.Fatal("Gateway server failed", zap.Error(err))
	}

	logger.Logger.Info("Gateway shutting down gracefully")
}

// authenticate 浏览器无法给 websocket 设置 header，token 也可以放在 query 中
func authenticate(r *http.Request) error {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if raw == "" {
		return errors.New("missing token")
	}
	_, err := token.ParseAdminID(raw)
	return err
}
