package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"GuardWatch/config"
	"GuardWatch/internal/bootstrap"
	"GuardWatch/internal/cache"
	"GuardWatch/internal/repository"
	"GuardWatch/internal/schedule"
	"GuardWatch/pkg/logger"
	"GuardWatch/pkg/metrics"
	"GuardWatch/pkg/snowflake"
	"GuardWatch/storage"
	"GuardWatch/storage/database"
	"GuardWatch/storage/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single scan and exit")
	flag.Parse()

	// run 返回后再退出，保证 defer 执行
	os.Exit(run(*once))
}

// scanRunner 便于测试替换
type scanRunner interface {
	RunOnce(ctx context.Context) (schedule.ScanResult, error)
	Start(ctx context.Context)
}

// serve 执行一次或常驻巡检，返回进程退出码
func serve(ctx context.Context, runner scanRunner, once bool) int {
	if once {
		if _, err := runner.RunOnce(ctx); err != nil {
			logger.Logger.Error("Single scan failed", zap.Error(err))
			return 1
		}
		return 0
	}

	runner.Start(ctx)
	logger.Logger.Info("Scheduler service shutting down gracefully")
	return 0
}

func run(once bool) int {
	logger.Init("scheduler")
	defer logger.Sync()

	if err := config.Validate(); err != nil {
		logger.Logger.Error("Invalid configuration", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownTelemetry := bootstrap.InitTelemetry(ctx, "scheduler")
	defer shutdownTelemetry()

	if err := storage.Init(bootstrap.StorageOptions(true)); err != nil {
		logger.Logger.Error("Failed to initialize storage for scheduler", zap.Error(err))
		return 1
	}
	defer func() { _ = storage.Close() }()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Error("Failed to initialize snowflake for scheduler", zap.Error(err))
		return 1
	}

	clock := clockwork.NewRealClock()

	publisher, err := bootstrap.NewFanout(clock)
	if err != nil {
		logger.Logger.Error("Failed to initialize alert fanout", zap.Error(err))
		return 1
	}

	repo := repository.NewRepository(database.DB(), snowflake.NextID, clock)

	scanner := schedule.NewShiftScanner(
		repo.Shift,
		repo.Alert,
		publisher,
		schedule.ScannerConfig{
			PoolSize:     config.Cfg.ScanWorkerPoolSize,
			ShiftTimeout: config.Cfg.ScanShiftTimeout,
		},
		logger.Named("shift_scanner"),
		metrics.GetMetrics(),
	)

	runner := schedule.NewRunner(scanner,
		schedule.RunnerConfig{
			Interval:             config.Cfg.ScanInterval,
			RunTimeout:           config.Cfg.ScanRunTimeout,
			RetryMaxTries:        config.Cfg.ScanRetryMaxTries,
			RetryInitialInterval: config.Cfg.ScanRetryInitialInterval,
			RetryMaxInterval:     config.Cfg.ScanRetryMaxInterval,
			LockRefreshInterval:  config.Cfg.ScanLockTTL / 3,
		},
		logger.Named("scan_runner"),
		schedule.WithClock(clock),
		schedule.WithMetrics(metrics.GetMetrics()),
		schedule.WithRunLocker(cache.NewRunLock(redis.Client(), redis.Key("scan", "lock"), config.Cfg.ScanLockTTL)),
		schedule.WithStatusRecorder(cache.NewScanStatusStore(redis.Client(), redis.Key("scan", "status"), config.Cfg.ScanStaleAfter)),
	)

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.String("fanout_driver", config.Cfg.FanoutDriver),
		zap.Bool("once", once),
	)

	return serve(ctx, runner, once)
}
