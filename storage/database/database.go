package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"GuardWatch/config"
	dbotel "GuardWatch/pkg/database"
	"GuardWatch/pkg/logger"
	"GuardWatch/storage/probe"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

// Pool 连接池参数；巡检进程并发上限就是 SCAN_WORKER_POOL_SIZE，运营接口另算
type Pool struct {
	MaxIdle     int
	MaxOpen     int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

func poolFromConfig() Pool {
	return Pool{
		MaxIdle:     config.Cfg.PostgreSQLMaxIdle,
		MaxOpen:     config.Cfg.PostgreSQLMaxOpen,
		MaxIdleTime: 10 * time.Minute,
		MaxLifetime: 2 * time.Hour,
	}
}

// Open 打开 Postgres 连接并等待可用，不做迁移
func Open(ctx context.Context, dsn string, pool Pool) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)

	if err := probe.Wait(ctx, "postgres", probe.Defaults, logger.Logger, sqlDB.PingContext); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return gormDB, nil
}

// Init 打开全局连接、挂载 otel 插件并迁移 shifts/alerts 表
func Init() error {
	dbOnce.Do(func() {
		gormDB, err := Open(context.Background(), config.Cfg.GetDSN(), poolFromConfig())
		if err != nil {
			dbErr = err
			logger.Logger.Error("Failed to initialize database",
				zap.String("host", config.Cfg.PostgreSQLHost),
				zap.String("database", config.Cfg.PostgreSQLDatabase),
				zap.Error(err),
			)
			return
		}

		if config.Cfg.OTELEnabled {
			if err := dbotel.WithOTELPlugin(gormDB, config.Cfg.ServiceName); err != nil {
				logger.Logger.Warn("Failed to register gorm otel plugin", zap.Error(err))
			}
		}

		if err := MigrateDB(gormDB); err != nil {
			dbErr = err
			return
		}

		db = gormDB
		logger.Logger.Info("Database ready", zap.String("database", config.Cfg.PostgreSQLDatabase))
	})

	return dbErr
}

func DB() *gorm.DB {
	return db
}

// Close 在 ctx 截止前关闭连接池
func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- sqlDB.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
