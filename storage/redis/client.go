package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GuardWatch/config"
	"GuardWatch/pkg/logger"
	redisotel "GuardWatch/pkg/redis"
	"GuardWatch/storage/probe"
)

var (
	client  *redis.Client
	once    sync.Once
	initErr error
)

// newOptions 运行锁和扫描状态都是短命令，读写超时按秒级设置
func newOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MinIdleConns: 2,
		MaxRetries:   2,
	}
}

func Init() error {
	once.Do(func() {
		c := redis.NewClient(newOptions(&config.Cfg))
		if config.Cfg.OTELEnabled {
			redisotel.InstrumentRedisClient(c, config.Cfg.ServiceName, config.Cfg.RedisDB)
		}

		initErr = probe.Wait(context.Background(), "redis", probe.Defaults, logger.Logger, func(ctx context.Context) error {
			return c.Ping(ctx).Err()
		})
		if initErr != nil {
			_ = c.Close()
			logger.Logger.Error("Failed to initialize redis", zap.String("addr", config.Cfg.RedisAddr), zap.Error(initErr))
			return
		}

		client = c
		logger.Logger.Info("Redis ready", zap.String("addr", config.Cfg.RedisAddr), zap.Int("db", config.Cfg.RedisDB))
	})

	return initErr
}

// Client 返回全局客户端，未初始化时 panic
func Client() *redis.Client {
	if client == nil {
		panic("redis client not initialized, call storage.Init first")
	}
	return client
}

func Close(_ context.Context) error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// Key 以配置的前缀拼接键名，空段跳过
func Key(parts ...string) string {
	return KeyWithPrefix(config.Cfg.RedisPrefix, parts...)
}

// KeyWithPrefix 前缀为空时使用 gw
func KeyWithPrefix(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = "gw"
	}

	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, prefix)
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, ":")
}
