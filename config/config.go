package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"guardwatch"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"guardwatch"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"gw"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置，运营人员 token 的 uid 即 admin id
	JWTSecret        string `env:"JWT_SECRET"`
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"60"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTELEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 巡检任务配置
	ScanInterval             time.Duration `env:"SCAN_INTERVAL" envDefault:"1m"`
	ScanWorkerPoolSize       int           `env:"SCAN_WORKER_POOL_SIZE" envDefault:"8"`
	ScanRunTimeout           time.Duration `env:"SCAN_RUN_TIMEOUT" envDefault:"45s"`
	ScanShiftTimeout         time.Duration `env:"SCAN_SHIFT_TIMEOUT" envDefault:"10s"`
	ScanRetryMaxTries        uint          `env:"SCAN_RETRY_MAX_TRIES" envDefault:"3"`
	ScanRetryInitialInterval time.Duration `env:"SCAN_RETRY_INITIAL_INTERVAL" envDefault:"1s"`
	ScanRetryMaxInterval     time.Duration `env:"SCAN_RETRY_MAX_INTERVAL" envDefault:"10s"`
	ScanLockTTL              time.Duration `env:"SCAN_LOCK_TTL" envDefault:"2m"`
	ScanStaleAfter           time.Duration `env:"SCAN_STALE_AFTER" envDefault:"3m"`

	// 告警推送配置
	FanoutDriver string `env:"FANOUT_DRIVER" envDefault:"rabbitmq"` // rabbitmq, redis, none

	// 大屏网关配置
	GatewayPort           string   `env:"GATEWAY_PORT" envDefault:"8890"`
	GatewayAllowedOrigins []string `env:"GATEWAY_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

const (
	FanoutDriverRabbitMQ = "rabbitmq"
	FanoutDriverRedis    = "redis"
	FanoutDriverNone     = "none"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
}

// Validate 由各个进程在启动时调用，测试环境不需要完整配置
func Validate() error {
	return Cfg.validate()
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	if c.ScanInterval <= 0 {
		return errors.New("SCAN_INTERVAL must be positive")
	}

	if c.ScanWorkerPoolSize <= 0 {
		return errors.New("SCAN_WORKER_POOL_SIZE must be positive")
	}

	if c.ScanRunTimeout <= 0 || c.ScanRunTimeout > c.ScanInterval {
		log.Printf("WARN: SCAN_RUN_TIMEOUT (%s) should be positive and not exceed SCAN_INTERVAL (%s)", c.ScanRunTimeout, c.ScanInterval)
	}

	switch strings.ToLower(c.FanoutDriver) {
	case FanoutDriverRabbitMQ, FanoutDriverRedis, FanoutDriverNone:
	default:
		return errors.New("FANOUT_DRIVER must be one of rabbitmq, redis, none")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
