package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		JWTSecret:          "secret",
		ScanInterval:       time.Minute,
		ScanRunTimeout:     45 * time.Second,
		ScanWorkerPoolSize: 4,
		FanoutDriver:       FanoutDriverRabbitMQ,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "redis driver", mutate: func(c *Config) { c.FanoutDriver = "REDIS" }},
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET"},
		{name: "zero interval", mutate: func(c *Config) { c.ScanInterval = 0 }, wantErr: "SCAN_INTERVAL"},
		{name: "zero pool", mutate: func(c *Config) { c.ScanWorkerPoolSize = 0 }, wantErr: "SCAN_WORKER_POOL_SIZE"},
		{name: "unknown driver", mutate: func(c *Config) { c.FanoutDriver = "kafka" }, wantErr: "FANOUT_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			err := c.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultsParsed(t *testing.T) {
	require.Equal(t, time.Minute, Cfg.ScanInterval)
	require.Equal(t, 8, Cfg.ScanWorkerPoolSize)
	require.Equal(t, "guardwatch", Cfg.ServiceName)
}
