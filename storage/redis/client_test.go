package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"GuardWatch/config"
)

func TestKeyWithPrefix(t *testing.T) {
	assert.Equal(t, "gw:scan:lock", KeyWithPrefix("", "scan", "lock"))
	assert.Equal(t, "prod:alerts:site:9", KeyWithPrefix("prod", "alerts", "", "site", "9"))
}

func TestNewOptions(t *testing.T) {
	cfg := &config.Config{RedisAddr: "cache:6380", RedisPassword: "s3cret", RedisDB: 2}
	opts := newOptions(cfg)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "s3cret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Positive(t, opts.ReadTimeout)
}
