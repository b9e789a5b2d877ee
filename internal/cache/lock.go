package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "GuardWatch/pkg/errors"
)

// 只有持有 token 的实例才能释放或续期，避免锁过期后误删他人的锁
var (
	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RunLock 基于 SET NX PX 的分布式锁，保证集群内同一时刻只有一次巡检
type RunLock struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

func NewRunLock(client *goredis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: key, ttl: ttl}
}

// TryAcquire 获取成功时返回 token，已被占用时 ok=false
func (l *RunLock) TryAcquire(ctx context.Context) (string, bool, error) {
	if l.client == nil {
		return "", false, pkgerrors.ErrRedisClientNil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release 释放锁，锁已过期或被他人持有时返回 false
func (l *RunLock) Release(ctx context.Context, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, err
	}
	return n == 1, nil
}

// Refresh 续期
func (l *RunLock) Refresh(ctx context.Context, token string) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, err
	}
	return n == 1, nil
}
