// Package probe 启动时等待依赖就绪，容器编排下数据库/缓存常晚于进程启动
package probe

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Defaults 启动探测的退避参数
var Defaults = Policy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsed:      30 * time.Second,
	AttemptTimeout:  5 * time.Second,
}

// Policy 探测退避参数
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	AttemptTimeout  time.Duration
}

// Wait 反复调用 ping 直到成功、超过 MaxElapsed 或 ctx 结束
func Wait(ctx context.Context, name string, policy Policy, logger *zap.Logger, ping func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()
		return struct{}{}, ping(attemptCtx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(policy.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Dependency not ready, retrying",
				zap.String("dependency", name),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		}),
	)
	return err
}
