package fanout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"GuardWatch/pkg/metrics"
)

const defaultPublishTimeout = 3 * time.Second

// Guarded 给推送加上超时和熔断，并统一记录结果；不重试
type Guarded struct {
	next    Publisher
	driver  string
	breaker *CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.OTelMetrics
}

func NewGuarded(next Publisher, driver string, breaker *CircuitBreaker, timeout time.Duration, logger *zap.Logger, m *metrics.OTelMetrics) *Guarded {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Guarded{
		next:    next,
		driver:  driver,
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

func (g *Guarded) Publish(ctx context.Context, siteID int64, ev Event) error {
	err := g.breaker.Call(func() error {
		pubCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.next.Publish(pubCtx, siteID, ev)
	})

	switch {
	case err == nil:
		g.metrics.RecordPublish(ctx, g.driver, "success")
	case errors.Is(err, ErrBreakerOpen):
		g.metrics.RecordPublish(ctx, g.driver, "dropped")
	default:
		g.metrics.RecordPublish(ctx, g.driver, "failed")
		g.logger.Warn("Alert event publish failed",
			zap.String("driver", g.driver),
			zap.Int64("site_id", siteID),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
	}
	return err
}
