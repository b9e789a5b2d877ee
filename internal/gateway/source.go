package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GuardWatch/internal/fanout"
	"GuardWatch/internal/model"
	"GuardWatch/internal/queue"
)

// Sink 接收一条待推送的事件
type Sink func(ctx context.Context, ev model.AlertEvent)

// Source 告警事件来源，与调度端的 FANOUT_DRIVER 对应
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// RabbitMQSource 绑定 alerts.topic 上所有站点的路由键
type RabbitMQSource struct {
	ConsumerTag string
	Logger      *zap.Logger
}

func (s RabbitMQSource) Run(ctx context.Context, sink Sink) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return queue.StartAlertEventConsumer(ctx, s.ConsumerTag, logger, func(ctx context.Context, ev model.AlertEvent) error {
		sink(ctx, ev)
		return nil
	})
}

// RedisSource 按模式订阅所有站点频道
type RedisSource struct {
	Client *goredis.Client
	Prefix string
	Logger *zap.Logger
}

func (s RedisSource) Run(ctx context.Context, sink Sink) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sub := s.Client.PSubscribe(ctx, fanout.SiteChannelPattern(s.Prefix))
	defer sub.Close()

	// 等待订阅确认，连接失败时尽早返回
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe alert channels: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			ev, err := decodeRedisEvent(s.Prefix, msg)
			if err != nil {
				logger.Warn("Dropping malformed alert event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			sink(ctx, ev)
		}
	}
}

func decodeRedisEvent(prefix string, msg *goredis.Message) (model.AlertEvent, error) {
	var ev model.AlertEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal alert event: %w", err)
	}
	siteID, err := fanout.SiteIDFromChannel(prefix, msg.Channel)
	if err != nil {
		return ev, err
	}
	ev.SiteID = siteID
	return ev, nil
}

// Consume 持续运行 Source，断线后按指数退避重连，直到 ctx 结束
func Consume(ctx context.Context, src Source, sink Sink, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second

	for {
		started := time.Now()
		err := src.Run(ctx, sink)
		if ctx.Err() != nil {
			return
		}

		// 稳定运行过一段时间再断开，从最小间隔重新开始
		if time.Since(started) > time.Minute {
			b.Reset()
		}
		wait := b.NextBackOff()
		logger.Warn("Alert event source stopped, reconnecting",
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
