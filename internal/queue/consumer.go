package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"GuardWatch/internal/model"
	"GuardWatch/storage/mq"
)

// AlertEventHandler 处理一条告警事件
type AlertEventHandler func(ctx context.Context, ev model.AlertEvent) error

// StartAlertEventConsumer 订阅全部站点的告警事件，阻塞直到 ctx 结束或连接断开
func StartAlertEventConsumer(ctx context.Context, consumerTag string, logger *zap.Logger, handler AlertEventHandler) error {
	return mq.Subscribe(ctx, mq.SubscribeOptions{
		Exchange:      mq.AlertExchange,
		BindingKey:    AlertBindingKey,
		ConsumerTag:   consumerTag,
		PrefetchCount: 64,
		Handler: func(ctx context.Context, routingKey string, body []byte) error {
			ev, err := DecodeAlertEvent(routingKey, body)
			if err != nil {
				return err
			}
			logger.Debug("Received alert event",
				zap.String("message_id", ev.MessageID),
				zap.Int64("site_id", ev.SiteID),
			)
			return handler(ctx, ev)
		},
	})
}

// DecodeAlertEvent 解码事件，消息体缺少站点时以路由键为准
func DecodeAlertEvent(routingKey string, body []byte) (model.AlertEvent, error) {
	var ev model.AlertEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal alert event: %w", err)
	}
	if ev.SiteID == 0 && routingKey != "" {
		siteID, err := SiteIDFromRoutingKey(routingKey)
		if err != nil {
			return ev, err
		}
		ev.SiteID = siteID
	}
	return ev, nil
}
