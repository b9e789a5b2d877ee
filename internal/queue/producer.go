package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GuardWatch/internal/model"
	mqotel "GuardWatch/pkg/mq"
	"GuardWatch/storage/mq"
)

// Producer 把告警事件发布到 alerts.topic
type Producer struct {
	pub      mqotel.Publisher
	exchange string
	logger   *zap.Logger
}

func NewProducer(pub mqotel.Publisher, exchange string, logger *zap.Logger) *Producer {
	if exchange == "" {
		exchange = mq.AlertExchange
	}
	return &Producer{pub: pub, exchange: exchange, logger: logger}
}

// PublishAlertEvent 发布告警事件，MessageID 为空时补一个
func (p *Producer) PublishAlertEvent(ctx context.Context, ev model.AlertEvent) error {
	if ev.MessageID == "" {
		ev.MessageID = uuid.NewString()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	key := SiteRoutingKey(ev.SiteID)
	if err := p.pub.PublishWithContext(ctx, p.exchange, key, false, false, mq.JSONMessage(ev.MessageID, body)); err != nil {
		p.logger.Error("Failed to publish alert event",
			zap.String("message_id", ev.MessageID),
			zap.String("routing_key", key),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("Published alert event",
		zap.String("message_id", ev.MessageID),
		zap.String("event_type", string(ev.Type)),
		zap.String("routing_key", key),
	)
	return nil
}
