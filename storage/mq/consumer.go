package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"GuardWatch/config"
	pkgerrors "GuardWatch/pkg/errors"
	"GuardWatch/pkg/logger"
	mqotel "GuardWatch/pkg/mq"
)

// MessageHandler 处理一条投递，ctx 携带上游追踪信息
type MessageHandler func(ctx context.Context, routingKey string, body []byte) error

type SubscribeOptions struct {
	Exchange      string
	BindingKey    string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Subscribe 声明一个排他的临时队列绑定到 exchange 并阻塞消费，直到 ctx 结束或连接断开。
// 每个网关实例拿到全量事件，队列随连接删除。
func Subscribe(ctx context.Context, opts SubscribeOptions) error {
	if conn == nil || conn.IsClosed() {
		return pkgerrors.ErrRabbitMQConnectionNil
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, opts.BindingKey, opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, q.Name, opts.ConsumerTag,
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("exchange", opts.Exchange),
		zap.String("binding_key", opts.BindingKey),
		zap.String("consumer_tag", opts.ConsumerTag),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			handle(ctx, opts, q.Name, msg)
		}
	}
}

func handle(ctx context.Context, opts SubscribeOptions, queue string, msg amqp.Delivery) {
	started := time.Now()
	msgCtx, span := mqotel.StartConsume(ctx, config.Cfg.ServiceName, queue, msg)
	defer span.End()

	err := opts.Handler(msgCtx, msg.RoutingKey, msg.Body)
	mqotel.RecordConsume(msgCtx, span, queue, started, err)
	if err != nil {
		logger.Logger.Error("Failed to process message",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		// 推送消息不重投，坏消息直接丢弃
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}
