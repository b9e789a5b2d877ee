package mq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"GuardWatch/config"
	"GuardWatch/pkg/logger"
	"GuardWatch/storage/probe"
)

// AlertExchange 告警事件 topic exchange，路由键 site.<site_id>.alert
const AlertExchange = "alerts.topic"

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		connErr = probe.Wait(context.Background(), "rabbitmq", probe.Defaults, logger.Logger, func(context.Context) error {
			c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
		if connErr != nil {
			return
		}

		ch, err := conn.Channel()
		if err != nil {
			connErr = err
			return
		}
		defer ch.Close()

		connErr = ch.ExchangeDeclare(
			AlertExchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		)
	})

	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

func Close(ctx context.Context) error {
	closePublisherChannel()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
