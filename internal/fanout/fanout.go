// Package fanout 把告警事件推送给按站点订阅的大屏。只负责发布，推送失败不影响告警落库。
package fanout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GuardWatch/config"
	"GuardWatch/internal/model"
	"GuardWatch/internal/queue"
	"GuardWatch/pkg/metrics"
	mqotel "GuardWatch/pkg/mq"
)

// Event 待发布的告警事件
type Event struct {
	Type  model.AlertEventType
	Alert *model.Alert
}

// Publisher 按站点发布告警事件
type Publisher interface {
	Publish(ctx context.Context, siteID int64, ev Event) error
}

// Envelope 转换为线上消息格式
func Envelope(siteID int64, ev Event, now time.Time) model.AlertEvent {
	return model.AlertEvent{
		MessageID:  uuid.NewString(),
		Type:       ev.Type,
		SiteID:     siteID,
		Alert:      ev.Alert,
		OccurredAt: now,
	}
}

// NopPublisher 不推送，FANOUT_DRIVER=none 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, int64, Event) error { return nil }

// RabbitMQPublisher 通过 alerts.topic 发布，路由键 site.<site_id>.alert
type RabbitMQPublisher struct {
	producer *queue.Producer
	clock    clockwork.Clock
}

func NewRabbitMQPublisher(producer *queue.Producer, clock clockwork.Clock) *RabbitMQPublisher {
	return &RabbitMQPublisher{producer: producer, clock: clock}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, siteID int64, ev Event) error {
	return p.producer.PublishAlertEvent(ctx, Envelope(siteID, ev, p.clock.Now()))
}

// Deps 构建推送器所需依赖
type Deps struct {
	Redis          *goredis.Client
	RabbitMQ       mqotel.Publisher
	RedisPrefix    string
	Clock          clockwork.Clock
	Logger         *zap.Logger
	Metrics        *metrics.OTelMetrics
	PublishTimeout time.Duration
}

// New 按驱动名构建推送器，并套上超时与熔断
func New(driver string, deps Deps) (Publisher, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.GetMetrics()
	}

	driver = strings.ToLower(driver)

	var inner Publisher
	switch driver {
	case config.FanoutDriverNone:
		return NopPublisher{}, nil
	case config.FanoutDriverRabbitMQ:
		if deps.RabbitMQ == nil {
			return nil, fmt.Errorf("fanout driver %q requires a rabbitmq publisher", driver)
		}
		inner = NewRabbitMQPublisher(queue.NewProducer(deps.RabbitMQ, "", deps.Logger), deps.Clock)
	case config.FanoutDriverRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("fanout driver %q requires a redis client", driver)
		}
		inner = NewRedisPublisher(deps.Redis, deps.RedisPrefix, deps.Clock)
	default:
		return nil, fmt.Errorf("unknown fanout driver %q", driver)
	}

	breaker := NewCircuitBreaker("fanout_"+driver, 5, 30*time.Second, deps.Clock, deps.Logger)
	return NewGuarded(inner, driver, breaker, deps.PublishTimeout, deps.Logger, deps.Metrics), nil
}
