package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"GuardWatch/storage/redis"
)

// SiteChannel <prefix>:alerts:site:<site_id>
func SiteChannel(prefix string, siteID int64) string {
	return redis.KeyWithPrefix(prefix, "alerts", "site", strconv.FormatInt(siteID, 10))
}

// SiteChannelPattern 订阅全部站点
func SiteChannelPattern(prefix string) string {
	return redis.KeyWithPrefix(prefix, "alerts", "site", "*")
}

// SiteIDFromChannel 从频道名解析站点
func SiteIDFromChannel(prefix, channel string) (int64, error) {
	head := redis.KeyWithPrefix(prefix, "alerts", "site") + ":"
	if !strings.HasPrefix(channel, head) {
		return 0, fmt.Errorf("unexpected channel %q", channel)
	}
	return strconv.ParseInt(strings.TrimPrefix(channel, head), 10, 64)
}

// RedisPublisher 通过 redis pub/sub 发布，适合没有 RabbitMQ 的小规模部署
type RedisPublisher struct {
	client *goredis.Client
	prefix string
	clock  clockwork.Clock
}

func NewRedisPublisher(client *goredis.Client, prefix string, clock clockwork.Clock) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, clock: clock}
}

func (p *RedisPublisher) Publish(ctx context.Context, siteID int64, ev Event) error {
	body, err := json.Marshal(Envelope(siteID, ev, p.clock.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}
	return p.client.Publish(ctx, SiteChannel(p.prefix, siteID), body).Err()
}
