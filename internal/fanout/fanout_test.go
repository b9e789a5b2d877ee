package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"GuardWatch/internal/model"
	"GuardWatch/pkg/metrics"
)

var t0 = time.Date(2026, 3, 1, 8, 41, 0, 0, time.UTC)

type flakyPublisher struct {
	calls int
	err   error
}

func (f *flakyPublisher) Publish(context.Context, int64, Event) error {
	f.calls++
	return f.err
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	cb := NewCircuitBreaker("test", 2, 30*time.Second, clock, zap.NewNop())
	boom := errors.New("boom")

	require.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	require.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	require.ErrorIs(t, cb.Call(func() error { called = true; return nil }), ErrBreakerOpen)
	assert.False(t, called)

	clock.Advance(31 * time.Second)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	cb := NewCircuitBreaker("test", 1, 10*time.Second, clock, zap.NewNop())
	boom := errors.New("boom")

	_ = cb.Call(func() error { return boom })
	clock.Advance(11 * time.Second)
	require.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestGuarded_DropsWhileOpen(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	inner := &flakyPublisher{err: errors.New("unreachable")}
	g := NewGuarded(inner, "redis", NewCircuitBreaker("fanout_redis", 2, time.Minute, clock, zap.NewNop()),
		time.Second, zap.NewNop(), metrics.GetMetrics())

	for i := 0; i < 5; i++ {
		assert.Error(t, g.Publish(context.Background(), 1, Event{Type: model.EventAlertCreated}))
	}
	assert.Equal(t, 2, inner.calls)
}

func TestRedisPublisher_PublishesToSiteChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, SiteChannel("gw", 9))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, "gw", clockwork.NewFakeClockAt(t0))
	alert := &model.Alert{ID: 55, ShiftID: 3, SiteID: 9, Type: model.AlertTypeMissedCheckin}
	require.NoError(t, pub.Publish(ctx, 9, Event{Type: model.EventAlertCreated, Alert: alert}))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "gw:alerts:site:9", msg.Channel)
		var ev model.AlertEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, model.EventAlertCreated, ev.Type)
		assert.Equal(t, int64(9), ev.SiteID)
		assert.Equal(t, int64(55), ev.Alert.ID)
		assert.True(t, t0.Equal(ev.OccurredAt))
		assert.NotEmpty(t, ev.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSiteChannelNaming(t *testing.T) {
	assert.Equal(t, "gw:alerts:site:12", SiteChannel("gw", 12))
	assert.Equal(t, "gw:alerts:site:*", SiteChannelPattern("gw"))

	id, err := SiteIDFromChannel("gw", "gw:alerts:site:12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = SiteIDFromChannel("gw", "other:alerts:site:12")
	assert.Error(t, err)
}

type amqpRecorder struct {
	key string
}

func (a *amqpRecorder) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	a.key = key
	return nil
}

func TestNew_Drivers(t *testing.T) {
	p, err := New("none", Deps{})
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)

	_, err = New("rabbitmq", Deps{})
	assert.Error(t, err)

	_, err = New("redis", Deps{})
	assert.Error(t, err)

	_, err = New("kafka", Deps{})
	assert.Error(t, err)

	rec := &amqpRecorder{}
	p, err = New("RabbitMQ", Deps{RabbitMQ: rec})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), 4, Event{Type: model.EventAlertUpdated}))
	assert.Equal(t, "site.4.alert", rec.key)
}
