package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardWatch/internal/fanout"
	"GuardWatch/internal/model"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func startServer(t *testing.T, auth Authenticator) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewServer(hub, []string{"https://ops.example.com"}, auth, nil).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, header)
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestGateway_DeliversToSiteSessionsOnly(t *testing.T) {
	hub, srv := startServer(t, nil)

	site9, _, err := dial(t, srv, "/ws/sites/9", nil)
	require.NoError(t, err)
	defer site9.Close()
	site4, _, err := dial(t, srv, "/ws/sites/4", nil)
	require.NoError(t, err)
	defer site4.Close()

	assert.Equal(t, "connected", readJSON(t, site9)["type"])
	assert.Equal(t, "connected", readJSON(t, site4)["type"])

	require.Eventually(t, func() bool { return hub.Sessions(9) == 1 && hub.Sessions(4) == 1 }, time.Second, 10*time.Millisecond)

	delivered := hub.Broadcast(context.Background(), model.AlertEvent{
		Type:       model.EventAlertCreated,
		SiteID:     9,
		MessageID:  "m-1",
		OccurredAt: now,
		Alert:      &model.Alert{ID: 55, ShiftID: 1, SiteID: 9, Type: model.AlertTypeMissedCheckin},
	})
	assert.Equal(t, 1, delivered)

	msg := readJSON(t, site9)
	assert.Equal(t, "alert_created", msg["type"])
	assert.Equal(t, "m-1", msg["message_id"])
	alert, ok := msg["alert"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "55", alert["id"])

	// 站点 4 只应收到 ping，不应收到业务消息
	require.NoError(t, site4.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = site4.ReadMessage()
	require.Error(t, err)
}

func TestGateway_SessionRemovedOnDisconnect(t *testing.T) {
	hub, srv := startServer(t, nil)

	conn, _, err := dial(t, srv, "/ws/sites/9", nil)
	require.NoError(t, err)
	readJSON(t, conn)
	require.Eventually(t, func() bool { return hub.Sessions(9) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Sessions(9) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_RejectsBadRequests(t *testing.T) {
	_, srv := startServer(t, func(r *http.Request) error {
		if r.URL.Query().Get("token") != "ok" {
			return errors.New("missing token")
		}
		return nil
	})

	_, resp, err := dial(t, srv, "/ws/sites/abc?token=ok", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = dial(t, srv, "/ws/sites/9", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, srv, "/ws/sites/9?token=ok", http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, "/ws/sites/9?token=ok", http.Header{"Origin": []string{"https://ops.example.com"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestRedisSource(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan model.AlertEvent, 1)
	src := RedisSource{Client: client, Prefix: "gwtest"}
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(_ context.Context, ev model.AlertEvent) { received <- ev })
	}()

	pub := fanout.NewRedisPublisher(client, "gwtest", clockwork.NewFakeClockAt(now))
	require.Eventually(t, func() bool { return mr.PubSubNumPat() > 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, pub.Publish(ctx, 9, fanout.Event{
		Type:  model.EventAlertUpdated,
		Alert: &model.Alert{ID: 7, SiteID: 9},
	}))

	select {
	case ev := <-received:
		assert.Equal(t, int64(9), ev.SiteID)
		assert.Equal(t, model.EventAlertUpdated, ev.Type)
		require.NotNil(t, ev.Alert)
		assert.Equal(t, int64(7), ev.Alert.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("alert event not received")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDecodeRedisEvent_BadChannel(t *testing.T) {
	body, err := json.Marshal(model.AlertEvent{Type: model.EventAlertCreated})
	require.NoError(t, err)

	_, err = decodeRedisEvent("gw", &goredis.Message{Channel: "other:9", Payload: string(body)})
	require.Error(t, err)
}
