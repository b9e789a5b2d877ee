package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"GuardWatch/pkg/token"
)

func newEngine() *route.Engine {
	return route.NewEngine(config.NewOptions(nil))
}

func ok(ctx context.Context, c *app.RequestContext) {
	id, _ := GetAdminID(ctx, c)
	c.JSON(http.StatusOK, map[string]int64{"admin_id": id})
}

func TestAuthMiddleware(t *testing.T) {
	require.NoError(t, token.InitWithSecret([]byte("test-secret"), time.Hour))
	require.NoError(t, Init())

	engine := newEngine()
	engine.GET("/v1/ping", AuthMiddleware(), ok)

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/ping", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "UNAUTHORIZED")

	tok, _, err := token.GenerateAccessToken(42)
	require.NoError(t, err)

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/ping", nil,
		ut.Header{Key: "Authorization", Value: "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Result().StatusCode())
	assert.JSONEq(t, `{"admin_id":42}`, string(w.Result().Body()))
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine := newEngine()
	engine.GET("/limited", RateLimitMiddleware(client, RateLimitConfig{
		Window:        time.Minute,
		MaxRequests:   2,
		KeyPrefix:     "rate:test",
		ByIP:          true,
		BlockDuration: time.Minute,
	}), ok)

	for i := 0; i < 2; i++ {
		w := ut.PerformRequest(engine, http.MethodGet, "/limited", nil)
		require.Equal(t, http.StatusOK, w.Result().StatusCode())
	}

	w := ut.PerformRequest(engine, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "TOO_MANY_REQUESTS")

	// 阻塞期内直接拒绝
	w = ut.PerformRequest(engine, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())
}

func TestRateLimitMiddleware_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	engine := newEngine()
	engine.GET("/limited", RateLimitMiddleware(client, OperatorRateLimitConfig), ok)

	w := ut.PerformRequest(engine, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestCORSMiddleware(t *testing.T) {
	engine := newEngine()
	engine.Use(CORSMiddleware([]string{"https://ops.example.com"}))
	engine.GET("/x", ok)

	w := ut.PerformRequest(engine, http.MethodGet, "/x", nil,
		ut.Header{Key: "Origin", Value: "https://ops.example.com"})
	assert.Equal(t, "https://ops.example.com", w.Result().Header.Get("Access-Control-Allow-Origin"))

	w = ut.PerformRequest(engine, http.MethodGet, "/x", nil,
		ut.Header{Key: "Origin", Value: "https://evil.example.com"})
	assert.Empty(t, w.Result().Header.Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	engine := newEngine()
	engine.Use(RecoverMiddlewareWithConfig(RecoverConfig{StackTraceLevel: "none", IsProduction: true}))
	engine.GET("/panic", func(ctx context.Context, c *app.RequestContext) {
		panic("boom")
	})

	w := ut.PerformRequest(engine, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "INTERNAL_SERVER_ERROR")
	assert.NotContains(t, string(w.Result().Body()), "boom")
}

func TestOpenTelemetryMiddleware_UsesRouteTemplate(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)

	engine := newEngine()
	engine.Use(OpenTelemetryMiddleware())
	engine.POST("/v1/alerts/:alert_id/ack", func(ctx context.Context, c *app.RequestContext) {
		c.Set(IdentityKey, int64(77))
		c.JSON(http.StatusConflict, map[string]string{"code": "ALERT_ALREADY_ACKNOWLEDGED"})
	})

	w := ut.PerformRequest(engine, http.MethodPost, "/v1/alerts/12/ack", nil)
	require.Equal(t, http.StatusConflict, w.Result().StatusCode())

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /v1/alerts/:alert_id/ack", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "12", attrs["alert_id"].AsString())
	assert.Equal(t, int64(77), attrs["enduser.id"].AsInt64())
	assert.Equal(t, "/v1/alerts/12/ack", attrs["http.target"].AsString())
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "ok", statusClass(http.StatusOK))
	assert.Equal(t, "4xx", statusClass(http.StatusTooManyRequests))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
}
