package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "guardwatch.http"

// httpInstruments 运营接口的请求指标
type httpInstruments struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	errors   metric.Int64Counter
}

var (
	instrumentsOnce sync.Once
	instruments     *httpInstruments
)

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	requests, err := meter.Int64Counter(
		"operator_api.requests",
		metric.WithDescription("Operator API requests by route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"operator_api.duration",
		metric.WithDescription("Operator API request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter(
		"operator_api.active_requests",
		metric.WithDescription("In-flight operator API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// 按状态类别计数
	errs, err := meter.Int64Counter(
		"operator_api.errors",
		metric.WithDescription("Operator API error responses by status class"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{requests: requests, duration: duration, active: active, errors: errs}, nil
}

// httpMetrics 首次调用时用全局 meter 创建指标，需在 otel 初始化之后调用才能导出
func httpMetrics() *httpInstruments {
	instrumentsOnce.Do(func() {
		ins, err := newHTTPInstruments(otel.Meter(instrumentationName))
		if err != nil {
			otel.Handle(err)
			return
		}
		instruments = ins
	})
	return instruments
}

func sanitize(val string) string {
	return strings.ToValidUTF8(val, "")
}

// routeOf 优先使用路由模板（/v1/alerts/:alert_id/ack），避免告警 id 打爆指标基数
func routeOf(c *app.RequestContext) string {
	if full := c.FullPath(); full != "" {
		return full
	}
	return "unmatched"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "ok"
	}
}

// OpenTelemetryMiddleware 为每个运营请求创建 span 并记录指标，未启用 OTEL 时落到全局 noop 实现
func OpenTelemetryMiddleware() app.HandlerFunc {
	ins := httpMetrics()
	tracer := otel.Tracer(instrumentationName)

	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		method := sanitize(string(c.Method()))
		route := routeOf(c)

		spanCtx, span := tracer.Start(ctx, method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(method),
				semconv.HTTPRoute(route),
				attribute.String("http.target", sanitize(string(c.Path()))),
				attribute.String("http.user_agent", sanitize(string(c.UserAgent()))),
			))
		defer span.End()

		if requestID := c.GetHeader("X-Request-Id"); len(requestID) > 0 {
			span.SetAttributes(attribute.String("http.request_id", sanitize(string(requestID))))
		}
		if siteID := c.Param("site_id"); siteID != "" {
			span.SetAttributes(attribute.String("site_id", sanitize(siteID)))
		}
		if alertID := c.Param("alert_id"); alertID != "" {
			span.SetAttributes(attribute.String("alert_id", sanitize(alertID)))
		}

		if ins != nil {
			ins.active.Add(ctx, 1)
			defer ins.active.Add(ctx, -1)
		}

		c.Next(spanCtx)

		// 认证中间件挂在分组上，c.Next 返回后才能取到 admin id
		if adminID, ok := GetAdminID(spanCtx, c); ok {
			span.SetAttributes(attribute.Int64("enduser.id", adminID))
		}

		status := c.Response.StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		switch {
		case status >= 500:
			span.SetStatus(codes.Error, "server error")
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr)
			}
		case status >= 400:
			span.SetStatus(codes.Error, "client error")
		default:
			span.SetStatus(codes.Ok, "")
		}

		if ins == nil {
			return
		}
		attrs := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(status),
		)
		ins.requests.Add(ctx, 1, attrs)
		ins.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		if class := statusClass(status); class != "ok" {
			ins.errors.Add(ctx, 1, metric.WithAttributes(
				semconv.HTTPRoute(route),
				attribute.String("class", class),
			))
		}
	}
}

// NewServerTracerConfig 返回 hertz server 的追踪选项和对应中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
