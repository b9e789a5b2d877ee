package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// OTelMetrics 巡检、告警和推送相关指标
type OTelMetrics struct {
	ScanRunsTotal         metric.Int64Counter
	ScanRunDuration       metric.Float64Histogram
	ScanRunsSkippedTotal  metric.Int64Counter
	ScanShiftsEvaluated   metric.Int64Counter
	ScanShiftErrorsTotal  metric.Int64Counter
	AlertsCreatedTotal    metric.Int64Counter
	AlertsResolvedTotal   metric.Int64Counter
	FanoutPublishTotal    metric.Int64Counter
	GatewaySessionsActive metric.Int64UpDownCounter
	GatewayDeliveredTotal metric.Int64Counter
}

var (
	metrics   *OTelMetrics
	metricsMu sync.RWMutex
)

// InitMetrics 基于全局 MeterProvider 初始化指标，须在 otel 初始化之后调用
func InitMetrics() error {
	m, err := New(otel.Meter("guardwatch"))
	if err != nil {
		return err
	}
	metricsMu.Lock()
	metrics = m
	metricsMu.Unlock()
	return nil
}

// GetMetrics 获取全局指标实例，未初始化时返回 noop 实现
func GetMetrics() *OTelMetrics {
	metricsMu.RLock()
	m := metrics
	metricsMu.RUnlock()
	if m != nil {
		return m
	}

	m, _ = New(noop.NewMeterProvider().Meter("guardwatch"))
	return m
}

// New 用指定 meter 创建指标，测试中配合 ManualReader 使用
func New(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	if m.ScanRunsTotal, err = meter.Int64Counter(
		"scan_runs_total",
		metric.WithDescription("Total number of shift scan runs by final status"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}

	if m.ScanRunDuration, err = meter.Float64Histogram(
		"scan_run_duration_seconds",
		metric.WithDescription("Shift scan run duration in seconds, retries included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	); err != nil {
		return nil, err
	}

	if m.ScanRunsSkippedTotal, err = meter.Int64Counter(
		"scan_runs_skipped_total",
		metric.WithDescription("Ticks skipped because a run was already in flight"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}

	if m.ScanShiftsEvaluated, err = meter.Int64Counter(
		"scan_shifts_evaluated_total",
		metric.WithDescription("Total number of shifts evaluated"),
		metric.WithUnit("{shift}"),
	); err != nil {
		return nil, err
	}

	if m.ScanShiftErrorsTotal, err = meter.Int64Counter(
		"scan_shift_errors_total",
		metric.WithDescription("Per-shift evaluation errors by kind"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.AlertsCreatedTotal, err = meter.Int64Counter(
		"alerts_created_total",
		metric.WithDescription("Total number of alerts created"),
		metric.WithUnit("{alert}"),
	); err != nil {
		return nil, err
	}

	if m.AlertsResolvedTotal, err = meter.Int64Counter(
		"alerts_resolved_total",
		metric.WithDescription("Total number of alerts closed, by resolver"),
		metric.WithUnit("{alert}"),
	); err != nil {
		return nil, err
	}

	if m.FanoutPublishTotal, err = meter.Int64Counter(
		"fanout_publish_total",
		metric.WithDescription("Alert event publish attempts by driver and status"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, err
	}

	if m.GatewaySessionsActive, err = meter.Int64UpDownCounter(
		"gateway_sessions_active",
		metric.WithDescription("Number of open dashboard websocket sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if m.GatewayDeliveredTotal, err = meter.Int64Counter(
		"gateway_events_delivered_total",
		metric.WithDescription("Alert events written to dashboard sessions"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordScanRun status: success, failed, cancelled
func (m *OTelMetrics) RecordScanRun(ctx context.Context, status string, seconds float64) {
	m.ScanRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.ScanRunDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

func (m *OTelMetrics) RecordScanSkipped(ctx context.Context, reason string) {
	m.ScanRunsSkippedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *OTelMetrics) RecordShiftEvaluated(ctx context.Context) {
	m.ScanShiftsEvaluated.Add(ctx, 1)
}

// RecordShiftError kind: config, store
func (m *OTelMetrics) RecordShiftError(ctx context.Context, kind string) {
	m.ScanShiftErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *OTelMetrics) RecordAlertCreated(ctx context.Context, alertType string) {
	m.AlertsCreatedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", alertType)))
}

func (m *OTelMetrics) RecordAlertResolved(ctx context.Context, by string) {
	m.AlertsResolvedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("by", by)))
}

// RecordPublish status: success, failed, dropped
func (m *OTelMetrics) RecordPublish(ctx context.Context, driver, status string) {
	m.FanoutPublishTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("driver", driver),
		attribute.String("status", status),
	))
}

func (m *OTelMetrics) AddGatewaySession(ctx context.Context, delta int64) {
	m.GatewaySessionsActive.Add(ctx, delta)
}

func (m *OTelMetrics) RecordGatewayDelivered(ctx context.Context, n int64) {
	m.GatewayDeliveredTotal.Add(ctx, n)
}
