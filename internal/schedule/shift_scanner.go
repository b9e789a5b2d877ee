package schedule

// 班次巡检：每个 tick 扫描进行中的班次，计算打卡窗口，创建或自动关闭漏打卡告警，落库后再推送

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"GuardWatch/internal/checkin"
	"GuardWatch/internal/fanout"
	"GuardWatch/internal/model"
	"GuardWatch/internal/repository"
	pkgerrors "GuardWatch/pkg/errors"
	"GuardWatch/pkg/metrics"
)

// ScanResult 一次巡检的计数
type ScanResult struct {
	Listed        int
	Evaluated     int
	Skipped       int
	NotStarted    int
	Created       int
	Refreshed     int
	Resolved      int
	ConfigErrors  int
	StoreErrors   int
	PublishErrors int

	storeCalls int
}

// ShiftErrors 单个班次处理失败的总数
func (r ScanResult) ShiftErrors() int {
	return r.ConfigErrors + r.StoreErrors
}

// storeUnreachable 访问过告警存储的班次全部失败，按存储不可达处理
func (r ScanResult) storeUnreachable() bool {
	return r.StoreErrors > 0 && r.StoreErrors == r.storeCalls
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSkipped
	outcomeCreated
	outcomeRefreshed
	outcomeResolved
	outcomeConfigError
	outcomeStoreError
)

type shiftReport struct {
	outcome      outcome
	storeCall    bool
	publishError bool
	notStarted   bool
}

func (r *ScanResult) add(rep shiftReport) {
	if rep.notStarted {
		r.NotStarted++
		return
	}
	if rep.storeCall {
		r.storeCalls++
	}
	switch rep.outcome {
	case outcomeSkipped:
		r.Skipped++
		return
	case outcomeCreated:
		r.Created++
	case outcomeRefreshed:
		r.Refreshed++
	case outcomeResolved:
		r.Resolved++
	case outcomeConfigError:
		r.ConfigErrors++
	case outcomeStoreError:
		r.StoreErrors++
	}
	r.Evaluated++
	if rep.publishError {
		r.PublishErrors++
	}
}

// ScannerConfig 巡检并发参数
type ScannerConfig struct {
	PoolSize     int
	ShiftTimeout time.Duration
}

// ShiftScanner 巡检编排，无状态，可重复执行
type ShiftScanner struct {
	shifts    repository.ShiftRepository
	alerts    repository.AlertStore
	publisher fanout.Publisher
	cfg       ScannerConfig
	logger    *zap.Logger
	metrics   *metrics.OTelMetrics
	tracer    trace.Tracer
}

func NewShiftScanner(
	shifts repository.ShiftRepository,
	alerts repository.AlertStore,
	publisher fanout.Publisher,
	cfg ScannerConfig,
	logger *zap.Logger,
	m *metrics.OTelMetrics,
) *ShiftScanner {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.ShiftTimeout <= 0 {
		cfg.ShiftTimeout = 10 * time.Second
	}
	if publisher == nil {
		publisher = fanout.NopPublisher{}
	}
	if m == nil {
		m = metrics.GetMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShiftScanner{
		shifts:    shifts,
		alerts:    alerts,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("guardwatch.schedule"),
	}
}

// Run 以 now 为基准执行一次巡检。
// 列表查询失败或告警存储全部失败返回 TransientInfraError；其余单个班次的错误只记录计数，不中断本轮。
// ctx 结束后不再开始新的班次，已开始的班次在独立的超时内完成。
func (s *ShiftScanner) Run(ctx context.Context, now time.Time) (ScanResult, error) {
	ctx, span := s.tracer.Start(ctx, "shift_scan.run", trace.WithAttributes(
		attribute.String("scan.now", now.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	var result ScanResult

	shifts, err := s.shifts.ListActiveShifts(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list active shifts failed")
		return result, pkgerrors.Transient("list_active_shifts", err)
	}
	result.Listed = len(shifts)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.PoolSize)

	for i := range shifts {
		if ctx.Err() != nil {
			mu.Lock()
			result.NotStarted += len(shifts) - i
			mu.Unlock()
			break
		}

		shift := shifts[i]
		// g.Go 在池满时阻塞，拿到槽位时 ctx 可能已经结束
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.add(shiftReport{notStarted: true})
				mu.Unlock()
				return nil
			}

			shiftCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShiftTimeout)
			defer cancel()

			rep := s.evaluate(shiftCtx, shift, now)

			mu.Lock()
			result.add(rep)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("scan.listed", result.Listed),
		attribute.Int("scan.evaluated", result.Evaluated),
		attribute.Int("scan.created", result.Created),
		attribute.Int("scan.resolved", result.Resolved),
		attribute.Int("scan.shift_errors", result.ShiftErrors()),
	)

	if result.NotStarted > 0 {
		err := fmt.Errorf("scan interrupted with %d of %d shifts not started: %w",
			result.NotStarted, result.Listed, context.Cause(ctx))
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if result.storeUnreachable() {
		err := pkgerrors.Transient("alert_store",
			fmt.Errorf("all %d alert store operations failed", result.StoreErrors))
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	return result, nil
}

func (s *ShiftScanner) evaluate(ctx context.Context, shift model.ShiftSnapshot, now time.Time) shiftReport {
	ctx, span := s.tracer.Start(ctx, "shift_scan.evaluate", trace.WithAttributes(
		attribute.Int64("shift.id", shift.ID),
		attribute.Int64("site.id", shift.SiteID),
	))
	defer span.End()

	log := s.logger.With(zap.Int64("shift_id", shift.ID), zap.Int64("site_id", shift.SiteID))

	timing := shift.Timing()
	if now.After(timing.LifecycleEnd()) {
		return shiftReport{outcome: outcomeSkipped}
	}

	s.metrics.RecordShiftEvaluated(ctx)

	window, err := checkin.Compute(timing, now)
	if err != nil {
		cfgErr := &pkgerrors.ConfigError{ShiftID: shift.ID, Err: err}
		log.Warn("Skipping shift with invalid configuration", zap.Error(cfgErr))
		s.metrics.RecordShiftError(ctx, "config")
		span.RecordError(cfgErr)
		return shiftReport{outcome: outcomeConfigError}
	}

	if !window.Active {
		return shiftReport{outcome: outcomeNone}
	}

	if window.Overdue {
		return s.raise(ctx, log, shift, window)
	}
	return s.resolve(ctx, log, shift)
}

func (s *ShiftScanner) raise(ctx context.Context, log *zap.Logger, shift model.ShiftSnapshot, window checkin.Window) shiftReport {
	alert, created, err := s.alerts.CreateIfAbsentOpen(ctx, shift.ID, model.AlertTypeMissedCheckin, model.AlertMeta{
		SiteID:        shift.SiteID,
		WindowIndex:   window.WindowIndex,
		DueAt:         window.DueAt,
		GraceDeadline: window.GraceDeadline,
	})
	if err != nil {
		log.Error("Failed to create missed check-in alert", zap.Error(err))
		s.metrics.RecordShiftError(ctx, "store")
		trace.SpanFromContext(ctx).RecordError(err)
		return shiftReport{outcome: outcomeStoreError, storeCall: true}
	}

	if !created {
		if alert == nil {
			// 同一截止时间的告警已被确认，不再重开
			return shiftReport{outcome: outcomeNone, storeCall: true}
		}
		return shiftReport{outcome: outcomeRefreshed, storeCall: true}
	}

	s.metrics.RecordAlertCreated(ctx, string(alert.Type))
	log.Info("Missed check-in alert created",
		zap.Int64("alert_id", alert.ID),
		zap.Time("due_at", window.DueAt),
		zap.Time("grace_deadline", window.GraceDeadline),
		zap.Int64("window_index", window.WindowIndex),
	)

	return shiftReport{
		outcome:      outcomeCreated,
		storeCall:    true,
		publishError: s.publish(ctx, log, shift.SiteID, fanout.Event{Type: model.EventAlertCreated, Alert: alert}),
	}
}

func (s *ShiftScanner) resolve(ctx context.Context, log *zap.Logger, shift model.ShiftSnapshot) shiftReport {
	alert, err := s.alerts.ResolveOpen(ctx, shift.ID, model.AlertTypeMissedCheckin, model.ResolvedBySystem)
	if err != nil {
		log.Error("Failed to resolve missed check-in alert", zap.Error(err))
		s.metrics.RecordShiftError(ctx, "store")
		trace.SpanFromContext(ctx).RecordError(err)
		return shiftReport{outcome: outcomeStoreError, storeCall: true}
	}
	if alert == nil {
		return shiftReport{outcome: outcomeNone, storeCall: true}
	}

	s.metrics.RecordAlertResolved(ctx, string(model.ResolvedBySystem))
	log.Info("Missed check-in alert resolved by heartbeat", zap.Int64("alert_id", alert.ID))

	return shiftReport{
		outcome:      outcomeResolved,
		storeCall:    true,
		publishError: s.publish(ctx, log, shift.SiteID, fanout.Event{Type: model.EventAlertUpdated, Alert: alert}),
	}
}

// publish 推送失败只记录，告警已经落库
func (s *ShiftScanner) publish(ctx context.Context, log *zap.Logger, siteID int64, ev fanout.Event) bool {
	if err := s.publisher.Publish(ctx, siteID, ev); err != nil {
		if !errors.Is(err, fanout.ErrBreakerOpen) {
			log.Debug("Alert event not delivered", zap.String("event_type", string(ev.Type)), zap.Error(err))
		}
		return true
	}
	return false
}
