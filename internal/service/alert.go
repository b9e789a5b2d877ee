package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"GuardWatch/internal/fanout"
	"GuardWatch/internal/model"
	"GuardWatch/internal/repository"
	"GuardWatch/pkg/metrics"
)

// AlertService 运营人员对告警的操作
type AlertService struct {
	alerts    repository.AlertStore
	publisher fanout.Publisher
	logger    *zap.Logger
	metrics   *metrics.OTelMetrics
}

func NewAlertService(alerts repository.AlertStore, publisher fanout.Publisher, logger *zap.Logger, m *metrics.OTelMetrics) *AlertService {
	if publisher == nil {
		publisher = fanout.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.GetMetrics()
	}
	return &AlertService{
		alerts:    alerts,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
	}
}

// Acknowledge 确认告警，确认后为终态。
// 告警不存在返回 ALERT_NOT_FOUND，重复确认返回 ALERT_ALREADY_ACKNOWLEDGED
func (s *AlertService) Acknowledge(ctx context.Context, alertID, adminID int64) (*model.Alert, error) {
	alert, err := s.alerts.Acknowledge(ctx, alertID, adminID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAlertResolved(ctx, string(model.ResolvedByOperator))
	s.logger.Info("Alert acknowledged",
		zap.Int64("alert_id", alert.ID),
		zap.Int64("shift_id", alert.ShiftID),
		zap.Int64("site_id", alert.SiteID),
		zap.Int64("admin_id", adminID),
	)

	if err := s.publisher.Publish(ctx, alert.SiteID, fanout.Event{Type: model.EventAlertUpdated, Alert: alert}); err != nil {
		s.logger.Debug("Alert acknowledgement not delivered", zap.Int64("alert_id", alert.ID), zap.Error(err))
	}

	return alert, nil
}

// ListOpen 站点当前所有打开的告警，供看板重连后对账
func (s *AlertService) ListOpen(ctx context.Context, siteID int64) (*model.OpenAlertsResponse, error) {
	alerts, err := s.alerts.ListOpenBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}
	return &model.OpenAlertsResponse{SiteID: siteID, Alerts: alerts}, nil
}

// Get 查询单个告警
func (s *AlertService) Get(ctx context.Context, alertID int64) (*model.Alert, error) {
	return s.alerts.Get(ctx, alertID)
}
