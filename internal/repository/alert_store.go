package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"GuardWatch/internal/model"
	pkgerrors "GuardWatch/pkg/errors"
)

// alertStore PostgreSQL 实现。去重依赖两个唯一索引：
//   - uniq_alerts_open_shift_type (shift_id, type) WHERE acknowledged_at IS NULL
//   - uniq_alerts_shift_type_due (shift_id, type, due_at)
//
// 插入使用不带冲突目标的 ON CONFLICT DO NOTHING，任一索引冲突都不会插入。
type alertStore struct {
	db     *gorm.DB
	nextID IDFunc
	clock  clockwork.Clock
}

func NewAlertStore(db *gorm.DB, nextID IDFunc, clock clockwork.Clock) AlertStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &alertStore{db: db, nextID: nextID, clock: clock}
}

func (s *alertStore) CreateIfAbsentOpen(
	ctx context.Context,
	shiftID int64,
	alertType model.AlertType,
	meta model.AlertMeta,
) (*model.Alert, bool, error) {
	id, err := s.nextID()
	if err != nil {
		return nil, false, fmt.Errorf("generate alert id: %w", err)
	}

	now := s.clock.Now()
	alert := &model.Alert{
		ID:            id,
		ShiftID:       shiftID,
		SiteID:        meta.SiteID,
		Type:          alertType,
		WindowIndex:   meta.WindowIndex,
		DueAt:         meta.DueAt,
		GraceDeadline: meta.GraceDeadline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(alert)
	if result.Error != nil {
		return nil, false, fmt.Errorf("insert alert: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return alert, true, nil
	}

	// 冲突：已有打开告警则刷新窗口信息，身份不变
	var refreshed []model.Alert
	err = s.db.WithContext(ctx).
		Model(&refreshed).
		Clauses(clause.Returning{}).
		Where("shift_id = ? AND type = ? AND acknowledged_at IS NULL", shiftID, alertType).
		Updates(map[string]interface{}{
			"window_index":   meta.WindowIndex,
			"due_at":         meta.DueAt,
			"grace_deadline": meta.GraceDeadline,
			"updated_at":     now,
		}).Error
	if err != nil {
		return nil, false, fmt.Errorf("refresh open alert: %w", err)
	}
	if len(refreshed) == 0 {
		return nil, false, nil
	}
	return &refreshed[0], false, nil
}

func (s *alertStore) ResolveOpen(
	ctx context.Context,
	shiftID int64,
	alertType model.AlertType,
	resolvedBy model.ResolvedBy,
) (*model.Alert, error) {
	now := s.clock.Now()

	var resolved []model.Alert
	err := s.db.WithContext(ctx).
		Model(&resolved).
		Clauses(clause.Returning{}).
		Where("shift_id = ? AND type = ? AND acknowledged_at IS NULL", shiftID, alertType).
		Updates(map[string]interface{}{
			"acknowledged_at": now,
			"resolved_by":     resolvedBy,
			"updated_at":      now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("resolve open alert: %w", err)
	}
	if len(resolved) == 0 {
		return nil, nil
	}
	return &resolved[0], nil
}

func (s *alertStore) Acknowledge(ctx context.Context, alertID, adminID int64) (*model.Alert, error) {
	now := s.clock.Now()

	var acked []model.Alert
	err := s.db.WithContext(ctx).
		Model(&acked).
		Clauses(clause.Returning{}).
		Where("id = ? AND acknowledged_at IS NULL", alertID).
		Updates(map[string]interface{}{
			"acknowledged_at":    now,
			"acknowledged_by_id": adminID,
			"resolved_by":        model.ResolvedByOperator,
			"updated_at":         now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}
	if len(acked) == 1 {
		return &acked[0], nil
	}

	// 没有更新到：不存在或已确认
	if _, err := s.Get(ctx, alertID); err != nil {
		return nil, err
	}
	return nil, pkgerrors.AlertAlreadyAcknowledged
}

func (s *alertStore) FindOpen(ctx context.Context, shiftID int64, alertType model.AlertType) (*model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).
		Where("shift_id = ? AND type = ? AND acknowledged_at IS NULL", shiftID, alertType).
		Take(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open alert: %w", err)
	}
	return &alert, nil
}

func (s *alertStore) ListOpenBySite(ctx context.Context, siteID int64) ([]*model.Alert, error) {
	var alerts []*model.Alert
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND acknowledged_at IS NULL", siteID).
		Order("created_at, id").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("list open alerts: %w", err)
	}
	return alerts, nil
}

func (s *alertStore) Get(ctx context.Context, alertID int64) (*model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).Where("id = ?", alertID).Take(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.AlertNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return &alert, nil
}
