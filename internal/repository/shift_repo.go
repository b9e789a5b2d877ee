package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"GuardWatch/internal/model"
)

type shiftRepo struct {
	db *gorm.DB
}

func NewShiftRepo(db *gorm.DB) ShiftRepository {
	return &shiftRepo{db: db}
}

func (r *shiftRepo) ListActiveShifts(ctx context.Context, now time.Time) ([]model.ShiftSnapshot, error) {
	var shifts []model.Shift
	err := r.db.WithContext(ctx).
		Where("status IN ?", model.ScannableShiftStatuses).
		Where("starts_at <= ?", now).
		Where("ends_at + grace_minutes * interval '1 minute' >= ?", now).
		Order("id").
		Find(&shifts).Error
	if err != nil {
		return nil, fmt.Errorf("list active shifts: %w", err)
	}

	snapshots := make([]model.ShiftSnapshot, 0, len(shifts))
	for i := range shifts {
		snapshots = append(snapshots, shifts[i].Snapshot())
	}
	return snapshots, nil
}
