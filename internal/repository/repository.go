package repository

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"GuardWatch/internal/model"
)

// IDFunc 生成告警主键，生产环境使用 snowflake.NextID
type IDFunc func() (int64, error)

// ShiftRepository 班次只读访问接口
type ShiftRepository interface {
	// ListActiveShifts 返回状态为 scheduled/in_progress 且 starts_at <= now <= ends_at + grace 的班次
	ListActiveShifts(ctx context.Context, now time.Time) ([]model.ShiftSnapshot, error)
}

// AlertStore 告警存储，负责 (shift_id, type) 维度的打开告警去重
type AlertStore interface {
	// CreateIfAbsentOpen 不存在打开告警时创建并返回 created=true；
	// 已存在时刷新窗口信息并返回该告警；同一截止时间的告警已被确认时返回 nil
	CreateIfAbsentOpen(ctx context.Context, shiftID int64, alertType model.AlertType, meta model.AlertMeta) (*model.Alert, bool, error)
	// ResolveOpen 关闭打开的告警，没有打开告警时返回 nil
	ResolveOpen(ctx context.Context, shiftID int64, alertType model.AlertType, resolvedBy model.ResolvedBy) (*model.Alert, error)
	Acknowledge(ctx context.Context, alertID, adminID int64) (*model.Alert, error)
	FindOpen(ctx context.Context, shiftID int64, alertType model.AlertType) (*model.Alert, error)
	ListOpenBySite(ctx context.Context, siteID int64) ([]*model.Alert, error)
	Get(ctx context.Context, alertID int64) (*model.Alert, error)
}

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Shift ShiftRepository
	Alert AlertStore
}

// NewRepository 创建基于 PostgreSQL 的 Repository 聚合
func NewRepository(db *gorm.DB, nextID IDFunc, clock clockwork.Clock) *Repository {
	return &Repository{
		Shift: NewShiftRepo(db),
		Alert: NewAlertStore(db, nextID, clock),
	}
}
