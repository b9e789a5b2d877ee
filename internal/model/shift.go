package model

import (
	"time"

	"gorm.io/gorm"

	"GuardWatch/internal/checkin"
)

// ShiftStatus 班次状态枚举
type ShiftStatus string

const (
	ShiftStatusScheduled  ShiftStatus = "scheduled"   // 已排班
	ShiftStatusInProgress ShiftStatus = "in_progress" // 执勤中
	ShiftStatusCompleted  ShiftStatus = "completed"   // 已结束
	ShiftStatusCancelled  ShiftStatus = "cancelled"   // 已取消
)

// ScannableShiftStatuses 巡检任务只关心这两种状态
var ScannableShiftStatuses = []ShiftStatus{ShiftStatusScheduled, ShiftStatusInProgress}

// Shift 班次，由排班系统维护，本服务只读
type Shift struct {
	BaseModel
	StartsAt                    time.Time      `gorm:"type:timestamptz;not null;index:idx_shifts_status_window" json:"starts_at"`
	EndsAt                      time.Time      `gorm:"type:timestamptz;not null;index:idx_shifts_status_window" json:"ends_at"`
	LastHeartbeatAt             *time.Time     `gorm:"type:timestamptz" json:"last_heartbeat_at,omitempty"`
	DeletedAt                   gorm.DeletedAt `gorm:"index" json:"-"`
	Status                      ShiftStatus    `gorm:"type:varchar(16);not null;default:'scheduled';index:idx_shifts_status_window" json:"status"`
	GuardID                     int64          `gorm:"not null;index" json:"guard_id"`
	SiteID                      int64          `gorm:"not null;index" json:"site_id"`
	ShiftTypeID                 int64          `gorm:"not null" json:"shift_type_id"`
	RequiredCheckinIntervalMins int            `gorm:"not null" json:"required_checkin_interval_mins"`
	GraceMinutes                int            `gorm:"not null;default:0" json:"grace_minutes"`
}

// TableName 指定表名
func (Shift) TableName() string {
	return "shifts"
}

// ShiftSnapshot 巡检用的扁平视图，不携带任何 ORM 关联
type ShiftSnapshot struct {
	StartsAt        time.Time
	EndsAt          time.Time
	LastHeartbeatAt *time.Time
	Status          ShiftStatus
	ID              int64
	GuardID         int64
	SiteID          int64
	IntervalMins    int
	GraceMins       int
}

// Snapshot 转换为巡检视图
func (s *Shift) Snapshot() ShiftSnapshot {
	return ShiftSnapshot{
		ID:              s.ID,
		GuardID:         s.GuardID,
		SiteID:          s.SiteID,
		Status:          s.Status,
		StartsAt:        s.StartsAt,
		EndsAt:          s.EndsAt,
		LastHeartbeatAt: s.LastHeartbeatAt,
		IntervalMins:    s.RequiredCheckinIntervalMins,
		GraceMins:       s.GraceMinutes,
	}
}

// Timing 窗口计算所需参数
func (s ShiftSnapshot) Timing() checkin.Timing {
	return checkin.Timing{
		StartsAt:        s.StartsAt,
		EndsAt:          s.EndsAt,
		IntervalMins:    s.IntervalMins,
		GraceMins:       s.GraceMins,
		LastHeartbeatAt: s.LastHeartbeatAt,
	}
}
