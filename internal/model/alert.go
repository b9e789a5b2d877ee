package model

import (
	"strconv"
	"time"
)

// AlertType 告警类型
type AlertType string

const (
	AlertTypeMissedCheckin AlertType = "missed_checkin" // 漏打卡
)

// ResolvedBy 告警关闭方
type ResolvedBy string

const (
	ResolvedByNone     ResolvedBy = ""
	ResolvedBySystem   ResolvedBy = "system"   // 心跳恢复后自动关闭
	ResolvedByOperator ResolvedBy = "operator" // 运营人员确认
)

// Alert 告警记录，不删除；确认后即为终态
type Alert struct {
	CreatedAt        time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null;default:now()" json:"updated_at"`
	DueAt            time.Time  `gorm:"type:timestamptz;not null" json:"due_at"`
	GraceDeadline    time.Time  `gorm:"type:timestamptz;not null" json:"grace_deadline"`
	AcknowledgedAt   *time.Time `gorm:"type:timestamptz" json:"acknowledged_at,omitempty"`
	AcknowledgedByID *int64     `gorm:"index" json:"acknowledged_by_id,omitempty"`
	Type             AlertType  `gorm:"type:varchar(32);not null" json:"type"`
	ResolvedBy       ResolvedBy `gorm:"type:varchar(16);not null;default:''" json:"resolved_by,omitempty"`
	ID               int64      `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	ShiftID          int64      `gorm:"not null;index" json:"shift_id"`
	SiteID           int64      `gorm:"not null;index:idx_alerts_site_open" json:"site_id"`
	WindowIndex      int64      `gorm:"not null;default:0" json:"window_index"`
}

// TableName 指定表名
func (Alert) TableName() string {
	return "alerts"
}

// IsOpen 未确认即为打开状态
func (a *Alert) IsOpen() bool {
	return a.AcknowledgedAt == nil
}

// IDString 对外暴露的字符串 ID
func (a *Alert) IDString() string {
	return strconv.FormatInt(a.ID, 10)
}

// AlertMeta 创建或刷新告警时写入的窗口信息
type AlertMeta struct {
	DueAt         time.Time
	GraceDeadline time.Time
	SiteID        int64
	WindowIndex   int64
}
