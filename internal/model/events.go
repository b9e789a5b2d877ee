package model

import "time"

// AlertEventType 推送给大屏的事件类型
type AlertEventType string

const (
	EventAlertCreated AlertEventType = "alert_created"
	EventAlertUpdated AlertEventType = "alert_updated"
)

// AlertEvent 告警推送消息，按站点分发
type AlertEvent struct {
	OccurredAt time.Time      `json:"occurred_at"`
	Alert      *Alert         `json:"alert"`
	MessageID  string         `json:"message_id"` // 消息唯一ID，用于幂等性检查
	Type       AlertEventType `json:"type"`
	SiteID     int64          `json:"site_id"`
}
