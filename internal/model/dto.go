package model

import "time"

// ScanStatus 最近一次巡检状态，供运营排查任务是否停摆
type ScanStatus struct {
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt  *time.Time `json:"last_failure_at,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastEvaluated  int        `json:"last_evaluated"`
	LastCreated    int        `json:"last_created"`
	LastResolved   int        `json:"last_resolved"`
	LastShiftError int        `json:"last_shift_errors"`
	Stale          bool       `json:"stale"`
}

// OpenAlertsResponse 站点未确认告警列表
type OpenAlertsResponse struct {
	Alerts []*Alert `json:"alerts"`
	SiteID int64    `json:"site_id,string"`
}
