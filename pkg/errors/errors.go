package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 认证相关错误。
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidAdmin    = Definition{Code: "INVALID_ADMIN_ID", Message: "Invalid admin ID format"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
)

// 告警模块错误。
var (
	AlertNotFound            = Definition{Code: "ALERT_NOT_FOUND", Message: "Alert not found"}
	AlertAlreadyAcknowledged = Definition{Code: "ALERT_ALREADY_ACKNOWLEDGED", Message: "Alert already acknowledged"}
	InvalidAlertID           = Definition{Code: "INVALID_ALERT_ID", Message: "Invalid alert ID format"}
	InvalidSiteID            = Definition{Code: "INVALID_SITE_ID", Message: "Invalid site ID format"}
)

// 巡检任务错误。
var (
	ScanStatusUnavailable = Definition{Code: "SCAN_STATUS_UNAVAILABLE", Message: "Scan status unavailable"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	Unauthorized.Code:             Unauthorized,
	InvalidAdmin.Code:             InvalidAdmin,
	AlertNotFound.Code:            AlertNotFound,
	AlertAlreadyAcknowledged.Code: AlertAlreadyAcknowledged,
	InvalidAlertID.Code:           InvalidAlertID,
	InvalidSiteID.Code:            InvalidSiteID,
	ScanStatusUnavailable.Code:    ScanStatusUnavailable,
	TooManyRequests.Code:          TooManyRequests,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// 基础设施相关哨兵错误。
var (
	ErrDatabaseConnectionNil        = stderrors.New("database connection is nil")
	ErrRedisClientNil               = stderrors.New("redis client is nil")
	ErrRabbitMQConnectionNil        = stderrors.New("rabbitmq connection is nil")
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
)

// ConfigError 排班配置非法（起止时间、间隔、宽限期），跳过该班次并记录，等待运营修正
type ConfigError struct {
	ShiftID int64
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid shift config (shift %d): %v", e.ShiftID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransientInfraError 仓储或推送不可达，整轮任务按退避策略重试
type TransientInfraError struct {
	Op  string
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("transient infra failure during %s: %v", e.Op, e.Err)
}

func (e *TransientInfraError) Unwrap() error { return e.Err }

// TerminalInfraError 重试次数耗尽，交给下一个 tick
type TerminalInfraError struct {
	Attempts uint
	Err      error
}

func (e *TerminalInfraError) Error() string {
	return fmt.Sprintf("scan run failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TerminalInfraError) Unwrap() error { return e.Err }

// Transient 包装为可重试错误
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientInfraError{Op: op, Err: err}
}

// IsTransient 判断错误链中是否存在可重试错误
func IsTransient(err error) bool {
	var t *TransientInfraError
	return stderrors.As(err, &t)
}

// IsConfig 判断错误链中是否存在配置错误
func IsConfig(err error) bool {
	var c *ConfigError
	return stderrors.As(err, &c)
}
