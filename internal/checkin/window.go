// Package checkin 计算班次的打卡窗口：给定排班时间、最近一次心跳和当前时间，
// 得出下一次心跳的截止时间以及是否已经超时。纯函数，无 I/O。
package checkin

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidShiftConfig 排班参数违反约束，属于编程/数据错误，不应被静默吞掉
var ErrInvalidShiftConfig = errors.New("invalid shift config")

// Timing 计算窗口所需的班次字段
type Timing struct {
	StartsAt        time.Time
	EndsAt          time.Time
	IntervalMins    int
	GraceMins       int
	LastHeartbeatAt *time.Time
}

// Window 一次计算得到的打卡窗口状态
type Window struct {
	// Active 为 false 表示班次尚未开始
	Active          bool
	DueAt           time.Time
	GraceDeadline   time.Time
	Overdue         bool
	WindowIndex     int64
	SecondsUntilDue int64
}

// Validate 校验排班参数
func (t Timing) Validate() error {
	if !t.StartsAt.Before(t.EndsAt) {
		return fmt.Errorf("%w: starts_at %s must be before ends_at %s",
			ErrInvalidShiftConfig, t.StartsAt.Format(time.RFC3339), t.EndsAt.Format(time.RFC3339))
	}
	if t.IntervalMins <= 0 {
		return fmt.Errorf("%w: interval %d must be positive", ErrInvalidShiftConfig, t.IntervalMins)
	}
	if t.GraceMins < 0 {
		return fmt.Errorf("%w: grace %d must not be negative", ErrInvalidShiftConfig, t.GraceMins)
	}
	return nil
}

// EffectiveStart 最近一次心跳与班次开始时间取较晚者
func (t Timing) EffectiveStart() time.Time {
	if t.LastHeartbeatAt != nil && t.LastHeartbeatAt.After(t.StartsAt) {
		return *t.LastHeartbeatAt
	}
	return t.StartsAt
}

// LifecycleEnd 超过该时间后班次不再产生新的告警
func (t Timing) LifecycleEnd() time.Time {
	return t.EndsAt.Add(time.Duration(t.GraceMins) * time.Minute)
}

// Compute 计算 now 时刻的打卡窗口。
//
// effectiveStart 之后没有新的心跳，因此下一次心跳在 effectiveStart + interval 到期，
// 截止时间不会超过班次结束时间；超过截止时间 + 宽限期即为超时。
func Compute(t Timing, now time.Time) (Window, error) {
	if err := t.Validate(); err != nil {
		return Window{}, err
	}

	interval := time.Duration(t.IntervalMins) * time.Minute
	grace := time.Duration(t.GraceMins) * time.Minute

	if now.Before(t.StartsAt) {
		dueAt := minTime(t.StartsAt.Add(interval), t.EndsAt)
		return Window{
			Active:          false,
			DueAt:           dueAt,
			GraceDeadline:   minTime(dueAt.Add(grace), t.LifecycleEnd()),
			SecondsUntilDue: secondsBetween(now, dueAt),
		}, nil
	}

	effectiveStart := t.EffectiveStart()

	var windowIndex int64
	if elapsed := now.Sub(effectiveStart); elapsed > 0 {
		windowIndex = int64(elapsed / interval)
	}

	dueAt := minTime(effectiveStart.Add(interval), t.EndsAt)
	graceDeadline := minTime(dueAt.Add(grace), t.LifecycleEnd())

	return Window{
		Active:          true,
		DueAt:           dueAt,
		GraceDeadline:   graceDeadline,
		Overdue:         now.After(graceDeadline),
		WindowIndex:     windowIndex,
		SecondsUntilDue: secondsBetween(now, dueAt),
	}, nil
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func secondsBetween(from, to time.Time) int64 {
	return int64(math.Floor(to.Sub(from).Seconds()))
}
