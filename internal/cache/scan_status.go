package cache

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"GuardWatch/internal/model"
	pkgerrors "GuardWatch/pkg/errors"
)

const (
	fieldLastRunAt      = "last_run_at"
	fieldLastRunID      = "last_run_id"
	fieldLastSuccessAt  = "last_success_at"
	fieldLastFailureAt  = "last_failure_at"
	fieldLastError      = "last_error"
	fieldLastEvaluated  = "last_evaluated"
	fieldLastCreated    = "last_created"
	fieldLastResolved   = "last_resolved"
	fieldLastShiftError = "last_shift_errors"
)

// RunSummary 一次巡检的计数
type RunSummary struct {
	Evaluated   int
	Created     int
	Resolved    int
	ShiftErrors int
}

// ScanStatusStore 把最近一次巡检结果写进 redis hash，server 进程读取后判断任务是否停摆
type ScanStatusStore struct {
	client     *goredis.Client
	key        string
	staleAfter time.Duration
}

func NewScanStatusStore(client *goredis.Client, key string, staleAfter time.Duration) *ScanStatusStore {
	return &ScanStatusStore{client: client, key: key, staleAfter: staleAfter}
}

func (s *ScanStatusStore) RecordStart(ctx context.Context, runID string, at time.Time) error {
	return s.client.HSet(ctx, s.key,
		fieldLastRunAt, formatTime(at),
		fieldLastRunID, runID,
	).Err()
}

func (s *ScanStatusStore) RecordSuccess(ctx context.Context, runID string, at time.Time, sum RunSummary) error {
	return s.client.HSet(ctx, s.key,
		fieldLastRunID, runID,
		fieldLastSuccessAt, formatTime(at),
		fieldLastEvaluated, sum.Evaluated,
		fieldLastCreated, sum.Created,
		fieldLastResolved, sum.Resolved,
		fieldLastShiftError, sum.ShiftErrors,
	).Err()
}

func (s *ScanStatusStore) RecordFailure(ctx context.Context, runID string, at time.Time, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.client.HSet(ctx, s.key,
		fieldLastRunID, runID,
		fieldLastFailureAt, formatTime(at),
		fieldLastError, msg,
	).Err()
}

// Get 读取状态；从未成功过或最近一次成功早于 staleAfter 时 Stale=true
func (s *ScanStatusStore) Get(ctx context.Context, now time.Time) (*model.ScanStatus, error) {
	if s.client == nil {
		return nil, pkgerrors.ErrRedisClientNil
	}

	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}

	status := &model.ScanStatus{
		LastRunAt:      parseTime(values[fieldLastRunAt]),
		LastSuccessAt:  parseTime(values[fieldLastSuccessAt]),
		LastFailureAt:  parseTime(values[fieldLastFailureAt]),
		LastRunID:      values[fieldLastRunID],
		LastError:      values[fieldLastError],
		LastEvaluated:  atoi(values[fieldLastEvaluated]),
		LastCreated:    atoi(values[fieldLastCreated]),
		LastResolved:   atoi(values[fieldLastResolved]),
		LastShiftError: atoi(values[fieldLastShiftError]),
	}
	status.Stale = status.LastSuccessAt == nil || now.Sub(*status.LastSuccessAt) > s.staleAfter
	return status, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
