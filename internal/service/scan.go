package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"GuardWatch/internal/model"
	"GuardWatch/pkg/errors"
)

// ScanStatusReader 读取最近一次巡检状态，由 cache.ScanStatusStore 实现
type ScanStatusReader interface {
	Get(ctx context.Context, now time.Time) (*model.ScanStatus, error)
}

type ScanService struct {
	reader ScanStatusReader
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewScanService(reader ScanStatusReader, clock clockwork.Clock, logger *zap.Logger) *ScanService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanService{reader: reader, clock: clock, logger: logger}
}

// Status 巡检健康状况；redis 不可用时返回 SCAN_STATUS_UNAVAILABLE
func (s *ScanService) Status(ctx context.Context) (*model.ScanStatus, error) {
	if s.reader == nil {
		return nil, errors.ScanStatusUnavailable
	}

	status, err := s.reader.Get(ctx, s.clock.Now())
	if err != nil {
		s.logger.Warn("Failed to read scan status", zap.Error(err))
		return nil, errors.ScanStatusUnavailable
	}
	return status, nil
}
