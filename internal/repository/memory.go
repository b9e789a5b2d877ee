package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"GuardWatch/internal/model"
	pkgerrors "GuardWatch/pkg/errors"
)

// MemoryAlertStore 进程内实现，单机部署与测试使用；去重语义与 PostgreSQL 实现一致
type MemoryAlertStore struct {
	mu     sync.Mutex
	alerts map[int64]*model.Alert
	nextID IDFunc
	clock  clockwork.Clock
}

func NewMemoryAlertStore(nextID IDFunc, clock clockwork.Clock) *MemoryAlertStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryAlertStore{
		alerts: make(map[int64]*model.Alert),
		nextID: nextID,
		clock:  clock,
	}
}

func (s *MemoryAlertStore) CreateIfAbsentOpen(
	_ context.Context,
	shiftID int64,
	alertType model.AlertType,
	meta model.AlertMeta,
) (*model.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for _, a := range s.alerts {
		if a.ShiftID != shiftID || a.Type != alertType {
			continue
		}
		if a.IsOpen() {
			a.WindowIndex = meta.WindowIndex
			a.DueAt = meta.DueAt
			a.GraceDeadline = meta.GraceDeadline
			a.UpdatedAt = now
			return cloneAlert(a), false, nil
		}
	}
	for _, a := range s.alerts {
		if a.ShiftID == shiftID && a.Type == alertType && a.DueAt.Equal(meta.DueAt) {
			return nil, false, nil
		}
	}

	id, err := s.nextID()
	if err != nil {
		return nil, false, err
	}
	alert := &model.Alert{
		ID:            id,
		ShiftID:       shiftID,
		SiteID:        meta.SiteID,
		Type:          alertType,
		WindowIndex:   meta.WindowIndex,
		DueAt:         meta.DueAt,
		GraceDeadline: meta.GraceDeadline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.alerts[id] = alert
	return cloneAlert(alert), true, nil
}

func (s *MemoryAlertStore) ResolveOpen(
	_ context.Context,
	shiftID int64,
	alertType model.AlertType,
	resolvedBy model.ResolvedBy,
) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findOpenLocked(shiftID, alertType)
	if a == nil {
		return nil, nil
	}
	now := s.clock.Now()
	a.AcknowledgedAt = &now
	a.ResolvedBy = resolvedBy
	a.UpdatedAt = now
	return cloneAlert(a), nil
}

func (s *MemoryAlertStore) Acknowledge(_ context.Context, alertID, adminID int64) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, pkgerrors.AlertNotFound
	}
	if !a.IsOpen() {
		return nil, pkgerrors.AlertAlreadyAcknowledged
	}
	now := s.clock.Now()
	a.AcknowledgedAt = &now
	a.AcknowledgedByID = &adminID
	a.ResolvedBy = model.ResolvedByOperator
	a.UpdatedAt = now
	return cloneAlert(a), nil
}

func (s *MemoryAlertStore) FindOpen(_ context.Context, shiftID int64, alertType model.AlertType) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.findOpenLocked(shiftID, alertType); a != nil {
		return cloneAlert(a), nil
	}
	return nil, nil
}

func (s *MemoryAlertStore) ListOpenBySite(_ context.Context, siteID int64) ([]*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*model.Alert, 0)
	for _, a := range s.alerts {
		if a.SiteID == siteID && a.IsOpen() {
			result = append(result, cloneAlert(a))
		}
	}
	sortAlerts(result)
	return result, nil
}

func (s *MemoryAlertStore) Get(_ context.Context, alertID int64) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, pkgerrors.AlertNotFound
	}
	return cloneAlert(a), nil
}

// All 返回全部告警快照，按创建时间排序
func (s *MemoryAlertStore) All() []*model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		result = append(result, cloneAlert(a))
	}
	sortAlerts(result)
	return result
}

func (s *MemoryAlertStore) findOpenLocked(shiftID int64, alertType model.AlertType) *model.Alert {
	for _, a := range s.alerts {
		if a.ShiftID == shiftID && a.Type == alertType && a.IsOpen() {
			return a
		}
	}
	return nil
}

func cloneAlert(a *model.Alert) *model.Alert {
	c := *a
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.AcknowledgedByID != nil {
		id := *a.AcknowledgedByID
		c.AcknowledgedByID = &id
	}
	return &c
}

func sortAlerts(alerts []*model.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
}

// MemoryShiftRepository 进程内班次仓储，过滤条件与 PostgreSQL 实现一致
type MemoryShiftRepository struct {
	mu     sync.RWMutex
	shifts map[int64]model.ShiftSnapshot
	err    error
}

func NewMemoryShiftRepository(shifts ...model.ShiftSnapshot) *MemoryShiftRepository {
	r := &MemoryShiftRepository{shifts: make(map[int64]model.ShiftSnapshot)}
	for _, s := range shifts {
		r.shifts[s.ID] = s
	}
	return r
}

// Put 新增或覆盖班次
func (r *MemoryShiftRepository) Put(s model.ShiftSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shifts[s.ID] = s
}

// SetErr 非空时 ListActiveShifts 直接返回该错误
func (r *MemoryShiftRepository) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// RecordHeartbeat 模拟打卡写入
func (r *MemoryShiftRepository) RecordHeartbeat(shiftID int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shifts[shiftID]; ok {
		s.LastHeartbeatAt = &at
		r.shifts[shiftID] = s
	}
}

func (r *MemoryShiftRepository) ListActiveShifts(_ context.Context, now time.Time) ([]model.ShiftSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.err != nil {
		return nil, r.err
	}

	result := make([]model.ShiftSnapshot, 0, len(r.shifts))
	for _, s := range r.shifts {
		if s.Status != model.ShiftStatusScheduled && s.Status != model.ShiftStatusInProgress {
			continue
		}
		if s.StartsAt.After(now) {
			continue
		}
		if now.After(s.EndsAt.Add(time.Duration(s.GraceMins) * time.Minute)) {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
