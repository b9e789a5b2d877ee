package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardWatch/internal/cache"
	pkgerrors "GuardWatch/pkg/errors"
)

type scriptedScanner struct {
	calls atomic.Int32
	run   func(call int32) (ScanResult, error)
}

func (s *scriptedScanner) Run(context.Context, time.Time) (ScanResult, error) {
	n := s.calls.Add(1)
	return s.run(n)
}

type statusLog struct {
	mu        sync.Mutex
	starts    int
	successes []cache.RunSummary
	failures  []error
}

func (s *statusLog) RecordStart(context.Context, string, time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return nil
}

func (s *statusLog) RecordSuccess(_ context.Context, _ string, _ time.Time, sum cache.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = append(s.successes, sum)
	return nil
}

func (s *statusLog) RecordFailure(_ context.Context, _ string, _ time.Time, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
	return nil
}

func (s *statusLog) Failures() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.failures...)
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Interval:             time.Minute,
		RunTimeout:           5 * time.Second,
		RetryMaxTries:        3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	}
}

func TestRunner_RetriesTransientFailure(t *testing.T) {
	scanner := &scriptedScanner{run: func(call int32) (ScanResult, error) {
		if call < 3 {
			return ScanResult{}, pkgerrors.Transient("list_active_shifts", errors.New("timeout"))
		}
		return ScanResult{Evaluated: 4, Created: 1}, nil
	}}
	status := &statusLog{}
	runner := NewRunner(scanner, testRunnerConfig(), nil, WithStatusRecorder(status))

	res, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), scanner.calls.Load())
	assert.Equal(t, 1, res.Created)

	require.Len(t, status.successes, 1)
	assert.Equal(t, 4, status.successes[0].Evaluated)
	assert.Equal(t, 1, status.starts)
}

func TestRunner_TerminalFailureAfterMaxTries(t *testing.T) {
	root := errors.New("connection refused")
	scanner := &scriptedScanner{run: func(int32) (ScanResult, error) {
		return ScanResult{}, pkgerrors.Transient("list_active_shifts", root)
	}}
	status := &statusLog{}
	runner := NewRunner(scanner, testRunnerConfig(), nil, WithStatusRecorder(status))

	_, err := runner.RunOnce(context.Background())
	require.Error(t, err)

	var terminal *pkgerrors.TerminalInfraError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, uint(3), terminal.Attempts)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, int32(3), scanner.calls.Load())
	assert.Len(t, status.Failures(), 1)
}

func TestRunner_NonTransientNotRetried(t *testing.T) {
	scanner := &scriptedScanner{run: func(int32) (ScanResult, error) {
		return ScanResult{}, errors.New("boom")
	}}
	runner := NewRunner(scanner, testRunnerConfig(), nil)

	_, err := runner.RunOnce(context.Background())
	require.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), scanner.calls.Load())
}

func TestRunner_SkipsWhileRunInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	scanner := &scriptedScanner{run: func(int32) (ScanResult, error) {
		close(entered)
		<-release
		return ScanResult{}, nil
	}}
	runner := NewRunner(scanner, testRunnerConfig(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := runner.RunOnce(context.Background())
		done <- err
	}()
	<-entered

	_, err := runner.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrRunInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), scanner.calls.Load())
}

func TestRunner_NextTickFiresAfterTerminalFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(shiftStart)
	scanner := &scriptedScanner{run: func(int32) (ScanResult, error) {
		return ScanResult{}, pkgerrors.Transient("list_active_shifts", errors.New("down"))
	}}
	status := &statusLog{}
	cfg := testRunnerConfig()
	cfg.RetryMaxTries = 1
	runner := NewRunner(scanner, cfg, nil, WithClock(clock), WithStatusRecorder(status))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(stopped)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	require.Eventually(t, func() bool {
		clock.Advance(cfg.Interval)
		return len(status.Failures()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	assert.GreaterOrEqual(t, scanner.calls.Load(), int32(2))
}

func TestRunner_SkipsWhenLockHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	other := cache.NewRunLock(client, "gw:scan:lock", time.Minute)
	_, ok, err := other.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	scanner := &scriptedScanner{run: func(int32) (ScanResult, error) { return ScanResult{}, nil }}
	runner := NewRunner(scanner, testRunnerConfig(), nil,
		WithRunLocker(cache.NewRunLock(client, "gw:scan:lock", time.Minute)))

	_, err = runner.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrRunLocked)
	assert.Equal(t, int32(0), scanner.calls.Load())
}

func TestRunner_ReleasesLockAfterRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	scanner := &scriptedScanner{run: func(int32) (ScanResult, error) { return ScanResult{}, nil }}
	runner := NewRunner(scanner, testRunnerConfig(), nil,
		WithRunLocker(cache.NewRunLock(client, "gw:scan:lock", time.Minute)))

	for i := 0; i < 2; i++ {
		_, err := runner.RunOnce(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), scanner.calls.Load())
	assert.False(t, mr.Exists("gw:scan:lock"))
}

func TestRunner_RefreshesLockDuringLongRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	entered := make(chan struct{})
	proceed := make(chan struct{})
	scanner := &scriptedScanner{run: func(int32) (ScanResult, error) {
		close(entered)
		<-proceed
		return ScanResult{}, nil
	}}

	clock := clockwork.NewFakeClock()
	cfg := testRunnerConfig()
	cfg.LockRefreshInterval = 20 * time.Second
	runner := NewRunner(scanner, cfg, nil,
		WithClock(clock),
		WithRunLocker(cache.NewRunLock(client, "gw:scan:lock", time.Minute)))

	done := make(chan error, 1)
	go func() {
		_, err := runner.RunOnce(context.Background())
		done <- err
	}()
	<-entered

	mr.FastForward(50 * time.Second)
	require.Equal(t, 10*time.Second, mr.TTL("gw:scan:lock"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(20 * time.Second)

	require.Eventually(t, func() bool {
		return mr.TTL("gw:scan:lock") == time.Minute
	}, time.Second, 5*time.Millisecond)

	close(proceed)
	require.NoError(t, <-done)
	assert.False(t, mr.Exists("gw:scan:lock"))
}

func TestRunner_AlertStoreOutageRecordedAsFailure(t *testing.T) {
	store := &flakyAlertStore{}
	scanner := newFlakyScanner(store, ScannerConfig{PoolSize: 2}, newShift(1, 9), newShift(2, 9))
	status := &statusLog{}
	runner := NewRunner(scanner, testRunnerConfig(), nil,
		WithStatusRecorder(status),
		WithClock(clockwork.NewFakeClockAt(at(41))),
	)

	_, err := runner.RunOnce(context.Background())

	var terminal *pkgerrors.TerminalInfraError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, uint(3), terminal.Attempts)
	assert.Equal(t, int32(6), store.calls.Load(), "each attempt tries both shifts")
	assert.Len(t, status.Failures(), 1)
	assert.Empty(t, status.successes)
}
