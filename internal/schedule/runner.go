package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"GuardWatch/internal/cache"
	pkgerrors "GuardWatch/pkg/errors"
	"GuardWatch/pkg/metrics"
)

// ErrRunInFlight 上一轮巡检尚未结束
var ErrRunInFlight = errors.New("scan run already in flight")

// ErrRunLocked 其他实例持有巡检锁
var ErrRunLocked = errors.New("scan run lock held by another instance")

// Scanner 单轮巡检
type Scanner interface {
	Run(ctx context.Context, now time.Time) (ScanResult, error)
}

// RunLocker 跨实例互斥，nil 表示单实例部署
type RunLocker interface {
	TryAcquire(ctx context.Context) (string, bool, error)
	Release(ctx context.Context, token string) (bool, error)
	Refresh(ctx context.Context, token string) (bool, error)
}

// StatusRecorder 记录最近一次巡检结果，供 /scan/status 查询
type StatusRecorder interface {
	RecordStart(ctx context.Context, runID string, at time.Time) error
	RecordSuccess(ctx context.Context, runID string, at time.Time, sum cache.RunSummary) error
	RecordFailure(ctx context.Context, runID string, at time.Time, runErr error) error
}

// RunnerConfig 调度参数
type RunnerConfig struct {
	Interval             time.Duration
	RunTimeout           time.Duration
	RetryMaxTries        uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// LockRefreshInterval 持锁期间的续期间隔，0 表示不续期
	LockRefreshInterval time.Duration
}

// Runner 周期性触发巡检，同一时刻至多一轮在执行
type Runner struct {
	scanner Scanner
	locker  RunLocker
	status  StatusRecorder
	cfg     RunnerConfig
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.OTelMetrics

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// RunnerOption 可选依赖
type RunnerOption func(*Runner)

func WithRunLocker(l RunLocker) RunnerOption {
	return func(r *Runner) { r.locker = l }
}

func WithStatusRecorder(s StatusRecorder) RunnerOption {
	return func(r *Runner) { r.status = s }
}

func WithClock(c clockwork.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

func WithMetrics(m *metrics.OTelMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func NewRunner(scanner Scanner, cfg RunnerConfig, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RunTimeout <= 0 || cfg.RunTimeout > cfg.Interval {
		cfg.RunTimeout = cfg.Interval
	}
	if cfg.RetryMaxTries == 0 {
		cfg.RetryMaxTries = 1
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = time.Second
	}
	if cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		cfg.RetryMaxInterval = cfg.RetryInitialInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		scanner: scanner,
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.GetMetrics()
	}
	return r
}

// Start 阻塞运行直到 ctx 结束，返回前等待进行中的巡检完成
func (r *Runner) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("Shift scan runner started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("run_timeout", r.cfg.RunTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shift scan runner stopping, waiting for in-flight run")
			r.wg.Wait()
			return
		case <-ticker.Chan():
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				_, _ = r.RunOnce(ctx)
			}()
		}
	}
}

// Wait 等待后台巡检结束
func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunOnce 执行一轮巡检（含重试）。已有巡检在执行时立即返回 ErrRunInFlight
func (r *Runner) RunOnce(ctx context.Context) (ScanResult, error) {
	if !r.tryStart() {
		r.metrics.RecordScanSkipped(ctx, "in_flight")
		r.logger.Warn("Previous shift scan still running, skipping this tick")
		return ScanResult{}, ErrRunInFlight
	}
	defer r.finish()

	if r.locker != nil {
		token, ok, err := r.locker.TryAcquire(ctx)
		switch {
		case err != nil:
			// 锁不可用时继续执行，告警去重由存储层保证
			r.logger.Warn("Scan lock unavailable, running without it", zap.Error(err))
		case !ok:
			r.metrics.RecordScanSkipped(ctx, "locked")
			r.logger.Debug("Scan lock held by another instance, skipping this tick")
			return ScanResult{}, ErrRunLocked
		default:
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				if _, err := r.locker.Release(releaseCtx, token); err != nil {
					r.logger.Warn("Failed to release scan lock", zap.Error(err))
				}
			}()
			stop := r.keepLock(ctx, token)
			defer stop()
		}
	}

	return r.run(ctx)
}

func (r *Runner) run(parent context.Context) (ScanResult, error) {
	runID := uuid.NewString()
	started := r.clock.Now()
	log := r.logger.With(zap.String("run_id", runID))

	r.recordStatus(parent, func(ctx context.Context) error {
		return r.status.RecordStart(ctx, runID, started)
	})

	// 运行超时覆盖所有重试
	ctx, cancel := context.WithTimeout(parent, r.cfg.RunTimeout)
	defer cancel()

	var attempts uint
	result, err := backoff.Retry(ctx, func() (ScanResult, error) {
		attempts++
		res, err := r.scanner.Run(ctx, r.clock.Now())
		if err == nil {
			return res, nil
		}
		if pkgerrors.IsTransient(err) && ctx.Err() == nil {
			return res, err
		}
		return res, backoff.Permanent(err)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.cfg.RetryMaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("Shift scan attempt failed, retrying",
				zap.Uint("attempt", attempts),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		}),
	)

	elapsed := r.clock.Since(started)

	if err != nil {
		if pkgerrors.IsTransient(err) {
			err = &pkgerrors.TerminalInfraError{Attempts: attempts, Err: err}
		}
		status := "failed"
		if errors.Is(err, context.Canceled) && parent.Err() != nil {
			status = "cancelled"
		}
		r.metrics.RecordScanRun(parent, status, elapsed.Seconds())
		r.recordStatus(parent, func(ctx context.Context) error {
			return r.status.RecordFailure(ctx, runID, r.clock.Now(), err)
		})
		log.Error("Shift scan run failed",
			zap.String("status", status),
			zap.Uint("attempts", attempts),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return result, err
	}

	r.metrics.RecordScanRun(parent, "success", elapsed.Seconds())
	r.recordStatus(parent, func(ctx context.Context) error {
		return r.status.RecordSuccess(ctx, runID, r.clock.Now(), cache.RunSummary{
			Evaluated:   result.Evaluated,
			Created:     result.Created,
			Resolved:    result.Resolved,
			ShiftErrors: result.ShiftErrors(),
		})
	})

	fields := []zap.Field{
		zap.Int("listed", result.Listed),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("created", result.Created),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("resolved", result.Resolved),
		zap.Int("config_errors", result.ConfigErrors),
		zap.Int("store_errors", result.StoreErrors),
		zap.Int("publish_errors", result.PublishErrors),
		zap.Duration("elapsed", elapsed),
	}
	if result.ShiftErrors() > 0 {
		log.Warn("Shift scan completed with errors", fields...)
	} else {
		log.Info("Shift scan completed", fields...)
	}

	return result, nil
}

// keepLock 在巡检期间定期续期运行锁，返回的函数停止续期并等待协程退出
func (r *Runner) keepLock(ctx context.Context, token string) func() {
	if r.cfg.LockRefreshInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := r.clock.NewTicker(r.cfg.LockRefreshInterval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				ok, err := r.locker.Refresh(ctx, token)
				switch {
				case err != nil:
					r.logger.Warn("Failed to refresh scan lock", zap.Error(err))
				case !ok:
					// 锁已过期或被接管，存储层去重兜底，本轮继续执行
					r.logger.Warn("Scan lock lost during run")
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (r *Runner) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInitialInterval
	b.MaxInterval = r.cfg.RetryMaxInterval
	return b
}

// recordStatus 状态写入失败不影响巡检结果
func (r *Runner) recordStatus(ctx context.Context, fn func(context.Context) error) {
	if r.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		r.logger.Warn("Failed to record scan status", zap.Error(err))
	}
}

func (r *Runner) tryStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) finish() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}
