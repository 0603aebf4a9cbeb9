package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/uptime-pulse/internal/alerts"
	"github.com/leozw/uptime-pulse/internal/checks"
	"github.com/leozw/uptime-pulse/internal/config"
	"github.com/leozw/uptime-pulse/internal/db"
	"github.com/leozw/uptime-pulse/internal/metrics"
	"github.com/leozw/uptime-pulse/internal/sla"
	"go.uber.org/zap"
)

var ErrCycleInProgress = errors.New("another check cycle is in progress")

type MonitorRegistry interface {
	ListActiveMonitors(ctx context.Context) ([]*db.Monitor, error)
	UpdateMonitorStatus(ctx context.Context, monitorID string, status db.MonitorStatus, lastChecked time.Time) error
}

type ResultStore interface {
	SaveCheckResult(ctx context.Context, result *db.CheckResult) error
}

type Checker interface {
	Run(ctx context.Context, monitor *db.Monitor) (*checks.Outcome, error)
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, monitor *db.Monitor, t alerts.Transition) ([]*db.Alert, error)
}

type StatsAggregator interface {
	Recompute(ctx context.Context, monitorID string, now time.Time) (*sla.Stats, error)
}

// Locker guards a cycle against a concurrent one from the same region.
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// CycleSummary is the outcome of one check cycle. Checked counts monitors
// whose probe sequence completed; Results holds the durably recorded results.
type CycleSummary struct {
	Checked  int               `json:"checked"`
	Recorded int               `json:"recorded"`
	Results  []*db.CheckResult `json:"results"`
}

type Scheduler struct {
	registry   MonitorRegistry
	results    ResultStore
	checker    Checker
	dispatcher AlertDispatcher
	aggregator StatsAggregator
	metrics    *metrics.Collector
	logger     *zap.Logger

	region       string
	workerCount  int
	cycleTimeout time.Duration

	locker  Locker
	lockKey string
	lockTTL time.Duration

	now func() time.Time
}

type Option func(*Scheduler)

// WithCycleLock serializes cycles across processes sharing key.
func WithCycleLock(locker Locker, key string, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = locker
		s.lockKey = key
		s.lockTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(registry MonitorRegistry, results ResultStore, checker Checker, dispatcher AlertDispatcher, aggregator StatsAggregator, metrics *metrics.Collector, logger *zap.Logger, cfg config.EngineConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:     registry,
		results:      results,
		checker:      checker,
		dispatcher:   dispatcher,
		aggregator:   aggregator,
		metrics:      metrics,
		logger:       logger,
		region:       cfg.Region,
		workerCount:  cfg.WorkerCount,
		cycleTimeout: cfg.CycleTimeout,
		now:          time.Now,
	}
	if s.workerCount < 1 {
		s.workerCount = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle checks every due monitor once and returns what was recorded. It
// fails as a whole only when the registry cannot be read or the cycle lock
// is unavailable; per-monitor failures are logged and skipped.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleSummary, error) {
	cycleStart := s.now()

	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	if s.locker != nil {
		release, err := s.lock(ctx)
		if err != nil {
			s.metrics.RecordCycle(s.region, 0, time.Since(cycleStart), err)
			return nil, err
		}
		defer release()
	}

	monitors, err := s.registry.ListActiveMonitors(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list monitors: %w", err)
		s.metrics.RecordCycle(s.region, 0, time.Since(cycleStart), err)
		return nil, err
	}

	due := SelectDue(monitors, cycleStart)
	s.logger.Info("Starting check cycle",
		zap.String("region", s.region),
		zap.Int("active", len(monitors)),
		zap.Int("due", len(due)),
	)

	summary := s.fanOut(ctx, due, cycleStart)

	s.metrics.RecordCycle(s.region, len(due), time.Since(cycleStart), nil)
	s.logger.Info("Check cycle completed",
		zap.String("region", s.region),
		zap.Int("checked", summary.Checked),
		zap.Int("recorded", summary.Recorded),
		zap.Duration("duration", time.Since(cycleStart)),
	)

	return summary, nil
}

func (s *Scheduler) lock(ctx context.Context) (func(), error) {
	owner := uuid.New().String()

	ok, err := s.locker.AcquireLock(ctx, s.lockKey, owner, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrCycleInProgress
	}

	return func() {
		// The cycle context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(releaseCtx, s.lockKey, owner); err != nil {
			s.logger.Warn("Failed to release cycle lock", zap.Error(err))
		}
	}, nil
}

func (s *Scheduler) fanOut(ctx context.Context, due []*db.Monitor, cycleStart time.Time) *CycleSummary {
	summary := &CycleSummary{Results: make([]*db.CheckResult, 0, len(due))}
	if len(due) == 0 {
		return summary
	}

	workQueue := make(chan *db.Monitor, len(due))
	reports := make(chan report, len(due))
	for _, m := range due {
		workQueue <- m
	}
	close(workQueue)

	workerCount := s.workerCount
	if workerCount > len(due) {
		workerCount = len(due)
	}

	process := func(ctx context.Context, monitor *db.Monitor) report {
		return s.process(ctx, monitor, cycleStart)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		w := newWorker(i, workQueue, reports, process, s.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Start(ctx)
		}()
	}

	wg.Wait()
	close(reports)

	for r := range reports {
		if r.checked {
			summary.Checked++
		}
		if r.result != nil {
			summary.Results = append(summary.Results, r.result)
		}
	}
	summary.Recorded = len(summary.Results)

	return summary
}

// process runs one monitor through probe, record, transition, alert and
// stats. Each step only runs when the previous write was durable.
func (s *Scheduler) process(ctx context.Context, monitor *db.Monitor, cycleStart time.Time) report {
	var rep report
	logger := s.logger.With(zap.String("monitor_id", monitor.ID))

	outcome, err := s.checker.Run(ctx, monitor)
	if err != nil {
		logger.Error("Failed to run check", zap.Error(err), zap.String("monitor_type", string(monitor.Kind)))
		return rep
	}
	if outcome.Cancelled {
		logger.Debug("Dropping check interrupted by shutdown")
		return rep
	}
	rep.checked = true

	result := outcome.Result
	if err := s.results.SaveCheckResult(ctx, result); err != nil {
		s.metrics.RecordPersistenceError("save_result")
		logger.Error("Failed to save check result", zap.Error(err))
		return rep
	}
	rep.result = result
	s.metrics.RecordCheck(result, monitor, outcome.Attempts)

	if err := s.registry.UpdateMonitorStatus(ctx, monitor.ID, result.Status, cycleStart); err != nil {
		s.metrics.RecordPersistenceError("update_status")
		logger.Error("Failed to update monitor status", zap.Error(err))
		return rep
	}

	if t := alerts.Detect(monitor.Status, result.Status); t != alerts.TransitionNone {
		s.metrics.RecordTransition(monitor, string(t))
		logger.Info("Monitor status changed",
			zap.String("from", string(monitor.Status)),
			zap.String("to", string(result.Status)),
			zap.String("transition", string(t)),
		)
		// The new status is already stored, so a failed dispatch is not retried
		// by the next cycle.
		if _, err := s.dispatcher.Dispatch(ctx, monitor, t); err != nil {
			s.metrics.RecordPersistenceError("dispatch_alerts")
			logger.Error("Dropped alert",
				zap.String("transition", string(t)),
				zap.Error(err),
			)
		}
	}

	stats, err := s.aggregator.Recompute(ctx, monitor.ID, s.now())
	if err != nil {
		s.metrics.RecordPersistenceError("update_stats")
		logger.Error("Failed to recompute stats", zap.Error(err))
		return rep
	}
	if stats != nil {
		s.metrics.RecordStats(monitor, stats.UptimePercentage, stats.AvgResponseMs)
	}

	logger.Debug("Check completed",
		zap.String("status", string(result.Status)),
		zap.Int("response_ms", result.ResponseMs),
		zap.Int("attempts", outcome.Attempts),
	)

	return rep
}
