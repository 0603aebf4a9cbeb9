package checks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/uptime-pulse/internal/db"
	"go.uber.org/zap"
)

var ErrUnsupportedKind = errors.New("no runner for monitor kind")

const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 30 * time.Second
)

// Outcome is the authoritative result of one retry sequence.
type Outcome struct {
	Result   *db.CheckResult
	Attempts int
	// Cancelled is set when the parent context ended before an attempt
	// succeeded. Such outcomes must not be recorded.
	Cancelled bool
	LastErr   error
}

// Executor wraps the runners with the bounded retry and timeout policy.
type Executor struct {
	runners        map[db.MonitorKind]Runner
	region         string
	maxAttempts    int
	attemptTimeout time.Duration
	backoff        time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

type ExecutorOption func(*Executor)

func WithMaxAttempts(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 && n <= DefaultMaxAttempts {
			e.maxAttempts = n
		}
	}
}

func WithAttemptTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 && d <= DefaultAttemptTimeout {
			e.attemptTimeout = d
		}
	}
}

// WithBackoff adds a jittered pause of up to d between attempts.
func WithBackoff(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.backoff = d }
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(runners map[db.MonitorKind]Runner, region string, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runners:        runners,
		region:         region,
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run probes the monitor until one attempt succeeds or the attempts are
// exhausted. ResponseMs spans from the start of the first attempt to the end
// of the decisive one.
func (e *Executor) Run(ctx context.Context, monitor *db.Monitor) (*Outcome, error) {
	runner, ok := e.runners[monitor.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, monitor.Kind)
	}

	start := e.now()
	var last Attempt
	attempts := 0

	for attempts < e.maxAttempts {
		if attempts > 0 && !e.pause(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		attempts++
		last = e.attempt(ctx, runner, monitor)
		if last.Succeeded {
			break
		}

		e.logger.Debug("Attempt failed",
			zap.String("monitor_id", monitor.ID),
			zap.Int("attempt", attempts),
			zap.Error(last.Err),
		)
	}

	end := e.now()

	status := db.StatusDown
	if last.Succeeded {
		status = db.StatusUp
	}

	return &Outcome{
		Result: &db.CheckResult{
			ID:         uuid.New().String(),
			MonitorID:  monitor.ID,
			Region:     e.region,
			Status:     status,
			ResponseMs: int(end.Sub(start).Milliseconds()),
			HTTPCode:   last.StatusCode,
			CreatedAt:  end,
		},
		Attempts:  attempts,
		Cancelled: !last.Succeeded && ctx.Err() != nil,
		LastErr:   last.Err,
	}, nil
}

// attempt bounds one probe by its own deadline, even if the runner does not
// return promptly on cancellation.
func (e *Executor) attempt(ctx context.Context, runner Runner, monitor *db.Monitor) Attempt {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	done := make(chan Attempt, 1)
	go func() {
		done <- runner.Probe(attemptCtx, monitor)
	}()

	select {
	case a := <-done:
		if !a.Succeeded && a.Err == nil && attemptCtx.Err() != nil {
			a.Err = attemptCtx.Err()
		}
		return a
	case <-attemptCtx.Done():
		return failed(fmt.Errorf("attempt timed out: %w", attemptCtx.Err()))
	}
}

func (e *Executor) pause(ctx context.Context) bool {
	if e.backoff <= 0 {
		return true
	}

	wait := e.backoff/2 + rand.N(e.backoff/2+1)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
