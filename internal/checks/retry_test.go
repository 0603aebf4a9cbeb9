package checks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leozw/uptime-pulse/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedRunner replays one attempt per call; calls beyond the script
// repeat the last entry.
type scriptedRunner struct {
	script []Attempt
	calls  atomic.Int32
}

func (r *scriptedRunner) Probe(ctx context.Context, monitor *db.Monitor) Attempt {
	n := int(r.calls.Add(1)) - 1
	if n >= len(r.script) {
		n = len(r.script) - 1
	}
	return r.script[n]
}

// hangingRunner never answers before its context ends.
type hangingRunner struct {
	calls atomic.Int32
}

func (r *hangingRunner) Probe(ctx context.Context, monitor *db.Monitor) Attempt {
	r.calls.Add(1)
	<-ctx.Done()
	return Attempt{Err: ctx.Err()}
}

// stubbornRunner ignores cancellation entirely.
type stubbornRunner struct{}

func (stubbornRunner) Probe(ctx context.Context, monitor *db.Monitor) Attempt {
	time.Sleep(time.Second)
	return Attempt{Succeeded: true}
}

func code(c int) *int { return &c }

func newExecutor(t *testing.T, runner Runner, opts ...ExecutorOption) *Executor {
	t.Helper()
	runners := map[db.MonitorKind]Runner{db.MonitorKindHTTP: runner}
	return NewExecutor(runners, "us-east-1", zaptest.NewLogger(t), opts...)
}

var httpMonitor = &db.Monitor{ID: "m-1", Kind: db.MonitorKindHTTP, URL: "https://example.com", ExpectedStatus: 200}

func TestExecutor_FirstAttemptSucceeds(t *testing.T) {
	runner := &scriptedRunner{script: []Attempt{{StatusCode: code(200), Succeeded: true}}}

	out, err := newExecutor(t, runner).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, int32(1), runner.calls.Load(), "success must short-circuit the remaining attempts")
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.Cancelled)
	assert.Equal(t, db.StatusUp, out.Result.Status)
	assert.Equal(t, "us-east-1", out.Result.Region)
	assert.Equal(t, "m-1", out.Result.MonitorID)
	assert.NotEmpty(t, out.Result.ID)
	require.NotNil(t, out.Result.HTTPCode)
	assert.Equal(t, 200, *out.Result.HTTPCode)
}

func TestExecutor_SucceedsOnSecondAttempt(t *testing.T) {
	runner := &scriptedRunner{script: []Attempt{
		{StatusCode: code(502), Err: errors.New("bad gateway")},
		{StatusCode: code(200), Succeeded: true},
	}}

	out, err := newExecutor(t, runner).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, int32(2), runner.calls.Load())
	assert.Equal(t, db.StatusUp, out.Result.Status)
	assert.Equal(t, 200, *out.Result.HTTPCode, "code comes from the decisive attempt")
}

func TestExecutor_NeverMoreThanThreeAttempts(t *testing.T) {
	runner := &scriptedRunner{script: []Attempt{{StatusCode: code(500), Err: errors.New("boom")}}}

	out, err := newExecutor(t, runner).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, int32(3), runner.calls.Load())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, db.StatusDown, out.Result.Status)
	assert.Equal(t, 500, *out.Result.HTTPCode)
}

func TestExecutor_MaxAttemptsCannotExceedThree(t *testing.T) {
	runner := &scriptedRunner{script: []Attempt{{Err: errors.New("down")}}}

	_, err := newExecutor(t, runner, WithMaxAttempts(10)).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, int32(3), runner.calls.Load())
}

func TestExecutor_DecisiveAttemptWithoutResponse(t *testing.T) {
	runner := &scriptedRunner{script: []Attempt{
		{StatusCode: code(503), Err: errors.New("unavailable")},
		{Err: errors.New("connection refused")},
	}}

	out, err := newExecutor(t, runner).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, db.StatusDown, out.Result.Status)
	assert.Nil(t, out.Result.HTTPCode)
}

func TestExecutor_TimeoutsBecomeFailedAttempts(t *testing.T) {
	runner := &hangingRunner{}

	out, err := newExecutor(t, runner, WithAttemptTimeout(20*time.Millisecond)).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, int32(3), runner.calls.Load())
	assert.Equal(t, db.StatusDown, out.Result.Status)
	assert.Greater(t, out.Result.ResponseMs, 0)
	assert.GreaterOrEqual(t, out.Result.ResponseMs, 60)
	assert.Nil(t, out.Result.HTTPCode)
	assert.False(t, out.Cancelled)
}

func TestExecutor_TimeoutEnforcedOnUncooperativeRunner(t *testing.T) {
	start := time.Now()
	out, err := newExecutor(t, stubbornRunner{}, WithAttemptTimeout(10*time.Millisecond), WithMaxAttempts(1)).
		Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, db.StatusDown, out.Result.Status)
}

func TestExecutor_ResponseTimeSpansWholeSequence(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(2500 * time.Millisecond)}
	i := 0
	clock := func() time.Time {
		now := ticks[i]
		i++
		return now
	}

	runner := &scriptedRunner{script: []Attempt{
		{Err: errors.New("reset")},
		{StatusCode: code(200), Succeeded: true},
	}}

	out, err := newExecutor(t, runner, WithClock(clock)).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, 2500, out.Result.ResponseMs)
	assert.Equal(t, ticks[1], out.Result.CreatedAt)
}

func TestExecutor_CancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &scriptedRunner{script: []Attempt{{Succeeded: true}}}
	out, err := newExecutor(t, runner).Run(ctx, httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, int32(0), runner.calls.Load())
	assert.True(t, out.Cancelled)
}

func TestExecutor_BackoffBetweenAttempts(t *testing.T) {
	runner := &scriptedRunner{script: []Attempt{{Err: errors.New("down")}}}

	start := time.Now()
	_, err := newExecutor(t, runner, WithBackoff(20*time.Millisecond)).Run(context.Background(), httpMonitor)
	require.NoError(t, err)

	assert.Equal(t, int32(3), runner.calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestExecutor_UnsupportedKind(t *testing.T) {
	_, err := newExecutor(t, &scriptedRunner{}).Run(context.Background(), &db.Monitor{Kind: "smtp"})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}
