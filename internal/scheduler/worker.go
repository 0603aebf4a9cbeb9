package scheduler

import (
	"context"

	"github.com/leozw/uptime-pulse/internal/db"
	"go.uber.org/zap"
)

// report is what one monitor's pipeline contributes to the cycle summary.
type report struct {
	checked bool
	result  *db.CheckResult
}

type worker struct {
	id        int
	workQueue <-chan *db.Monitor
	reports   chan<- report
	process   func(ctx context.Context, monitor *db.Monitor) report
	logger    *zap.Logger
}

func newWorker(id int, workQueue <-chan *db.Monitor, reports chan<- report, process func(context.Context, *db.Monitor) report, logger *zap.Logger) *worker {
	return &worker{
		id:        id,
		workQueue: workQueue,
		reports:   reports,
		process:   process,
		logger:    logger.With(zap.Int("worker_id", id)),
	}
}

// Start drains the work queue until it is closed or ctx ends. Monitors still
// queued at cancellation are dropped; the next cycle picks them up again.
func (w *worker) Start(ctx context.Context) {
	w.logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker stopped")
			return
		case monitor, ok := <-w.workQueue:
			if !ok {
				return
			}
			w.reports <- w.process(ctx, monitor)
		}
	}
}
