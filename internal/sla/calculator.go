package sla

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/leozw/uptime-pulse/internal/db"
	"go.uber.org/zap"
)

const (
	DefaultWindowSize   = 100
	DefaultWindowPeriod = 24 * time.Hour
)

type ResultHistory interface {
	GetRecentResults(ctx context.Context, monitorID string, since time.Time, limit int) ([]*db.CheckResult, error)
}

type StatsWriter interface {
	UpdateMonitorStats(ctx context.Context, monitorID string, uptimePercentage float64, avgResponseMs int) error
}

// Stats are the rolling reliability figures of one monitor.
type Stats struct {
	Samples          int
	UptimePercentage float64
	AvgResponseMs    int
}

type Aggregator struct {
	history      ResultHistory
	writer       StatsWriter
	windowSize   int
	windowPeriod time.Duration
	logger       *zap.Logger
}

func NewAggregator(history ResultHistory, writer StatsWriter, windowSize int, windowPeriod time.Duration, logger *zap.Logger) *Aggregator {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	if windowPeriod <= 0 {
		windowPeriod = DefaultWindowPeriod
	}
	return &Aggregator{
		history:      history,
		writer:       writer,
		windowSize:   windowSize,
		windowPeriod: windowPeriod,
		logger:       logger,
	}
}

// Compute reduces a window of results to stats. It returns nil for an empty
// window.
func Compute(results []*db.CheckResult) *Stats {
	if len(results) == 0 {
		return nil
	}

	up := 0
	totalResponseMs := int64(0)
	for _, r := range results {
		if r.Status == db.StatusUp {
			up++
		}
		totalResponseMs += int64(r.ResponseMs)
	}

	n := float64(len(results))
	uptime := math.Round(float64(up)/n*100*100) / 100

	return &Stats{
		Samples:          len(results),
		UptimePercentage: uptime,
		AvgResponseMs:    int(math.Round(float64(totalResponseMs) / n)),
	}
}

// Recompute refreshes the stored stats of a monitor from its recent window.
// With no results in the window it leaves the stored stats untouched and
// returns nil.
func (a *Aggregator) Recompute(ctx context.Context, monitorID string, now time.Time) (*Stats, error) {
	results, err := a.history.GetRecentResults(ctx, monitorID, now.Add(-a.windowPeriod), a.windowSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent results: %w", err)
	}

	stats := Compute(results)
	if stats == nil {
		a.logger.Debug("No results in stats window", zap.String("monitor_id", monitorID))
		return nil, nil
	}

	if err := a.writer.UpdateMonitorStats(ctx, monitorID, stats.UptimePercentage, stats.AvgResponseMs); err != nil {
		return nil, fmt.Errorf("failed to update monitor stats: %w", err)
	}

	return stats, nil
}
