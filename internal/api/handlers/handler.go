package handlers

import (
	"context"

	"github.com/leozw/uptime-pulse/internal/metrics"
	"github.com/leozw/uptime-pulse/internal/scheduler"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type CycleRunner interface {
	RunCycle(ctx context.Context) (*scheduler.CycleSummary, error)
}

type Handler struct {
	repo    Pinger
	cycles  CycleRunner
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewHandler(repo Pinger, cycles CycleRunner, metrics *metrics.Collector, logger *zap.Logger) *Handler {
	return &Handler{
		repo:    repo,
		cycles:  cycles,
		metrics: metrics,
		logger:  logger,
	}
}
