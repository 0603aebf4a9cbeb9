package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/leozw/uptime-pulse/internal/app"
	"github.com/leozw/uptime-pulse/internal/config"
	"github.com/leozw/uptime-pulse/internal/scheduler"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.NewEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}
	defer engine.Close()

	engine.StartRemoteWrite(ctx)

	// SkipIfStillRunning keeps a slow cycle from overlapping the next tick
	// within this process; the redis lock covers other processes.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(cfg.Engine.Schedule, func() {
		summary, err := engine.Scheduler.RunCycle(ctx)
		switch {
		case errors.Is(err, scheduler.ErrCycleInProgress):
			logger.Info("Skipping cycle, another instance holds the lock")
		case err != nil:
			logger.Error("Check cycle failed", zap.Error(err))
		default:
			logger.Debug("Check cycle finished",
				zap.Int("checked", summary.Checked),
				zap.Int("recorded", summary.Recorded),
			)
		}
	})
	if err != nil {
		logger.Fatal("Invalid engine schedule", zap.String("schedule", cfg.Engine.Schedule), zap.Error(err))
	}

	c.Start()
	logger.Info("Worker started",
		zap.String("schedule", cfg.Engine.Schedule),
		zap.String("region", cfg.Engine.Region),
		zap.Int("worker_count", cfg.Engine.WorkerCount),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	<-c.Stop().Done()
	logger.Info("Worker exited")
}
