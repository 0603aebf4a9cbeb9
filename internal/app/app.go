package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/leozw/uptime-pulse/internal/alerts"
	"github.com/leozw/uptime-pulse/internal/checks"
	"github.com/leozw/uptime-pulse/internal/config"
	"github.com/leozw/uptime-pulse/internal/db"
	"github.com/leozw/uptime-pulse/internal/metrics"
	"github.com/leozw/uptime-pulse/internal/scheduler"
	"github.com/leozw/uptime-pulse/internal/sla"
	redisstore "github.com/leozw/uptime-pulse/internal/storage/redis"
	"go.uber.org/zap"
)

// Engine is the fully wired check engine shared by the API and worker
// binaries.
type Engine struct {
	Config    *config.Config
	DB        *sqlx.DB
	Repo      *db.Repository
	Metrics   *metrics.Collector
	Scheduler *scheduler.Scheduler

	redis  *redisstore.Client
	logger *zap.Logger
}

func NewEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	database, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	e := &Engine{
		Config: cfg,
		DB:     database,
		Repo:   db.NewRepository(database),
		logger: logger,
	}
	e.Metrics = metrics.NewCollector(cfg.Mimir, metrics.NewRegistry())

	var resolver *checks.Resolver
	if cfg.Probe.Nameserver != "" {
		resolver = checks.NewResolver(cfg.Probe.Nameserver)
	}
	httpChecker := checks.NewHTTPChecker(cfg.Probe.UserAgent, cfg.Probe.MaxBodyBytes)
	runners := map[db.MonitorKind]checks.Runner{
		db.MonitorKindHTTP:    httpChecker,
		db.MonitorKindKeyword: checks.NewKeywordChecker(httpChecker),
		db.MonitorKindPort:    checks.NewPortChecker(resolver),
	}
	executor := checks.NewExecutor(runners, cfg.Engine.Region, logger,
		checks.WithMaxAttempts(cfg.Engine.MaxAttempts),
		checks.WithAttemptTimeout(cfg.Engine.AttemptTimeout),
		checks.WithBackoff(cfg.Engine.RetryBackoff),
	)

	client := &http.Client{Timeout: cfg.Alerts.DeliveryTimeout}
	notifiers := []alerts.Notifier{
		alerts.NewDiscordNotifier(client),
		alerts.NewSlackNotifier(client),
		alerts.NewTelegramNotifier(client, cfg.Alerts.TelegramAPIURL),
	}
	dispatcher := alerts.NewDispatcher(e.Repo, notifiers, cfg.Alerts, e.Metrics, logger)
	aggregator := sla.NewAggregator(e.Repo, e.Repo, cfg.Engine.StatsWindowSize, cfg.Engine.StatsWindowPeriod, logger)

	var opts []scheduler.Option
	if cfg.Redis.URL != "" {
		e.redis = redisstore.NewClient(cfg.Redis.URL)
		if err := e.redis.Ping(ctx).Err(); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		opts = append(opts, scheduler.WithCycleLock(e.redis, redisstore.CycleLockKey(cfg.Engine.Region), cfg.Redis.LockTTL))
		logger.Info("Cycle lock enabled", zap.String("key", redisstore.CycleLockKey(cfg.Engine.Region)))
	}

	e.Scheduler = scheduler.NewScheduler(e.Repo, e.Repo, executor, dispatcher, aggregator, e.Metrics, logger, cfg.Engine, opts...)

	return e, nil
}

// StartRemoteWrite pushes metrics to Mimir until ctx is done.
func (e *Engine) StartRemoteWrite(ctx context.Context) {
	go e.Metrics.StartRemoteWrite(ctx, e.logger)
}

func (e *Engine) Close() {
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if err := e.DB.Close(); err != nil {
		e.logger.Warn("Failed to close database", zap.Error(err))
	}
}

// NewLogger returns a development logger in gin debug mode and a production
// logger otherwise.
func NewLogger(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
