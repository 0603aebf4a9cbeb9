package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/uptime-pulse/internal/config"
	"github.com/leozw/uptime-pulse/internal/db"
	"github.com/leozw/uptime-pulse/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChannelDirectory resolves per-account channel configuration and records
// dispatch attempts.
type ChannelDirectory interface {
	GetIntegration(ctx context.Context, userID string) (*db.Integration, error)
	SaveAlert(ctx context.Context, alert *db.Alert) error
}

type Dispatcher struct {
	directory       ChannelDirectory
	notifiers       map[string]Notifier
	rateLimit       rate.Limit
	burst           int
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
	defaultChannel  string
	deliveryTimeout time.Duration
	metrics         *metrics.Collector
	logger          *zap.Logger
	now             func() time.Time
}

func NewDispatcher(directory ChannelDirectory, notifiers []Notifier, cfg config.AlertsConfig, metrics *metrics.Collector, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		directory:       directory,
		notifiers:       make(map[string]Notifier, len(notifiers)),
		rateLimit:       rate.Limit(cfg.RateLimit),
		burst:           cfg.Burst,
		limiters:        make(map[string]*rate.Limiter),
		defaultChannel:  cfg.DefaultChannel,
		deliveryTimeout: cfg.DeliveryTimeout,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
	}
	if d.deliveryTimeout <= 0 {
		d.deliveryTimeout = 10 * time.Second
	}
	if d.burst < 1 {
		d.burst = 1
	}

	for _, n := range notifiers {
		d.notifiers[n.Type()] = n
	}

	return d
}

// Dispatch delivers one notification per resolved channel and records one
// Alert per channel, whether or not delivery succeeded. A none transition
// dispatches nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, monitor *db.Monitor, t Transition) ([]*db.Alert, error) {
	if t == TransitionNone {
		return nil, nil
	}

	integration, err := d.directory.GetIntegration(ctx, monitor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get integrations: %w", err)
	}

	channels := ResolveChannels(integration, d.defaultChannel)
	if len(channels) == 0 {
		d.logger.Debug("No alert channels configured", zap.String("monitor_id", monitor.ID))
		return nil, nil
	}

	n := Notification{
		MonitorID:   monitor.ID,
		MonitorName: monitor.Name,
		URL:         monitor.URL,
		Transition:  t,
		Message:     Message(monitor, t),
		Timestamp:   d.now(),
	}

	alerts := make([]*db.Alert, 0, len(channels))
	for _, ch := range channels {
		start := time.Now()
		sendErr := d.deliver(ctx, ch, n)
		success := sendErr == nil

		d.metrics.RecordNotificationSent(monitor.UserID, monitor.ID, ch.Type, success, time.Since(start).Seconds())

		alert := &db.Alert{
			ID:        uuid.New().String(),
			MonitorID: monitor.ID,
			Channel:   ch.Type,
			Message:   n.Message,
			Success:   success,
			CreatedAt: d.now(),
		}
		if success {
			deliveredAt := d.now()
			alert.DeliveredAt = &deliveredAt
		} else {
			d.logger.Warn("Alert delivery failed",
				zap.String("monitor_id", monitor.ID),
				zap.String("channel", ch.Type),
				zap.Error(sendErr),
			)
		}

		if err := d.directory.SaveAlert(ctx, alert); err != nil {
			d.metrics.RecordPersistenceError("save_alert")
			d.logger.Error("Failed to save alert",
				zap.Error(err),
				zap.String("monitor_id", monitor.ID),
				zap.String("channel", ch.Type),
			)
			continue
		}
		alerts = append(alerts, alert)
	}

	d.logger.Info("Alerts dispatched",
		zap.String("monitor_id", monitor.ID),
		zap.String("transition", string(t)),
		zap.Int("channels", len(channels)),
		zap.Int("recorded", len(alerts)),
	)

	return alerts, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, n Notification) error {
	notifier, ok := d.notifiers[ch.Type]
	if !ok || ch.Endpoint == "" {
		return fmt.Errorf("%w: %s", ErrNoTransport, ch.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	if limiter := d.limiter(ch); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	return notifier.Send(ctx, ch, n)
}

// limiter returns the rate limiter of one delivery endpoint, so a busy
// account never throttles another account's webhook.
func (d *Dispatcher) limiter(ch Channel) *rate.Limiter {
	if d.rateLimit <= 0 {
		return nil
	}

	key := ch.Type + "|" + ch.Endpoint
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[key]
	if !ok {
		l = rate.NewLimiter(d.rateLimit, d.burst)
		d.limiters[key] = l
	}
	return l
}
