package metrics

import (
	"net/http"
	"time"

	"github.com/leozw/uptime-pulse/internal/config"
	"github.com/leozw/uptime-pulse/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	config   *config.MimirConfig
	registry *prometheus.Registry
	client   *http.Client

	// Check metrics
	checkDuration     *prometheus.HistogramVec
	checkUp           *prometheus.GaugeVec
	checksTotal       *prometheus.CounterVec
	checkAttempts     *prometheus.HistogramVec
	checkResponseCode *prometheus.GaugeVec
	lastCheckTime     *prometheus.GaugeVec

	// Rolling stats
	uptimePercentage *prometheus.GaugeVec
	avgResponseMs    *prometheus.GaugeVec

	// Transitions and alerts
	transitionsTotal    *prometheus.CounterVec
	notificationsSent   *prometheus.CounterVec
	notificationLatency *prometheus.HistogramVec

	// Engine health
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     *prometheus.HistogramVec
	cycleMonitorsDue  *prometheus.GaugeVec
	persistenceErrors *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewCollector(cfg config.MimirConfig, reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		config:   &cfg,
		registry: reg,
		client:   &http.Client{Timeout: 30 * time.Second},

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uptime_check_duration_seconds",
				Help:    "End-to-end duration of a check including retries",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 90},
			},
			[]string{"tenant_id", "monitor_id", "monitor_name", "type", "region"},
		),

		checkUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_check_up",
				Help: "Whether the check is up (1) or down (0)",
			},
			[]string{"tenant_id", "monitor_id", "monitor_name", "type", "region"},
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_checks_total",
				Help: "Total number of recorded checks",
			},
			[]string{"tenant_id", "monitor_id", "monitor_name", "type", "region", "status"},
		),

		checkAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uptime_check_attempts",
				Help:    "Attempts needed to reach a check outcome",
				Buckets: []float64{1, 2, 3},
			},
			[]string{"tenant_id", "type"},
		),

		checkResponseCode: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_http_response_code",
				Help: "HTTP response code of the last check",
			},
			[]string{"tenant_id", "monitor_id", "monitor_name", "region"},
		),

		lastCheckTime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_last_check_timestamp",
				Help: "Timestamp of the last check for a monitor",
			},
			[]string{"tenant_id", "monitor_id", "monitor_name"},
		),

		uptimePercentage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_monitor_uptime_percentage",
				Help: "Rolling uptime percentage over the stats window",
			},
			[]string{"tenant_id", "monitor_id", "monitor_name"},
		),

		avgResponseMs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_monitor_avg_response_ms",
				Help: "Rolling average response time over the stats window",
			},
			[]string{"tenant_id", "monitor_id", "monitor_name"},
		),

		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_status_transitions_total",
				Help: "Total number of alert-worthy status transitions",
			},
			[]string{"tenant_id", "monitor_id", "transition"},
		),

		notificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_notifications_sent_total",
				Help: "Total number of notifications attempted",
			},
			[]string{"tenant_id", "monitor_id", "channel_type", "status"},
		),

		notificationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uptime_notification_latency_seconds",
				Help:    "Notification delivery latency",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tenant_id", "channel_type"},
		),

		cyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_cycles_total",
				Help: "Total number of check cycles by result",
			},
			[]string{"region", "result"},
		),

		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uptime_cycle_duration_seconds",
				Help:    "Duration of a full check cycle",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"region"},
		),

		cycleMonitorsDue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_cycle_monitors_due",
				Help: "Number of monitors due in the last cycle",
			},
			[]string{"region"},
		),

		persistenceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_persistence_errors_total",
				Help: "Failed writes to the registry or result store",
			},
			[]string{"operation"},
		),
	}
}

// Handler exposes the collector's registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordCheck(result *db.CheckResult, monitor *db.Monitor, attempts int) {
	baseLabels := prometheus.Labels{
		"tenant_id":    monitor.UserID,
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
		"type":         string(monitor.Kind),
		"region":       result.Region,
	}

	c.checkDuration.With(baseLabels).Observe(float64(result.ResponseMs) / 1000)

	upValue := 0.0
	if result.Status == db.StatusUp {
		upValue = 1.0
	}
	c.checkUp.With(baseLabels).Set(upValue)

	c.checksTotal.With(prometheus.Labels{
		"tenant_id":    monitor.UserID,
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
		"type":         string(monitor.Kind),
		"region":       result.Region,
		"status":       string(result.Status),
	}).Inc()

	c.checkAttempts.WithLabelValues(monitor.UserID, string(monitor.Kind)).Observe(float64(attempts))

	if result.HTTPCode != nil {
		c.checkResponseCode.With(prometheus.Labels{
			"tenant_id":    monitor.UserID,
			"monitor_id":   monitor.ID,
			"monitor_name": monitor.Name,
			"region":       result.Region,
		}).Set(float64(*result.HTTPCode))
	}

	c.lastCheckTime.WithLabelValues(monitor.UserID, monitor.ID, monitor.Name).
		Set(float64(result.CreatedAt.Unix()))
}

func (c *Collector) RecordStats(monitor *db.Monitor, uptimePercentage float64, avgResponseMs int) {
	c.uptimePercentage.WithLabelValues(monitor.UserID, monitor.ID, monitor.Name).Set(uptimePercentage)
	c.avgResponseMs.WithLabelValues(monitor.UserID, monitor.ID, monitor.Name).Set(float64(avgResponseMs))
}

func (c *Collector) RecordTransition(monitor *db.Monitor, transition string) {
	c.transitionsTotal.WithLabelValues(monitor.UserID, monitor.ID, transition).Inc()
}

func (c *Collector) RecordNotificationSent(tenantID, monitorID, channelType string, success bool, latencySeconds float64) {
	status := "success"
	if !success {
		status = "failed"
	}

	c.notificationsSent.WithLabelValues(tenantID, monitorID, channelType, status).Inc()
	c.notificationLatency.WithLabelValues(tenantID, channelType).Observe(latencySeconds)
}

func (c *Collector) RecordCycle(region string, due int, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}

	c.cyclesTotal.WithLabelValues(region, result).Inc()
	c.cycleDuration.WithLabelValues(region).Observe(duration.Seconds())
	if err == nil {
		c.cycleMonitorsDue.WithLabelValues(region).Set(float64(due))
	}
}

func (c *Collector) RecordPersistenceError(operation string) {
	c.persistenceErrors.WithLabelValues(operation).Inc()
}
