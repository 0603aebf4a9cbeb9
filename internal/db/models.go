package db

import (
	"time"
)

type MonitorKind string

const (
	MonitorKindHTTP    MonitorKind = "http"
	MonitorKindKeyword MonitorKind = "keyword"
	MonitorKindPort    MonitorKind = "port"
)

type MonitorStatus string

const (
	StatusUp      MonitorStatus = "up"
	StatusDown    MonitorStatus = "down"
	StatusPaused  MonitorStatus = "paused"
	StatusPending MonitorStatus = "pending"
)

// Monitor is owned by the registry. The engine only writes Status,
// LastChecked, UptimePercentage and AvgResponseMs.
type Monitor struct {
	ID               string        `json:"id" db:"id"`
	UserID           string        `json:"user_id" db:"user_id"`
	Name             string        `json:"name" db:"name"`
	URL              string        `json:"url" db:"url"`
	Kind             MonitorKind   `json:"monitor_type" db:"monitor_type"`
	ExpectedStatus   int           `json:"expected_status" db:"expected_status"`
	Keyword          *string       `json:"keyword,omitempty" db:"keyword"`
	IntervalSec      int           `json:"interval_sec" db:"interval_sec"`
	Status           MonitorStatus `json:"status" db:"status"`
	LastChecked      *time.Time    `json:"last_checked,omitempty" db:"last_checked"`
	UptimePercentage float64       `json:"uptime_percentage" db:"uptime_percentage"`
	AvgResponseMs    int           `json:"avg_response_ms" db:"avg_response_ms"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalSec) * time.Second
}

// CheckResult is one authoritative outcome of a retry sequence.
type CheckResult struct {
	ID         string        `json:"id" db:"id"`
	MonitorID  string        `json:"monitor_id" db:"monitor_id"`
	Region     string        `json:"region" db:"region"`
	Status     MonitorStatus `json:"status" db:"status"`
	ResponseMs int           `json:"response_ms" db:"response_ms"`
	HTTPCode   *int          `json:"http_code" db:"http_code"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

type Alert struct {
	ID          string     `json:"id" db:"id"`
	MonitorID   string     `json:"monitor_id" db:"monitor_id"`
	Channel     string     `json:"channel" db:"channel"`
	Message     string     `json:"message" db:"message"`
	Success     bool       `json:"success" db:"success"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Integration holds one account's alert channel configuration.
type Integration struct {
	UserID         string  `json:"user_id" db:"user_id"`
	DiscordWebhook *string `json:"discord_webhook,omitempty" db:"discord_webhook"`
	SlackWebhook   *string `json:"slack_webhook,omitempty" db:"slack_webhook"`
	TelegramBotKey *string `json:"telegram_bot_key,omitempty" db:"telegram_bot_key"`
	TelegramChatID *string `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	EmailEnabled   bool    `json:"email_enabled" db:"email_enabled"`
}
