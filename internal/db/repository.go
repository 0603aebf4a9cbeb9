package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const monitorColumns = `
	id, user_id, name, url, monitor_type, expected_status, keyword,
	interval_sec, status, last_checked, uptime_percentage, avg_response_ms, created_at`

// Monitor registry

func (r *Repository) ListActiveMonitors(ctx context.Context) ([]*Monitor, error) {
	monitors := []*Monitor{}
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE status <> $1`

	err := r.db.SelectContext(ctx, &monitors, query, StatusPaused)
	return monitors, err
}

func (r *Repository) UpdateMonitorStatus(ctx context.Context, monitorID string, status MonitorStatus, lastChecked time.Time) error {
	query := `UPDATE monitors SET status = $2, last_checked = $3 WHERE id = $1`
	return r.execOne(ctx, query, monitorID, status, lastChecked)
}

func (r *Repository) UpdateMonitorStats(ctx context.Context, monitorID string, uptimePercentage float64, avgResponseMs int) error {
	query := `UPDATE monitors SET uptime_percentage = $2, avg_response_ms = $3 WHERE id = $1`
	return r.execOne(ctx, query, monitorID, uptimePercentage, avgResponseMs)
}

// Result store

func (r *Repository) SaveCheckResult(ctx context.Context, result *CheckResult) error {
	query := `
		INSERT INTO check_results (
			id, monitor_id, region, status, response_ms, http_code, created_at
		) VALUES (
			:id, :monitor_id, :region, :status, :response_ms, :http_code, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, result)
	return err
}

// GetRecentResults returns at most limit results created at or after since,
// newest first.
func (r *Repository) GetRecentResults(ctx context.Context, monitorID string, since time.Time, limit int) ([]*CheckResult, error) {
	results := []*CheckResult{}
	query := `
		SELECT id, monitor_id, region, status, response_ms, http_code, created_at
		FROM check_results
		WHERE monitor_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`

	err := r.db.SelectContext(ctx, &results, query, monitorID, since, limit)
	return results, err
}

// Alert channel directory

// GetIntegration returns nil without error when the account has no
// integration row.
func (r *Repository) GetIntegration(ctx context.Context, userID string) (*Integration, error) {
	var integration Integration
	query := `
		SELECT user_id, discord_webhook, slack_webhook, telegram_bot_key,
		       telegram_chat_id, email_enabled
		FROM integrations
		WHERE user_id = $1`

	err := r.db.GetContext(ctx, &integration, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *Repository) SaveAlert(ctx context.Context, alert *Alert) error {
	query := `
		INSERT INTO alerts (
			id, monitor_id, channel, message, success, delivered_at, created_at
		) VALUES (
			:id, :monitor_id, :channel, :message, :success, :delivered_at, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, alert)
	return err
}

var ErrMonitorNotFound = errors.New("monitor not found")

func (r *Repository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMonitorNotFound
	}
	return nil
}
