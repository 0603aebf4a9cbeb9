package scheduler

import (
	"time"

	"github.com/leozw/uptime-pulse/internal/db"
)

// SelectDue returns the monitors that need a check at now: not paused, and
// either never checked or last checked at least one interval ago.
func SelectDue(monitors []*db.Monitor, now time.Time) []*db.Monitor {
	due := make([]*db.Monitor, 0, len(monitors))
	for _, m := range monitors {
		if isDue(m, now) {
			due = append(due, m)
		}
	}
	return due
}

func isDue(m *db.Monitor, now time.Time) bool {
	if m.Status == db.StatusPaused {
		return false
	}
	if m.LastChecked == nil {
		return true
	}
	return now.Sub(*m.LastChecked) >= m.Interval()
}
