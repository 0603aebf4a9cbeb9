package alerts

import "github.com/leozw/uptime-pulse/internal/db"

type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionRecovered Transition = "recovered"
	TransitionDegraded  Transition = "degraded"
)

// Detect classifies the change between the previously stored status and a
// new check outcome. Leaving paused or pending never raises an alert.
func Detect(prev, next db.MonitorStatus) Transition {
	switch {
	case prev == db.StatusPaused || prev == db.StatusPending:
		return TransitionNone
	case prev == next:
		return TransitionNone
	case prev == db.StatusDown && next == db.StatusUp:
		return TransitionRecovered
	case prev == db.StatusUp && next == db.StatusDown:
		return TransitionDegraded
	default:
		return TransitionNone
	}
}

func Message(monitor *db.Monitor, t Transition) string {
	if t == TransitionDegraded {
		return `Monitor "` + monitor.Name + `" is DOWN. URL: ` + monitor.URL
	}
	return `Monitor "` + monitor.Name + `" is back UP. URL: ` + monitor.URL
}
