package checks

import (
	"context"

	"github.com/leozw/uptime-pulse/internal/db"
)

// Attempt is the outcome of a single network probe.
type Attempt struct {
	StatusCode *int
	Succeeded  bool
	Body       string
	// Err explains a failed attempt. It is only ever logged.
	Err error
}

// Runner performs exactly one probe against a monitor target. Implementations
// must honour ctx cancellation and never panic on network errors.
type Runner interface {
	Probe(ctx context.Context, monitor *db.Monitor) Attempt
}

func failed(err error) Attempt {
	return Attempt{Err: err}
}
