package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/leozw/uptime-pulse/internal/db"
)

var ErrPortMissing = errors.New("port target requires a port number")

// PortChecker succeeds when the remote host accepts a TCP connection.
type PortChecker struct {
	resolver *Resolver
	dialer   net.Dialer
}

// NewPortChecker uses the system resolver when resolver is nil.
func NewPortChecker(resolver *Resolver) *PortChecker {
	return &PortChecker{resolver: resolver}
}

func (p *PortChecker) Probe(ctx context.Context, monitor *db.Monitor) Attempt {
	host, port, err := portTarget(monitor.URL)
	if err != nil {
		return failed(err)
	}

	if p.resolver != nil {
		host, err = p.resolver.LookupHost(ctx, host)
		if err != nil {
			return failed(err)
		}
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return failed(fmt.Errorf("connection failed: %w", err))
	}
	conn.Close()

	return Attempt{Succeeded: true}
}

// portTarget accepts host:port, tcp://host:port and http(s) URLs, where the
// scheme supplies the default port.
func portTarget(target string) (string, string, error) {
	if !strings.Contains(target, "://") {
		host, port, err := net.SplitHostPort(target)
		if err != nil {
			return "", "", fmt.Errorf("invalid port target %q: %w", target, err)
		}
		return host, port, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("invalid port target %q: %w", target, err)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return "", "", ErrPortMissing
		}
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("invalid port target %q: missing host", target)
	}

	return u.Hostname(), port, nil
}
