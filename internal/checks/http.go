package checks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leozw/uptime-pulse/internal/db"
)

const defaultExpectedStatus = http.StatusOK

type HTTPChecker struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

func NewHTTPChecker(userAgent string, maxBodyBytes int64) *HTTPChecker {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 5 << 20
	}
	return &HTTPChecker{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
	}
}

// Probe succeeds iff the response status equals the monitor's expected status.
func (h *HTTPChecker) Probe(ctx context.Context, monitor *db.Monitor) Attempt {
	code, _, err := h.fetch(ctx, monitor.URL, false)
	if err != nil {
		return Attempt{StatusCode: code, Err: err}
	}

	expected := monitor.ExpectedStatus
	if expected == 0 {
		expected = defaultExpectedStatus
	}

	if *code != expected {
		return Attempt{
			StatusCode: code,
			Err:        fmt.Errorf("unexpected status code: %d (expected %d)", *code, expected),
		}
	}
	return Attempt{StatusCode: code, Succeeded: true}
}

func (h *HTTPChecker) fetch(ctx context.Context, url string, readBody bool) (*int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	if !readBody {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, h.maxBodyBytes))
		return &code, "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodyBytes))
	if err != nil {
		return &code, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return &code, string(body), nil
}

// KeywordChecker decides on body content only; the status code is recorded
// but never part of the decision.
type KeywordChecker struct {
	http *HTTPChecker
}

func NewKeywordChecker(h *HTTPChecker) *KeywordChecker {
	return &KeywordChecker{http: h}
}

var errKeywordMissing = errors.New("keyword not found in response")

func (k *KeywordChecker) Probe(ctx context.Context, monitor *db.Monitor) Attempt {
	code, body, err := k.http.fetch(ctx, monitor.URL, true)
	if err != nil {
		return Attempt{StatusCode: code, Err: err}
	}

	attempt := Attempt{StatusCode: code, Body: body}

	if monitor.Keyword == nil || *monitor.Keyword == "" {
		// Nothing to search for: fall back to any 2xx.
		attempt.Succeeded = *code >= 200 && *code < 300
		if !attempt.Succeeded {
			attempt.Err = fmt.Errorf("unexpected status code: %d", *code)
		}
		return attempt
	}

	if !strings.Contains(body, *monitor.Keyword) {
		attempt.Err = errKeywordMissing
		return attempt
	}

	attempt.Succeeded = true
	return attempt
}
