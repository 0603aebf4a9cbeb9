package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/leozw/uptime-pulse/internal/api/handlers"
	"github.com/leozw/uptime-pulse/internal/config"
	"github.com/leozw/uptime-pulse/internal/db"
	"github.com/leozw/uptime-pulse/internal/metrics"
	"github.com/leozw/uptime-pulse/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeCycles struct {
	summary *scheduler.CycleSummary
	err     error
	calls   int
}

func (f *fakeCycles) RunCycle(ctx context.Context) (*scheduler.CycleSummary, error) {
	f.calls++
	return f.summary, f.err
}

const secret = "trigger-secret"

func newTestServer(t *testing.T, triggerSecret string, pinger fakePinger, cycles *fakeCycles) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		Auth:   config.AuthConfig{TriggerSecret: triggerSecret},
	}
	collector := metrics.NewCollector(config.MimirConfig{}, prometheus.NewRegistry())
	collector.RecordCycle("us-east-1", 3, time.Second, nil)

	h := handlers.NewHandler(pinger, cycles, collector, zaptest.NewLogger(t))
	return NewServer(cfg, h, zaptest.NewLogger(t))
}

func signedToken(t *testing.T, key string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "cron",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func trigger(s *Server, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/check-cycle", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestCheckCycle_Success(t *testing.T) {
	code := 200
	cycles := &fakeCycles{summary: &scheduler.CycleSummary{
		Checked:  2,
		Recorded: 1,
		Results: []*db.CheckResult{{
			ID: "r-1", MonitorID: "m-1", Region: "us-east-1", Status: db.StatusUp, ResponseMs: 87, HTTPCode: &code,
		}},
	}}
	s := newTestServer(t, secret, fakePinger{}, cycles)

	w := trigger(s, signedToken(t, secret, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success  bool              `json:"success"`
		Checked  int               `json:"checked"`
		Recorded int               `json:"recorded"`
		Results  []*db.CheckResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Checked)
	assert.Equal(t, 1, body.Recorded)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "m-1", body.Results[0].MonitorID)
	assert.Equal(t, 87, body.Results[0].ResponseMs)
}

func TestCheckCycle_Failure(t *testing.T) {
	cycles := &fakeCycles{err: fmt.Errorf("failed to list monitors: %w", errors.New("connection refused"))}
	s := newTestServer(t, "", fakePinger{}, cycles)

	w := trigger(s, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "connection refused")
}

func TestCheckCycle_Locked(t *testing.T) {
	s := newTestServer(t, "", fakePinger{}, &fakeCycles{err: scheduler.ErrCycleInProgress})

	w := trigger(s, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckCycle_Auth(t *testing.T) {
	tests := []struct {
		name   string
		token  func(t *testing.T) string
		header string
		status int
	}{
		{"missing header", func(t *testing.T) string { return "" }, "", http.StatusUnauthorized},
		{"not bearer", nil, "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong key", func(t *testing.T) string { return signedToken(t, "other", jwt.SigningMethodHS256) }, "", http.StatusUnauthorized},
		{"wrong algorithm", func(t *testing.T) string { return signedToken(t, secret, jwt.SigningMethodHS512) }, "", http.StatusUnauthorized},
		{"valid", func(t *testing.T) string { return signedToken(t, secret, jwt.SigningMethodHS256) }, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles := &fakeCycles{summary: &scheduler.CycleSummary{Results: []*db.CheckResult{}}}
			s := newTestServer(t, secret, fakePinger{}, cycles)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/check-cycle", nil)
			switch {
			case tt.header != "":
				req.Header.Set("Authorization", tt.header)
			case tt.token != nil:
				if token := tt.token(t); token != "" {
					req.Header.Set("Authorization", "Bearer "+token)
				}
			}
			w := httptest.NewRecorder()
			s.Router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				assert.Zero(t, cycles.calls)
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, secret, fakePinger{}, &fakeCycles{})

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down := newTestServer(t, secret, fakePinger{err: errors.New("no route to host")}, &fakeCycles{})
	w = httptest.NewRecorder()
	down.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, secret, fakePinger{}, &fakeCycles{})

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `uptime_cycle_monitors_due{region="us-east-1"} 3`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, secret, fakePinger{}, &fakeCycles{})

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/check-cycle", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
