package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/leozw/uptime-pulse/internal/config"
	"github.com/leozw/uptime-pulse/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitor() *db.Monitor {
	return &db.Monitor{ID: "m-1", UserID: "acct-1", Name: "api", Kind: db.MonitorKindHTTP}
}

func TestCollector_RecordCheck(t *testing.T) {
	c := NewCollector(config.MimirConfig{}, prometheus.NewRegistry())
	code := 503
	result := &db.CheckResult{
		MonitorID:  "m-1",
		Region:     "us-east-1",
		Status:     db.StatusDown,
		ResponseMs: 1200,
		HTTPCode:   &code,
		CreatedAt:  time.Unix(1700000000, 0),
	}

	c.RecordCheck(result, testMonitor(), 3)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.checkUp.WithLabelValues("acct-1", "m-1", "api", "http", "us-east-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checksTotal.WithLabelValues("acct-1", "m-1", "api", "http", "us-east-1", "down")))
	assert.Equal(t, 503.0, testutil.ToFloat64(c.checkResponseCode.WithLabelValues("acct-1", "m-1", "api", "us-east-1")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.lastCheckTime.WithLabelValues("acct-1", "m-1", "api")))
}

func TestCollector_RecordNotificationAndCycle(t *testing.T) {
	c := NewCollector(config.MimirConfig{}, prometheus.NewRegistry())

	c.RecordNotificationSent("acct-1", "m-1", "discord", true, 0.2)
	c.RecordNotificationSent("acct-1", "m-1", "discord", false, 0.2)
	c.RecordCycle("us-east-1", 7, time.Second, nil)
	c.RecordStats(testMonitor(), 98, 98)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.notificationsSent.WithLabelValues("acct-1", "m-1", "discord", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notificationsSent.WithLabelValues("acct-1", "m-1", "discord", "failed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.cycleMonitorsDue.WithLabelValues("us-east-1")))
	assert.Equal(t, 98.0, testutil.ToFloat64(c.uptimePercentage.WithLabelValues("acct-1", "m-1", "api")))
}

func TestCollector_RemoteWrite(t *testing.T) {
	var mu sync.Mutex
	tenants := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/push", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))

		compressed, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		data, err := snappy.Decode(nil, compressed)
		require.NoError(t, err)

		var req prompb.WriteRequest
		require.NoError(t, req.Unmarshal(data))

		mu.Lock()
		tenants[r.Header.Get("X-Scope-OrgID")] += len(req.Timeseries)
		mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewCollector(config.MimirConfig{
		URL:           srv.URL,
		TenantHeader:  "X-Scope-OrgID",
		DefaultTenant: "pulse",
		BatchSize:     2,
	}, prometheus.NewRegistry())

	c.RecordStats(testMonitor(), 100, 42)
	c.RecordPersistenceError("save_result")

	require.NoError(t, c.writeToMimir(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, tenants["acct-1"])
	assert.Equal(t, 1, tenants["pulse"])
}

func TestCollector_RemoteWriteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewCollector(config.MimirConfig{URL: srv.URL, TenantHeader: "X-Scope-OrgID", DefaultTenant: "pulse"}, prometheus.NewRegistry())
	c.RecordPersistenceError("save_result")

	assert.Error(t, c.writeToMimir(context.Background()))
}
