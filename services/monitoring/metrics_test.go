package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun(nil, 20*time.Millisecond, map[string][2]int{"buy": {3, 2}, "short": {3, 1}})
	m.ObserveRun(errors.New("boom"), time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Trades.WithLabelValues("short")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NetProfit.WithLabelValues("buy")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRun(nil, time.Second, nil)
	m.ObserveExport("sqlite", 4)
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/v1/backtests/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/backtests/"+id, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/v1/backtests/:id", "GET", "404")))

	m.ObserveExport("clickhouse", 7)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `pairs_export_rows_total{sink="clickhouse"} 7`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
