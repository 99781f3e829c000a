// Package monitoring exposes Prometheus metrics for backtest runs and the HTTP surface.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairs"

type Metrics struct {
	registry *prometheus.Registry

	Runs         *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	Trades       *prometheus.CounterVec
	NetProfit    *prometheus.CounterVec
	Exports      *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on a private registry so several instances can coexist.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backtest", Name: "runs_total",
			Help: "Backtest runs by outcome",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "backtest", Name: "run_duration_seconds",
			Help:    "Wall time of one backtest run",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backtest", Name: "trades_total",
			Help: "Completed round trips by leg",
		}, []string{"leg"}),
		NetProfit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backtest", Name: "winning_trades_total",
			Help: "Round trips closed with positive net profit by leg",
		}, []string{"leg"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "export", Name: "rows_total",
			Help: "Trade rows written to a sink",
		}, []string{"sink"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.Runs, m.RunDuration, m.Trades, m.NetProfit, m.Exports, m.HTTPRequests, m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one finished run. trades maps leg name to (trades, winners).
func (m *Metrics) ObserveRun(err error, elapsed time.Duration, trades map[string][2]int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	for leg, n := range trades {
		m.Trades.WithLabelValues(leg).Add(float64(n[0]))
		m.NetProfit.WithLabelValues(leg).Add(float64(n[1]))
	}
}

func (m *Metrics) ObserveExport(sink string, rows int) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(sink).Add(float64(rows))
}

// GinMiddleware labels requests by route template to keep cardinality bounded.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
