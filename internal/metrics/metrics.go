// Package metrics exposes Prometheus collectors for the read API and pushes
// batch-run metrics to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const maxLabelLen = 64

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	apiRowsServedTotal         *prometheus.CounterVec
	apiGroupRequestsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
		)

		apiRowsServedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lognorm_api_rows_served_total",
				Help: "Rows returned by the read API, labeled by endpoint.",
			},
			[]string{"endpoint"},
		)

		apiGroupRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lognorm_api_group_requests_total",
				Help: "Grouped count requests, labeled by grouping column.",
			},
			[]string{"column"},
		)
	})
}

// SanitizeLabel lowercases s and replaces anything outside [a-z0-9_] so
// column names such as "cs(User-Agent)" become valid, bounded label values.
// It returns "unknown" for blank input.
func SanitizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= maxLabelLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRowsServed counts rows returned by endpoint.
func ObserveRowsServed(endpoint string, rows int) {
	if rows > 0 {
		apiRowsServedTotal.WithLabelValues(endpoint).Add(float64(rows))
	}
}

// ObserveGroupRequest counts a grouped read on column.
func ObserveGroupRequest(column string) {
	apiGroupRequestsTotal.WithLabelValues(SanitizeLabel(column)).Inc()
}

// Push sends everything g gathers to the Pushgateway at url under job,
// replacing the job's previous metrics.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
