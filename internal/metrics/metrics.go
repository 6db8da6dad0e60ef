package metrics

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector exports request and governance metrics to prometheus and
// keeps a small latency reservoir for the admin dashboard.
type MetricsCollector struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
	admissions *prometheus.CounterVec
	toolCalls  *prometheus.CounterVec

	mu            sync.RWMutex
	totalRequests uint64
	totalErrors   uint64
	statusCounts  map[int]uint64
	latencies     []time.Duration
	maxSamples    int
}

func NewCollector(maxSamples int) *MetricsCollector {
	c := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "textgate",
			Name:      "http_requests_total",
			Help:      "HTTP requests by status code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "textgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "textgate",
			Name:      "ratelimit_admissions_total",
			Help:      "Rate-limit admission decisions by tier and outcome.",
		}, []string{"tier", "outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "textgate",
			Name:      "tool_invocations_total",
			Help:      "Text tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		statusCounts: make(map[int]uint64),
		latencies:    make([]time.Duration, 0, maxSamples),
		maxSamples:   maxSamples,
	}
	c.registry.MustRegister(c.requests, c.duration, c.admissions, c.toolCalls)
	return c
}

func (c *MetricsCollector) Record(duration time.Duration, statusCode int) {
	c.requests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.duration.Observe(duration.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	if statusCode >= 400 {
		c.totalErrors++
	}
	c.statusCounts[statusCode]++

	// keep the last maxSamples latencies
	if c.maxSamples <= 0 {
		return
	}
	if len(c.latencies) == c.maxSamples {
		c.latencies = c.latencies[1:]
	}
	c.latencies = append(c.latencies, duration)
}

func (c *MetricsCollector) RecordAdmission(tier string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	c.admissions.WithLabelValues(tier, outcome).Inc()
}

func (c *MetricsCollector) RecordToolCall(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Handler serves the prometheus exposition format.
func (c *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *MetricsCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Stats is the dashboard view of recent traffic.
type Stats struct {
	TotalRequests uint64         `json:"total_requests"`
	TotalErrors   uint64         `json:"total_errors"`
	ErrorRate     float64        `json:"error_rate"`
	P50Latency    string         `json:"p50_latency"`
	P95Latency    string         `json:"p95_latency"`
	P99Latency    string         `json:"p99_latency"`
	StatusCounts  map[int]uint64 `json:"status_counts"`
}

func (c *MetricsCollector) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sorted := make([]time.Duration, len(c.latencies))
	copy(sorted, c.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	errorRate := 0.0
	if c.totalRequests > 0 {
		errorRate = float64(c.totalErrors) / float64(c.totalRequests)
	}

	sc := make(map[int]uint64, len(c.statusCounts))
	for k, v := range c.statusCounts {
		sc[k] = v
	}

	return Stats{
		TotalRequests: c.totalRequests,
		TotalErrors:   c.totalErrors,
		ErrorRate:     errorRate,
		P50Latency:    quantile(sorted, 0.50).String(),
		P95Latency:    quantile(sorted, 0.95).String(),
		P99Latency:    quantile(sorted, 0.99).String(),
		StatusCounts:  sc,
	}
}

func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*q)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
