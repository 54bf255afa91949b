package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors exposed by pantin.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Fleet pool metrics
	PoolLiveHandles  prometheus.Gauge
	PoolIdleHandles  prometheus.Gauge
	AcquireDuration  prometheus.Histogram
	AcquireTimeouts  prometheus.Counter
	HandlesCreated   prometheus.Counter
	HandlesDiscarded *prometheus.CounterVec

	// Screenshot metrics
	ScreenshotDuration prometheus.Histogram
	ScreenshotErrors   *prometheus.CounterVec

	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates and registers the pantin Prometheus collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pantin_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pantin_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),

		PoolLiveHandles: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pantin_pool_live_handles",
			Help: "Number of browser handles currently live (idle + leased)",
		}),
		PoolIdleHandles: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pantin_pool_idle_handles",
			Help: "Number of browser handles currently idle in the pool",
		}),
		AcquireDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pantin_pool_acquire_duration_seconds",
			Help:    "Time spent waiting for a pool acquire to complete",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
		}),
		AcquireTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pantin_pool_acquire_timeouts_total",
			Help: "Total number of acquire calls that timed out",
		}),
		HandlesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pantin_pool_handles_created_total",
			Help: "Total number of browser handles created",
		}),
		HandlesDiscarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pantin_pool_handles_discarded_total",
				Help: "Total number of browser handles discarded, by reason",
			},
			[]string{"reason"},
		),

		ScreenshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pantin_screenshot_duration_seconds",
			Help:    "Time spent serving a screenshot request end-to-end",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		ScreenshotErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pantin_screenshot_errors_total",
				Help: "Total number of screenshot requests that failed, by cause",
			},
			[]string{"cause"},
		),

		Uptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pantin_uptime_seconds",
			Help: "Server uptime in seconds",
		}),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request observation.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAcquire records how long a pool acquire took.
func (m *Metrics) RecordAcquire(duration time.Duration, timedOut bool) {
	m.AcquireDuration.Observe(duration.Seconds())
	if timedOut {
		m.AcquireTimeouts.Inc()
	}
}

// RecordHandleCreated increments the handle-creation counter.
func (m *Metrics) RecordHandleCreated() {
	m.HandlesCreated.Inc()
}

// RecordHandleDiscarded increments the handle-discard counter for a reason.
func (m *Metrics) RecordHandleDiscarded(reason string) {
	m.HandlesDiscarded.WithLabelValues(reason).Inc()
}

// SetPoolSize publishes the current live/idle gauges.
func (m *Metrics) SetPoolSize(live, idle int) {
	m.PoolLiveHandles.Set(float64(live))
	m.PoolIdleHandles.Set(float64(idle))
}

// RecordScreenshot records a completed screenshot request.
func (m *Metrics) RecordScreenshot(duration time.Duration, cause string) {
	m.ScreenshotDuration.Observe(duration.Seconds())
	if cause != "" {
		m.ScreenshotErrors.WithLabelValues(cause).Inc()
	}
}
