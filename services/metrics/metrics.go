package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by the Prometheus metrics and by Noop.
type Recorder interface {
	RecordRefresh(provider, outcome string, duration time.Duration)
	RecordRetry(provider, errorType string)
	RecordRateLimited(scope string)
	RecordLockTimeout(provider string)
	RecordScheduled(queue string)
	RecordScanResult(scheduled, skipped, failed int)
	RecordNotification(errorType string, sent bool)
	RecordJob(name, status string)
}

var _ Recorder = (*Metrics)(nil)

type Metrics struct {
	RefreshTotal       *prometheus.CounterVec
	RefreshDuration    *prometheus.HistogramVec
	RetriesTotal       *prometheus.CounterVec
	RateLimitedTotal   *prometheus.CounterVec
	LockTimeoutsTotal  *prometheus.CounterVec
	ScheduledTotal     *prometheus.CounterVec
	ScanTokensTotal    *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	JobsProcessedTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns the Prometheus recorder when enabled and Noop otherwise.
// Collectors are registered once per process.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoop()
	}

	once.Do(func() {
		defaultMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return defaultMetrics
}

// NewWithRegistry registers a fresh set of collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		RefreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_refresh_total",
			Help: "Coordinated token refreshes by provider and outcome",
		}, []string{"provider", "outcome"}),
		RefreshDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudtoken_refresh_duration_seconds",
			Help:    "Duration of coordinated token refreshes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_provider_retries_total",
			Help: "Provider call retries by error type",
		}, []string{"provider", "error_type"}),
		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_refresh_rate_limited_total",
			Help: "Refresh attempts blocked by the per-user or per-IP limit",
		}, []string{"scope"}),
		LockTimeoutsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_refresh_lock_timeouts_total",
			Help: "Refresh attempts that gave up waiting for the lock",
		}, []string{"provider"}),
		ScheduledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_refresh_scheduled_total",
			Help: "Proactive refresh jobs dispatched by queue",
		}, []string{"queue"}),
		ScanTokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_scan_tokens_total",
			Help: "Tokens handled by expiry scans by result",
		}, []string{"result"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_notifications_total",
			Help: "Connection failure notifications by error type",
		}, []string{"error_type", "status"}),
		JobsProcessedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtoken_jobs_processed_total",
			Help: "Queue jobs processed by name and status",
		}, []string{"job", "status"}),
	}
}

func (m *Metrics) RecordRefresh(provider, outcome string, duration time.Duration) {
	m.RefreshTotal.WithLabelValues(provider, outcome).Inc()
	m.RefreshDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordRetry(provider, errorType string) {
	m.RetriesTotal.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordRateLimited(scope string) {
	m.RateLimitedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordLockTimeout(provider string) {
	m.LockTimeoutsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordScheduled(queue string) {
	m.ScheduledTotal.WithLabelValues(queue).Inc()
}

func (m *Metrics) RecordScanResult(scheduled, skipped, failed int) {
	m.ScanTokensTotal.WithLabelValues("scheduled").Add(float64(scheduled))
	m.ScanTokensTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.ScanTokensTotal.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) RecordNotification(errorType string, sent bool) {
	status := "throttled"
	if sent {
		status = "sent"
	}
	m.NotificationsTotal.WithLabelValues(errorType, status).Inc()
}

func (m *Metrics) RecordJob(name, status string) {
	m.JobsProcessedTotal.WithLabelValues(name, status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
