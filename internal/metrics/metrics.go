package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the CBUMS backend.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Coin ledger.
	CoinTransfersTotal  *prometheus.CounterVec
	CoinTransferRejects *prometheus.CounterVec

	// Trip lifecycle.
	TripTransitionsTotal   *prometheus.CounterVec
	SealVerificationsTotal *prometheus.CounterVec

	// Activity recorder.
	RecorderEntriesTotal     prometheus.Counter
	RecorderFlushErrorsTotal prometheus.Counter

	// Uploads.
	UploadsTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbums_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbums_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"reason"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_auth_successes_total",
			Help: "Total number of successful logins.",
		}, []string{"role"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		CoinTransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_coin_transfers_total",
			Help: "Total number of completed coin transfers.",
		}, []string{"kind"}),

		CoinTransferRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_coin_transfer_rejects_total",
			Help: "Total number of rejected coin transfers.",
		}, []string{"reason"}),

		TripTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_trip_transitions_total",
			Help: "Total number of trip status transitions.",
		}, []string{"to_status"}),

		SealVerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_seal_verifications_total",
			Help: "Total number of seal verification attempts.",
		}, []string{"result"}),

		RecorderEntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbums_recorder_entries_total",
			Help: "Total number of activity entries recorded.",
		}),

		RecorderFlushErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbums_recorder_flush_errors_total",
			Help: "Total number of failed activity flushes.",
		}),

		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbums_uploads_total",
			Help: "Total number of file upload attempts.",
		}, []string{"result"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cbums_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.RateLimitRejectionsTotal,
		m.CoinTransfersTotal,
		m.CoinTransferRejects,
		m.TripTransitionsTotal,
		m.SealVerificationsTotal,
		m.RecorderEntriesTotal,
		m.RecorderFlushErrorsTotal,
		m.UploadsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, duration time.Duration, responseSize int) {
	code := fmt.Sprintf("%d", statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, pathPattern).Observe(float64(responseSize))
}

// IncAuthFailure increments the auth failure counter for the given reason.
func (m *Metrics) IncAuthFailure(reason string) {
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// IncAuthSuccess increments the auth success counter for the given role.
func (m *Metrics) IncAuthSuccess(role string) {
	m.AuthSuccessesTotal.WithLabelValues(role).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// IncCoinTransfer increments the completed transfer counter. kind is
// "allocate" for top-downs and "transfer" for peer movements.
func (m *Metrics) IncCoinTransfer(kind string) {
	m.CoinTransfersTotal.WithLabelValues(kind).Inc()
}

// IncCoinTransferReject increments the rejected transfer counter.
func (m *Metrics) IncCoinTransferReject(reason string) {
	m.CoinTransferRejects.WithLabelValues(reason).Inc()
}

// IncTripTransition increments the transition counter for the target status.
func (m *Metrics) IncTripTransition(toStatus string) {
	m.TripTransitionsTotal.WithLabelValues(toStatus).Inc()
}

// IncSealVerification increments the verification counter. result is "match",
// "mismatch" or "error".
func (m *Metrics) IncSealVerification(result string) {
	m.SealVerificationsTotal.WithLabelValues(result).Inc()
}

// IncUpload increments the upload counter. result is "ok", "too_large" or
// "unsupported".
func (m *Metrics) IncUpload(result string) {
	m.UploadsTotal.WithLabelValues(result).Inc()
}
