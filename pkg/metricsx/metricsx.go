// Package metricsx holds the Prometheus collectors the SDK reports into.
//
// A nil *Metrics is valid and records nothing, so callers that do not care
// about metrics never have to construct one.
package metricsx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "irn"

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomeBusiness  = "business_error"
	OutcomeNetwork   = "network_error"
	OutcomeCrypto    = "crypto_error"
)

// Metrics groups the collectors for one registry.
type Metrics struct {
	CacheLookups    *prometheus.CounterVec
	CacheWrites     *prometheus.CounterVec
	AuthRequests    *prometheus.CounterVec
	APIRequests     *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Passing nil uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_cache",
			Name:      "lookups_total",
			Help:      "Token cache lookups by result (hit, miss, expired, error).",
		}, []string{"result"}),
		CacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_cache",
			Name:      "writes_total",
			Help:      "Token cache writes by result (ok, error).",
		}, []string{"result"}),
		AuthRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_requests_total",
			Help:      "Auth handshakes sent to the portal by outcome.",
		}, []string{"outcome"}),
		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Encrypted API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Round trip time of portal calls, including encryption.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// CacheLookup records a cache lookup result.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// CacheWrite records a cache write result.
func (m *Metrics) CacheWrite(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CacheWrites.WithLabelValues("error").Inc()
		return
	}
	m.CacheWrites.WithLabelValues(OutcomeOK).Inc()
}

// Auth records one auth handshake.
func (m *Metrics) Auth(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.AuthRequests.WithLabelValues(outcome).Inc()
	m.RequestDuration.WithLabelValues("auth").Observe(took.Seconds())
}

// Request records one encrypted API call.
func (m *Metrics) Request(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(took.Seconds())
}
