package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the provider client, the credential
// cache and the role reconciler.
type Recorder interface {
	RecordTokenFetch(success bool, duration time.Duration)
	RecordProviderRequest(op string, statusCode int, duration time.Duration)
	RecordRoleChanges(added, removed int)
}

// Collector records Prometheus metrics for the gateway.
type Collector struct {
	tokenFetches    *prometheus.CounterVec
	tokenLatency    prometheus.Histogram
	providerStatus  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	rolesAdded      prometheus.Counter
	rolesRemoved    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sso_token_fetch_total",
			Help: "Admin token fetches against the provider token endpoint, by outcome",
		}, []string{"outcome"}),
		tokenLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sso_token_fetch_duration_seconds",
			Help:    "Latency of admin token fetches",
			Buckets: prometheus.DefBuckets,
		}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sso_provider_requests_total",
			Help: "Provider admin API requests by operation and status code",
		}, []string{"op", "status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sso_provider_request_duration_seconds",
			Help:    "Provider admin API request latency by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		rolesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sso_role_mappings_added_total",
			Help: "Realm role mappings added by reconciliation",
		}),
		rolesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sso_role_mappings_removed_total",
			Help: "Realm role mappings removed by reconciliation",
		}),
	}

	reg.MustRegister(
		c.tokenFetches,
		c.tokenLatency,
		c.providerStatus,
		c.providerLatency,
		c.rolesAdded,
		c.rolesRemoved,
	)

	return c
}

// RecordTokenFetch records one token endpoint round trip.
func (c *Collector) RecordTokenFetch(success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.tokenFetches.WithLabelValues(outcome).Inc()
	c.tokenLatency.Observe(duration.Seconds())
}

// RecordProviderRequest records one admin API call. A statusCode of 0 means the
// request never got a response.
func (c *Collector) RecordProviderRequest(op string, statusCode int, duration time.Duration) {
	c.providerStatus.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
	c.providerLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRoleChanges records the mutations applied by one reconcile call.
func (c *Collector) RecordRoleChanges(added, removed int) {
	c.rolesAdded.Add(float64(added))
	c.rolesRemoved.Add(float64(removed))
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) RecordTokenFetch(bool, time.Duration)               {}
func (Nop) RecordProviderRequest(string, int, time.Duration) {}
func (Nop) RecordRoleChanges(int, int)                         {}
