// Package metrics collects Prometheus metrics for outbound provider
// traffic and exposes the scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records provider request engine activity. A nil *Collector is
// valid and records nothing, so wiring stays optional in tests.
type Collector struct {
	outboundRequests *prometheus.CounterVec
	retries          *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	disconnects      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outboundRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kin_outbound_requests_total",
			Help: "Outbound provider API requests, including retries.",
		}, []string{"provider"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kin_request_retries_total",
			Help: "Retried provider requests by reason (timeout, refresh_wait).",
		}, []string{"provider", "reason"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kin_token_refreshes_total",
			Help: "Token refresh attempts by outcome (ok, error).",
		}, []string{"provider", "outcome"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kin_source_disconnects_total",
			Help: "Sources demoted to disconnected after unrecoverable auth failures.",
		}, []string{"provider"}),
	}
	reg.MustRegister(c.outboundRequests, c.retries, c.tokenRefreshes, c.disconnects)
	return c
}

func (c *Collector) RecordOutboundRequest(provider string) {
	if c == nil {
		return
	}
	c.outboundRequests.WithLabelValues(provider).Inc()
}

func (c *Collector) RecordRetry(provider, reason string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(provider, reason).Inc()
}

func (c *Collector) RecordTokenRefresh(provider, outcome string) {
	if c == nil {
		return
	}
	c.tokenRefreshes.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) RecordDisconnect(provider string) {
	if c == nil {
		return
	}
	c.disconnects.WithLabelValues(provider).Inc()
}

// Handler returns the scrape handler for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
