// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leapcode"

// Admission outcomes.
const (
	AdmissionAllowed     = "allowed"
	AdmissionRejected    = "rejected"
	AdmissionBlacklisted = "blacklisted"
)

// Collector records admission and authentication metrics.
type Collector struct {
	reg          prometheus.Registerer
	admissions   *prometheus.CounterVec
	authAttempts *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reg: reg,
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Admission limiter decisions by outcome.",
		}, []string{"outcome"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication flow invocations by flow and outcome.",
		}, []string{"flow", "outcome"}),
	}

	reg.MustRegister(c.admissions, c.authAttempts)

	return c
}

// RecordAdmission counts one limiter decision.
func (c *Collector) RecordAdmission(outcome string) {
	c.admissions.WithLabelValues(outcome).Inc()
}

// RecordAuthAttempt counts one authentication flow invocation.
func (c *Collector) RecordAuthAttempt(flow, outcome string) {
	c.authAttempts.WithLabelValues(flow, outcome).Inc()
}

// WatchTrackedClients exposes the number of identities held by the limiter.
func (c *Collector) WatchTrackedClients(size func() int) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ratelimit_tracked_clients",
		Help:      "Client identities currently tracked by the admission limiter.",
	}, func() float64 {
		return float64(size())
	}))
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
