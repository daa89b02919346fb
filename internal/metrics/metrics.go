// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RewritesTotal   *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgme_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgme_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tgme_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgme_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "host"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgme_proxy_upstream_responses_total",
			Help: "Total upstream responses by method, host and status code.",
		}, []string{"method", "host", "status_code"}),

		RewritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgme_proxy_rewrites_total",
			Help: "Response bodies processed, by rewrite strategy.",
		}, []string{"strategy"}),

		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgme_proxy_rejections_total",
			Help: "Requests rejected by the pipeline, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RewritesTotal,
		m.RejectionsTotal,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{
	"/static", "/healthz", "/proxy/status", "/metrics",
	"/t.me", "/telegram.org", "/cdn4.telegram-cdn.org",
}

// NormalizePath returns a bounded path label for Prometheus metrics. Every
// other single-segment path is an opaque token.
func NormalizePath(path string) string {
	if path == "/" || path == "" {
		return "/"
	}
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	if !strings.Contains(strings.TrimPrefix(path, "/"), "/") {
		return "token"
	}
	return "other"
}

// knownHosts bounds the upstream host label.
var knownHosts = map[string]bool{
	"telegram.org": true, "cdn4.telegram-cdn.org": true, "t.me": true,
}

// NormalizeHost returns a bounded upstream host label.
func NormalizeHost(host string) string {
	if knownHosts[host] {
		return host
	}
	return "other"
}
