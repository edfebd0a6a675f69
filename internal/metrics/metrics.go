// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SitesRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sites_registered_total",
			Help: "Cumulative number of sites successfully registered.",
		})

	CustomIDRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "site_custom_id_retries_total",
			Help: "Register transactions retried after a custom-ID collision.",
		})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern, and status code.",
		}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(
		SitesRegisteredTotal,
		CustomIDRetriesTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
