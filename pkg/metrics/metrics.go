package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FederationTokensIssued counts one-time federation tokens handed to the partner backend.
	FederationTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "federate_tokens_issued_total",
			Help: "Total number of federation tokens issued",
		},
	)

	// FederationExchanges records token exchange attempts by result (success|invalid).
	FederationExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "federate_token_exchanges_total",
			Help: "Total number of federation token exchange attempts",
		},
		[]string{"result"},
	)

	// Provisionings counts tenant provisioning outcomes (created|existing|conflict_recovered).
	Provisionings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "federate_provisionings_total",
			Help: "Total number of tenant provisioning calls",
		},
		[]string{"outcome"},
	)

	// WebhookDeliveries records partner webhook delivery attempts by result (success|failure|skipped).
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "federate_webhook_deliveries_total",
			Help: "Total number of partner webhook delivery attempts",
		},
		[]string{"result"},
	)

	// HTTPRequests counts handled HTTP requests by method, path, and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "federate_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration observes request latency by path.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "federate_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
