// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RPCDuration tracks blockchain and explorer call duration.
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_rpc_duration_seconds",
			Help:    "Blockchain RPC and explorer call duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "status"},
	)

	// MessagesTotal tracks processed conversational messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_messages_total",
			Help: "Total conversational messages processed",
		},
		[]string{"agent", "intent"},
	)

	// TransfersTotal tracks transfer attempts by outcome.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Total token transfer attempts",
		},
		[]string{"token", "outcome"},
	)

	// PaymentLinksCreated tracks created payment links.
	PaymentLinksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_links_created_total",
			Help: "Total payment links created",
		},
		[]string{"source", "token"},
	)

	// LinkPaymentsTotal tracks payments received through payment links.
	LinkPaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_payments_total",
			Help: "Total payments recorded on payment links",
		},
		[]string{"token", "outcome"},
	)

	// FlowSessionsActive tracks in-progress payment link creation sessions.
	FlowSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flow_sessions_active",
			Help: "Number of in-progress payment link creation sessions",
		},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// LLMRequestDuration tracks LLM completion latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// DepositsDetected tracks incoming deposits found by the watcher.
	DepositsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposits_detected_total",
			Help: "Total incoming deposits detected",
		},
		[]string{"token"},
	)
)

// Status returns a label value for an error outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
