// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registration lifecycle
	RegistrationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmagent_registration_attempts_total",
			Help: "Registration attempts by outcome (success, rejected, network_error)",
		},
		[]string{"outcome"},
	)

	Registered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmagent_registered",
			Help: "Whether the agent holds a valid device certificate (1 = yes)",
		},
	)

	// Inbound API
	AuthDenials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vmagent_auth_denials_total",
			Help: "Requests rejected by the API key gate",
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmagent_api_requests_total",
			Help: "API requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmagent_rpc_calls_total",
			Help: "JSON-RPC tool invocations by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vmagent_rpc_duration_seconds",
			Help:    "JSON-RPC tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Command channel
	CommandChannelConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmagent_command_channel_connected",
			Help: "Whether the WebSocket command channel is connected (1 = yes)",
		},
	)

	CommandsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmagent_commands_executed_total",
			Help: "Commands received over the command channel by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(RegistrationAttempts)
	prometheus.MustRegister(Registered)
	prometheus.MustRegister(AuthDenials)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(RPCCallsTotal)
	prometheus.MustRegister(RPCDuration)
	prometheus.MustRegister(CommandChannelConnected)
	prometheus.MustRegister(CommandsExecuted)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
