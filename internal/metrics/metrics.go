// Package metrics defines Prometheus collectors for agent runs, tool calls and email delivery.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AgentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_agent_runs_total",
			Help: "Total number of agent runs",
		},
		[]string{"agent", "status"}, // status: success|error|blocked
	)

	AgentTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_agent_tokens_total",
			Help: "Total tokens used by agents",
		},
		[]string{"agent", "type"}, // type: input|output
	)

	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_tool_calls_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_emails_sent_total",
			Help: "Total number of emails accepted by the provider",
		},
		[]string{"transport", "content_type"},
	)

	DeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_delivery_failures_total",
			Help: "Total number of rejected or failed email deliveries",
		},
		[]string{"transport", "status_code"},
	)

	GuardrailBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdr_guardrail_blocks_total",
			Help: "Total number of requests blocked by an input guardrail",
		},
		[]string{"guardrail"},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AgentRuns,
			AgentTokens,
			ToolCalls,
			EmailsSent,
			DeliveryFailures,
			GuardrailBlocks,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
