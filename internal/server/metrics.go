package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anc5557/kis-mcp/internal/adapter"
)

var (
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_mcp_tool_calls_total",
			Help: "Tool invocations by tool name and outcome",
		},
		[]string{"tool", "status"},
	)

	toolTimings = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "kis_mcp_tool_duration_seconds",
			Help:       "Per tool call timing",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(toolCalls, toolTimings)
}

// observeToolCall records one tool invocation. The status label is "ok" or
// the stable error kind.
func observeToolCall(tool string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
		if kind, ok := adapter.KindOf(err); ok {
			status = string(kind)
		}
	}
	toolCalls.WithLabelValues(tool, status).Inc()
	toolTimings.WithLabelValues(tool).Observe(elapsed.Seconds())
}
