// Package observability collects Prometheus metrics for the
// orchestration engine: run outcomes, node latencies, approval
// resolutions, checking-point evaluations, and scheduler backpressure.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the centralized metric set. Register it once per process.
type Metrics struct {
	// RunsCompleted counts runs by terminal state.
	// Labels: state (SUCCEEDED|FAILED|REJECTED|CANCELLED)
	RunsCompleted *prometheus.CounterVec

	// NodeDuration measures orchestrator node latency in seconds.
	// Labels: node
	NodeDuration *prometheus.HistogramVec

	// ApprovalsResolved counts approval resolutions.
	// Labels: status (APPROVED|REJECTED|EXPIRED|CANCELLED)
	ApprovalsResolved *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// Evaluations counts checking-point evaluations.
	// Labels: point, result (MATCH|NO_MATCH|ERROR)
	Evaluations *prometheus.CounterVec

	// ActionsDropped counts AI actions dropped by scheduler
	// backpressure.
	// Labels: point
	ActionsDropped *prometheus.CounterVec

	// FetchesDeferred counts checking-point cycles deferred by rate
	// limits.
	// Labels: point
	FetchesDeferred *prometheus.CounterVec

	// RunsAwaitingApproval gauges suspended runs.
	RunsAwaitingApproval prometheus.Gauge
}

// NewMetrics creates the metric set on a private registry-agnostic
// basis; call Register to attach it to a registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_runs_completed_total",
			Help: "Workflow runs reaching a terminal state.",
		}, []string{"state"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overseer_node_duration_seconds",
			Help:    "Orchestrator node execution latency.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"node"}),
		ApprovalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_approvals_resolved_total",
			Help: "Approval requests by resolution.",
		}, []string{"status"}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_tool_executions_total",
			Help: "Tool executions by outcome.",
		}, []string{"tool", "status"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_checkpoint_evaluations_total",
			Help: "Checking-point evaluations by result.",
		}, []string{"point", "result"}),
		ActionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_scheduler_actions_dropped_total",
			Help: "AI actions dropped because the dispatch queue was full.",
		}, []string{"point"}),
		FetchesDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_scheduler_fetches_deferred_total",
			Help: "Checking-point cycles deferred by rate limits.",
		}, []string{"point"}),
		RunsAwaitingApproval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overseer_runs_awaiting_approval",
			Help: "Runs currently suspended at the approval gate.",
		}),
	}
}

// Register attaches every metric to the registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RunsCompleted,
		m.NodeDuration,
		m.ApprovalsResolved,
		m.ToolExecutions,
		m.Evaluations,
		m.ActionsDropped,
		m.FetchesDeferred,
		m.RunsAwaitingApproval,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
