package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turns persisted by the Agent Execution Engine
//   - Tool dispatches through the Tool Dispatch Bus, by status
//   - Spawn edges recorded by the Agent Runtime
//   - Duplicate-call rejections from the Conversation Store
//   - LLM request performance
//   - Turn duration, tool dispatch round-trip, and summarisation duration
//   - Live agent count and worker-pool saturation
type Metrics struct {
	// TurnsPersisted counts turns written by save_turns, by agent role.
	TurnsPersisted *prometheus.CounterVec

	// ToolDispatches counts Tool Dispatch Bus round trips, by tool name and
	// outcome (ok|error|failure|timeout).
	ToolDispatches *prometheus.CounterVec

	// SpawnEdges counts spawn-graph edges recorded by run_agent_task.
	SpawnEdges prometheus.Counter

	// DedupRejections counts tool calls rejected by duplicate detection,
	// by rejection reason.
	DedupRejections *prometheus.CounterVec

	// LLMRequestDuration measures model-provider call latency in seconds.
	// Labels: provider (anthropic|openai), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model calls by provider, model, and status.
	LLMRequestCounter *prometheus.CounterVec

	// TurnDuration measures one run_single_turn call end to end, in
	// seconds, by agent role.
	TurnDuration *prometheus.HistogramVec

	// ToolDispatchDuration measures a single tool dispatch round trip, in
	// seconds, by tool name.
	ToolDispatchDuration *prometheus.HistogramVec

	// SummarisationDuration measures one compaction pass, in seconds.
	SummarisationDuration prometheus.Histogram

	// LiveAgents gauges the number of agents currently registered in the
	// runtime, by status (idle|running).
	LiveAgents *prometheus.GaugeVec

	// WorkerPoolSaturation gauges how many of the bounded worker pool's
	// slots are currently occupied.
	WorkerPoolSaturation prometheus.Gauge

	// Errors counts errors by component and error type, for cross-cutting
	// error-rate dashboards.
	Errors *prometheus.CounterVec
}

// NewMetrics registers and returns the process's metric collectors against
// the default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnsPersisted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmrun_turns_persisted_total",
				Help: "Total turns persisted to the conversation store, by agent role.",
			},
			[]string{"agent_role"},
		),
		ToolDispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmrun_tool_dispatches_total",
				Help: "Total tool dispatch round trips, by tool name and outcome.",
			},
			[]string{"tool_name", "status"},
		),
		SpawnEdges: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "swarmrun_spawn_edges_total",
				Help: "Total spawn-graph edges recorded by run_agent_task.",
			},
		),
		DedupRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmrun_dedup_rejections_total",
				Help: "Total tool calls rejected by duplicate detection, by reason.",
			},
			[]string{"reason"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmrun_llm_request_duration_seconds",
				Help:    "Model provider call latency in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmrun_llm_requests_total",
				Help: "Total model provider calls, by provider, model, and status.",
			},
			[]string{"provider", "model", "status"},
		),
		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmrun_turn_duration_seconds",
				Help:    "run_single_turn latency in seconds, by agent role.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"agent_role"},
		),
		ToolDispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmrun_tool_dispatch_duration_seconds",
				Help:    "Tool dispatch round-trip latency in seconds, by tool name.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		SummarisationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swarmrun_summarisation_duration_seconds",
				Help:    "History compaction pass latency in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		LiveAgents: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarmrun_live_agents",
				Help: "Agents currently registered in the runtime, by status.",
			},
			[]string{"status"},
		),
		WorkerPoolSaturation: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmrun_worker_pool_saturation",
				Help: "Worker-pool slots currently occupied.",
			},
		),
		Errors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmrun_errors_total",
				Help: "Total errors, by component and error type.",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordTurnPersisted increments TurnsPersisted for role.
func (m *Metrics) RecordTurnPersisted(role string) {
	m.TurnsPersisted.WithLabelValues(role).Inc()
}

// RecordToolDispatch records one tool dispatch outcome and its round-trip
// duration.
func (m *Metrics) RecordToolDispatch(toolName, status string, durationSeconds float64) {
	m.ToolDispatches.WithLabelValues(toolName, status).Inc()
	m.ToolDispatchDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordSpawnEdge increments SpawnEdges.
func (m *Metrics) RecordSpawnEdge() {
	m.SpawnEdges.Inc()
}

// RecordDedupRejection increments DedupRejections for reason.
func (m *Metrics) RecordDedupRejection(reason string) {
	m.DedupRejections.WithLabelValues(reason).Inc()
}

// RecordLLMRequest records one model call's latency and status.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordTurnDuration records one run_single_turn call's latency.
func (m *Metrics) RecordTurnDuration(role string, durationSeconds float64) {
	m.TurnDuration.WithLabelValues(role).Observe(durationSeconds)
}

// RecordSummarisation records one compaction pass's latency.
func (m *Metrics) RecordSummarisation(durationSeconds float64) {
	m.SummarisationDuration.Observe(durationSeconds)
}

// SetLiveAgents sets the live-agent gauge for status.
func (m *Metrics) SetLiveAgents(status string, count float64) {
	m.LiveAgents.WithLabelValues(status).Set(count)
}

// SetWorkerPoolSaturation sets the worker-pool occupancy gauge.
func (m *Metrics) SetWorkerPoolSaturation(occupied float64) {
	m.WorkerPoolSaturation.Set(occupied)
}

// RecordError increments Errors for component/errorType.
func (m *Metrics) RecordError(component, errorType string) {
	m.Errors.WithLabelValues(component, errorType).Inc()
}
