// Package metrics holds the Prometheus collectors for cascade and pipeline
// activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for tier attempts.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	TierAttempts  *prometheus.CounterVec
	TierDuration  *prometheus.HistogramVec
	PipelineRuns  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	LLMRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropdoc",
			Name:      "tier_attempts_total",
			Help:      "Cascade tier attempts by stage, tier and outcome.",
		}, []string{"stage", "tier", "outcome"}),
		TierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cropdoc",
			Name:      "tier_duration_seconds",
			Help:      "Latency of cascade tier attempts.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"stage", "tier"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropdoc",
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by result source and whether a plan was attached.",
		}, []string{"source", "planned"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cropdoc",
			Name:      "stage_duration_seconds",
			Help:      "Latency of pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropdoc",
			Name:      "llm_requests_total",
			Help:      "LLM client calls by client name and outcome.",
		}, []string{"client", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.TierAttempts, m.TierDuration, m.PipelineRuns, m.StageDuration, m.LLMRequests)
	}
	return m
}

func (m *Metrics) ObserveTier(stage, tier, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TierAttempts.WithLabelValues(stage, tier, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.TierDuration.WithLabelValues(stage, tier).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveRun(source string, planned bool) {
	if m == nil {
		return
	}
	p := "false"
	if planned {
		p = "true"
	}
	m.PipelineRuns.WithLabelValues(source, p).Inc()
}

func (m *Metrics) ObserveLLM(client string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.LLMRequests.WithLabelValues(client, outcome).Inc()
}
