package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records stage outcomes reported by the use cases.
type PipelineMetrics struct {
	service string

	documentsTotal   *prometheus.CounterVec
	indexRunsTotal   *prometheus.CounterVec
	indexRunDuration prometheus.Histogram
	agentRunsTotal   *prometheus.CounterVec
	agentIterations  prometheus.Histogram
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents handled per stage, company and outcome.",
		},
		[]string{"service", "stage", "company", "status"},
	)
	indexRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "runs_total",
			Help:      "Finished knowledge index runs by status.",
		},
		[]string{"service", "status"},
	)
	indexRunDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "run_duration_seconds",
			Help:        "Knowledge index run duration in seconds.",
			Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Completed query agent runs by stop reason.",
		},
		[]string{"service", "stop_reason"},
	)
	agentIterations := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "agent",
			Name:        "iterations",
			Help:        "Distribution of agent loop iterations per run.",
			Buckets:     []float64{1, 2, 3, 4, 5, 6, 8, 10},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registerer.MustRegister(documentsTotal, indexRunsTotal, indexRunDuration, agentRunsTotal, agentIterations)

	return &PipelineMetrics{
		service:          service,
		documentsTotal:   documentsTotal,
		indexRunsTotal:   indexRunsTotal,
		indexRunDuration: indexRunDuration,
		agentRunsTotal:   agentRunsTotal,
		agentIterations:  agentIterations,
	}
}

func (m *PipelineMetrics) ObserveDocument(stage, company, status string) {
	m.documentsTotal.WithLabelValues(m.service, orUnknown(stage), orUnknown(company), orUnknown(status)).Inc()
}

func (m *PipelineMetrics) ObserveIndexRun(status string, seconds float64) {
	m.indexRunsTotal.WithLabelValues(m.service, orUnknown(status)).Inc()
	if seconds >= 0 {
		m.indexRunDuration.Observe(seconds)
	}
}

func (m *PipelineMetrics) ObserveAgentRun(stopReason string, iterations int) {
	m.agentRunsTotal.WithLabelValues(m.service, orUnknown(stopReason)).Inc()
	if iterations > 0 {
		m.agentIterations.Observe(float64(iterations))
	}
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
