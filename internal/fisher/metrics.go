package fisher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for a run.
type Metrics struct {
	CandidatesSelected *prometheus.CounterVec
	CandidatesRejected *prometheus.CounterVec
	GenesEmpty         *prometheus.CounterVec
	RecordsWritten     *prometheus.CounterVec

	ToolRuns     *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
}

// NewMetrics creates the run metrics and registers them on reg. A nil reg
// creates unregistered collectors.
//
// Metrics:
//   - fisher_candidates_selected_total{path} - candidates kept by selection
//   - fisher_candidates_rejected_total{stage} - candidates dropped after selection
//   - fisher_genes_empty_total{reason} - (sample, gene) pairs with no candidates
//   - fisher_records_written_total{quality} - candidate records appended to output
//   - fisher_tool_runs_total{tool,status} - external tool invocations
//   - fisher_tool_duration_seconds{tool} - external tool wall time
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CandidatesSelected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisher_candidates_selected_total",
				Help: "Total number of candidates kept by selection",
			},
			[]string{"path"},
		),
		CandidatesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisher_candidates_rejected_total",
				Help: "Total number of candidates dropped after selection",
			},
			[]string{"stage"}, // "homology", "length", "reciprocity", "tool"
		),
		GenesEmpty: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisher_genes_empty_total",
				Help: "Total number of sample/gene pairs that yielded no candidates",
			},
			[]string{"reason"},
		),
		RecordsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisher_records_written_total",
				Help: "Total number of candidate records appended to output collections",
			},
			[]string{"quality"}, // "r" or "n"
		),
		ToolRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisher_tool_runs_total",
				Help: "Total number of external tool invocations",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fisher_tool_duration_seconds",
				Help:    "Duration of external tool invocations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~43min
			},
			[]string{"tool"},
		),
	}
}

// RecordSelected counts a kept candidate.
func (m *Metrics) RecordSelected(p Path) {
	if m == nil {
		return
	}
	m.CandidatesSelected.WithLabelValues(p.String()).Inc()
}

// RecordRejected counts n candidates dropped at stage.
func (m *Metrics) RecordRejected(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesRejected.WithLabelValues(stage).Add(float64(n))
}

// RecordEmpty counts a (sample, gene) pair that produced nothing.
func (m *Metrics) RecordEmpty(reason string) {
	if m == nil {
		return
	}
	m.GenesEmpty.WithLabelValues(reason).Inc()
}

// RecordWritten counts an appended candidate record.
func (m *Metrics) RecordWritten(reciprocal bool) {
	if m == nil {
		return
	}
	q := "n"
	if reciprocal {
		q = "r"
	}
	m.RecordsWritten.WithLabelValues(q).Inc()
}

// ObserveTool records one external tool invocation.
func (m *Metrics) ObserveTool(tool string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ToolRuns.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}
