package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rcourtman/pulse-anomaly/internal/ai/providers"
	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
)

// OutcomeSuccess labels an analysis that produced a complete response.
const OutcomeSuccess = "success"

var (
	// Sampling metrics
	SamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_anomaly_samples_total",
			Help: "Total number of host samples collected",
		},
	)

	SampleFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_anomaly_sample_failures_total",
			Help: "Total number of ticks skipped because sampling failed",
		},
	)

	CPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_anomaly_cpu_percent",
			Help: "System-wide CPU utilisation of the latest sample",
		},
	)

	MemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_anomaly_memory_percent",
			Help: "Memory utilisation of the latest sample",
		},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_anomaly_anomalies_total",
			Help: "Total number of anomalous samples by tripped threshold",
		},
		[]string{"reason"}, // cpu, memory
	)

	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_anomaly_analyses_total",
			Help: "Total number of backend analyses by outcome",
		},
		[]string{"outcome"},
	)

	AnalysisDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_anomaly_analysis_duration_seconds",
			Help:    "Wall-clock duration of backend analyses",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}, // 500ms to 5m
		},
	)

	AnalysisTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_anomaly_analysis_tokens_total",
			Help: "Total number of tokens reported by the backend",
		},
		[]string{"kind"}, // prompt, completion
	)
)

// RecordSample records a collected sample and the thresholds it tripped
func RecordSample(cpu, memory float64, reasons []string) {
	SamplesTotal.Inc()
	CPUPercent.Set(cpu)
	MemoryPercent.Set(memory)
	for _, reason := range reasons {
		AnomaliesTotal.WithLabelValues(reason).Inc()
	}
}

// RecordSampleFailure records a tick skipped due to a sampling error
func RecordSampleFailure() {
	SampleFailuresTotal.Inc()
}

// RecordAnalysis records one backend call. Token counters only move when the
// backend reported them.
func RecordAnalysis(err error, duration time.Duration, stats providers.Stats) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = pulseerrors.Kind(err)
	}
	AnalysesTotal.WithLabelValues(outcome).Inc()
	AnalysisDurationSeconds.Observe(duration.Seconds())

	if stats.PromptTokens != nil {
		AnalysisTokensTotal.WithLabelValues("prompt").Add(float64(*stats.PromptTokens))
	}
	if stats.CompletionTokens != nil {
		AnalysisTokensTotal.WithLabelValues("completion").Add(float64(*stats.CompletionTokens))
	}
}
