// Package metrics exposes the Prometheus collectors of the pipeline and the
// serving layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loadcast"

var (
	// Pipeline metrics.
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_runs_total",
		Help:      "Total number of pipeline runs by outcome",
	}, []string{"status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"stage"})

	sourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_period_failures_total",
		Help:      "Periods skipped because they could not be loaded",
	}, []string{"period"})

	droppedRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dataset_dropped_rows",
		Help:      "Rows dropped for a missing target in the last run",
	})

	modelScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_score",
		Help:      "Held-out score of each candidate in the last run",
	}, []string{"model", "metric"})

	// Serving metrics.
	predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_total",
		Help:      "Rows scored by the prediction endpoint",
	}, []string{"model"})

	reportLevels = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_clusters_total",
		Help:      "Clusters reported per load level",
	}, []string{"level"})

	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Background job executions by outcome",
	}, []string{"job", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of background job executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	servedVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "served_model_version",
		Help:      "Registry version of the model currently served",
	}, []string{"model"})
)

// ObserveRun counts a finished pipeline run.
func ObserveRun(status string) {
	pipelineRuns.WithLabelValues(status).Inc()
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveSourceFailure counts a skipped period.
func ObserveSourceFailure(period string) {
	sourceFailures.WithLabelValues(period).Inc()
}

// SetDroppedRows records the rows dropped by the sanitizer.
func SetDroppedRows(n int) {
	droppedRows.Set(float64(n))
}

// SetModelScore records one held-out metric of a candidate.
func SetModelScore(model, metric string, value float64) {
	modelScore.WithLabelValues(model, metric).Set(value)
}

// ObservePredictions counts scored rows.
func ObservePredictions(model string, n int) {
	predictions.WithLabelValues(model).Add(float64(n))
}

// ObserveReportLevel counts a reported cluster.
func ObserveReportLevel(level string) {
	reportLevels.WithLabelValues(level).Inc()
}

// SetServedVersion records the served registry version.
func SetServedVersion(model string, version int) {
	servedVersion.WithLabelValues(model).Set(float64(version))
}

// ObserveJob records one background job execution.
func ObserveJob(job, outcome string, start time.Time) {
	jobRuns.WithLabelValues(job, outcome).Inc()
	jobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
