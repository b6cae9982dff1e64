// Package metrics provides Prometheus instrumentation for featurizer runs.
//
// Metrics are registered on a private registry so a run can both serve them on
// /metrics and push them to a Pushgateway when it finishes. A batch job is
// usually gone before the next scrape, so the push is what normally reaches
// Prometheus.
//
// Metrics exposed:
//   - gridcast_stage_seconds: Histogram of per-batch stage duration by stage
//   - gridcast_batches_total: Counter of finished batches by status
//   - gridcast_batches_planned: Gauge of batches in the current run
//   - gridcast_rows_written_total: Counter of feature rows written
//   - gridcast_rows_dropped_total: Counter of rows dropped at the boundary
//   - gridcast_imputed_values_total: Counter of imputed values by column
//   - gridcast_imputation_skipped_total: Counter of fully missing columns by column
//   - gridcast_errors_total: Counter of errors by component and reason
//   - gridcast_last_run_success: Gauge, 1 if the last run succeeded
//   - gridcast_last_run_timestamp_seconds: Gauge of the last run's end time
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for the featurizer. It implements
// pipeline.Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	StageSeconds      *prometheus.HistogramVec
	BatchesTotal      *prometheus.CounterVec
	BatchesPlanned    prometheus.Gauge
	RowsWritten       prometheus.Counter
	RowsDropped       prometheus.Counter
	ImputedValues     *prometheus.CounterVec
	ImputationSkipped *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	LastRunSuccess    prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
}

// New creates and registers all metrics. target is attached to every metric
// as a constant label.
func New(target string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	labels := prometheus.Labels{"target": target}

	return &Metrics{
		Registry: reg,

		StageSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "gridcast_stage_seconds",
			Help:        "Time spent in each batch stage",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"stage"}),

		BatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "gridcast_batches_total",
			Help:        "Total number of finished batches by status",
			ConstLabels: labels,
		}, []string{"status"}),

		BatchesPlanned: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gridcast_batches_planned",
			Help:        "Number of batches in the current run",
			ConstLabels: labels,
		}),

		RowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name:        "gridcast_rows_written_total",
			Help:        "Total number of feature rows written",
			ConstLabels: labels,
		}),

		RowsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name:        "gridcast_rows_dropped_total",
			Help:        "Total number of rows dropped for unavailable future values",
			ConstLabels: labels,
		}),

		ImputedValues: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "gridcast_imputed_values_total",
			Help:        "Total number of imputed values by column",
			ConstLabels: labels,
		}, []string{"column"}),

		ImputationSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "gridcast_imputation_skipped_total",
			Help:        "Total number of batches where a column was entirely missing",
			ConstLabels: labels,
		}, []string{"column"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "gridcast_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),

		LastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gridcast_last_run_success",
			Help:        "1 if the last run succeeded, 0 otherwise",
			ConstLabels: labels,
		}),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gridcast_last_run_timestamp_seconds",
			Help:        "Unix time the last run finished",
			ConstLabels: labels,
		}),
	}
}

// ObserveStage records the time spent in one stage of a batch.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordBatch counts a finished batch.
func (m *Metrics) RecordBatch(status string) {
	m.BatchesTotal.WithLabelValues(status).Inc()
}

// AddRows counts written and dropped rows.
func (m *Metrics) AddRows(written, dropped int) {
	m.RowsWritten.Add(float64(written))
	m.RowsDropped.Add(float64(dropped))
}

// RecordImputation counts imputed values for a column, or a skipped column.
func (m *Metrics) RecordImputation(column string, filled int, skipped bool) {
	if skipped {
		m.ImputationSkipped.WithLabelValues(column).Inc()
		return
	}
	m.ImputedValues.WithLabelValues(column).Add(float64(filled))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// SetPlanned sets the number of batches in the run.
func (m *Metrics) SetPlanned(batches int) {
	m.BatchesPlanned.Set(float64(batches))
}

// SetRunResult records how and when the run ended.
func (m *Metrics) SetRunResult(success bool, at time.Time) {
	if success {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// Push sends every metric to the Pushgateway at url under job, replacing the
// job's previous group.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
