// Package metrics provides Prometheus metrics collection for the housing price
// service and trainer. It defines prediction, validation, cache and training
// metrics exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service and the trainer.
type Metrics struct {
	// Serving metrics
	MLRequests         prometheus.Counter     // Total number of predict requests received
	MLPredictions      prometheus.Counter     // Total number of rows predicted
	MLFailures         prometheus.Counter     // Total number of failed prediction batches
	MLValidationErrors *prometheus.CounterVec // Rejected requests by validation rule
	MLLatency          prometheus.Histogram   // Batch prediction latency in seconds
	MLBatchSize        prometheus.Histogram   // Rows per predict request
	MLConfidence       prometheus.Histogram   // Distribution of confidence scores
	MLCacheHits        prometheus.Counter     // Rows served from the prediction cache
	MLCacheMisses      prometheus.Counter     // Rows evaluated by the ensemble

	// Training metrics
	TrainingRuns     prometheus.Counter   // Completed training runs
	TrainingDuration prometheus.Histogram // Wall time of a training run in seconds
	TrainingRows     prometheus.Gauge     // Rows used to fit the last model
	HoldoutR2        prometheus.Gauge     // Coefficient of determination on the holdout split
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_requests_total",
			Help: "Total number of predict requests received",
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of rows predicted",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of failed prediction batches",
		}),
		MLValidationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_validation_errors_total",
			Help: "Total number of rejected predict requests by rule",
		}, []string{"reason"}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Batch prediction latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		MLBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_batch_size",
			Help:    "Number of rows per predict request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		MLConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_confidence",
			Help:    "Distribution of batch-relative confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		MLCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_cache_hits_total",
			Help: "Rows served from the prediction cache",
		}),
		MLCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_cache_misses_total",
			Help: "Rows evaluated by the ensemble",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of completed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Wall time of a training run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		TrainingRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_rows",
			Help: "Rows used to fit the last model",
		}),
		HoldoutR2: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_holdout_r2",
			Help: "Coefficient of determination of the last model on the holdout split",
		}),
	}
}
