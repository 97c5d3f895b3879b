package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_ServingCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLRequestsInc()
	wrapper.MLRequestsInc()
	wrapper.MLPredictionsAdd(5)
	wrapper.MLFailuresInc()
	wrapper.MLCacheHitsInc()
	wrapper.MLCacheMissesInc()
	wrapper.MLCacheMissesInc()

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"requests", metrics.MLRequests, 2},
		{"predictions", metrics.MLPredictions, 5},
		{"failures", metrics.MLFailures, 1},
		{"cache hits", metrics.MLCacheHits, 1},
		{"cache misses", metrics.MLCacheMisses, 2},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s: expected %f, got %f", c.name, c.want, got)
		}
	}
}

func TestMetricsWrapper_ValidationErrorsByReason(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLValidationErrorsInc("row_shape")
	wrapper.MLValidationErrorsInc("row_shape")
	wrapper.MLValidationErrorsInc("missing_features")

	if got := testutil.ToFloat64(metrics.MLValidationErrors.WithLabelValues("row_shape")); got != 2 {
		t.Errorf("Expected 2 row_shape errors, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.MLValidationErrors.WithLabelValues("missing_features")); got != 1 {
		t.Errorf("Expected 1 missing_features error, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.MLValidationErrors); got != 2 {
		t.Errorf("Expected 2 label combinations, got %d", got)
	}
}

func TestMetricsWrapper_Histograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.MLLatencyObserve(0.002)
	wrapper.MLBatchSizeObserve(3)
	wrapper.MLConfidenceObserve(0.5)
	wrapper.MLConfidenceObserve(1)
	wrapper.TrainingDurationObserve(1.5)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "ml_confidence" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 2 {
			t.Errorf("Expected 2 confidence samples, got %d", h.GetSampleCount())
		}
		if h.GetSampleSum() != 1.5 {
			t.Errorf("Expected confidence sum 1.5, got %f", h.GetSampleSum())
		}
	}
	if !found {
		t.Error("ml_confidence histogram not gathered")
	}

	if got := testutil.CollectAndCount(metrics.MLLatency); got != 1 {
		t.Errorf("Expected latency histogram to be collected, got %d", got)
	}
}

func TestMetricsWrapper_TrainingGauges(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.TrainingRunsInc()
	wrapper.TrainingRowsSet(436)
	wrapper.HoldoutR2Set(0.64)

	if got := testutil.ToFloat64(metrics.TrainingRuns); got != 1 {
		t.Errorf("Expected 1 training run, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.TrainingRows); got != 436 {
		t.Errorf("Expected 436 training rows, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.HoldoutR2); got != 0.64 {
		t.Errorf("Expected holdout r2 0.64, got %f", got)
	}

	wrapper.TrainingRowsSet(100)
	if got := testutil.ToFloat64(metrics.TrainingRows); got != 100 {
		t.Errorf("Expected gauge to be overwritten, got %f", got)
	}
}

func TestNewWithRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic when registering metrics twice on one registry")
		}
	}()
	NewWithRegistry(registry)
}
