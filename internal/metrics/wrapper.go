package metrics

// MetricsWrapper adapts Metrics to the narrow interfaces the prediction
// service and the trainer depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLRequestsInc() {
	w.m.MLRequests.Inc()
}

func (w *MetricsWrapper) MLPredictionsAdd(v float64) {
	w.m.MLPredictions.Add(v)
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
}

func (w *MetricsWrapper) MLValidationErrorsInc(reason string) {
	w.m.MLValidationErrors.WithLabelValues(reason).Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLBatchSizeObserve(v float64) {
	w.m.MLBatchSize.Observe(v)
}

func (w *MetricsWrapper) MLConfidenceObserve(v float64) {
	w.m.MLConfidence.Observe(v)
}

func (w *MetricsWrapper) MLCacheHitsInc() {
	w.m.MLCacheHits.Inc()
}

func (w *MetricsWrapper) MLCacheMissesInc() {
	w.m.MLCacheMisses.Inc()
}

func (w *MetricsWrapper) TrainingRunsInc() {
	w.m.TrainingRuns.Inc()
}

func (w *MetricsWrapper) TrainingDurationObserve(v float64) {
	w.m.TrainingDuration.Observe(v)
}

func (w *MetricsWrapper) TrainingRowsSet(v float64) {
	w.m.TrainingRows.Set(v)
}

func (w *MetricsWrapper) HoldoutR2Set(v float64) {
	w.m.HoldoutR2.Set(v)
}
