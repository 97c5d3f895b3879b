package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	requests         int
	predictions      float64
	failures         int
	validationErrors map[string]int
	latencySum       float64
	batchSizes       []float64
	confidences      []float64
	cacheHits        int
	cacheMisses      int
}

func (m *MockMetrics) MLRequestsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func (m *MockMetrics) MLPredictionsAdd(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions += v
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLValidationErrorsInc(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validationErrors == nil {
		m.validationErrors = make(map[string]int)
	}
	m.validationErrors[reason]++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLBatchSizeObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = append(m.batchSizes, v)
}

func (m *MockMetrics) MLConfidenceObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidences = append(m.confidences, v)
}

func (m *MockMetrics) MLCacheHitsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *MockMetrics) MLCacheMissesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}
