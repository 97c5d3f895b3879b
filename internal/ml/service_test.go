package ml

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housing-forest/internal/common"
	"housing-forest/internal/forest"
)

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, ServiceConfig{}, nil)
	assert.Error(t, err)

	narrow := spreadEnsemble()
	narrow.width = 4
	_, err = NewService(narrow, ServiceConfig{}, nil)
	assert.Error(t, err)

	_, err = NewService(&fakeEnsemble{width: common.ServingFeatureLen}, ServiceConfig{}, nil)
	assert.Error(t, err)

	s, err := NewService(spreadEnsemble(), ServiceConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, common.ServingFeatureLen, s.Width())
	assert.Equal(t, 3, s.Trees())
}

func TestService_PredictOrderAndConfidence(t *testing.T) {
	metrics := &MockMetrics{}
	s, err := NewService(spreadEnsemble(), ServiceConfig{}, metrics)
	require.NoError(t, err)

	rows := [][]float64{row(100, 0), row(200, 3), row(123.456, 1.5)}
	results, err := s.Predict(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, Result{Prediction: 100, Confidence: 1}, results[0])
	assert.Equal(t, Result{Prediction: 200, Confidence: 0}, results[1])
	assert.Equal(t, Result{Prediction: 123.46, Confidence: 0.5}, results[2])

	assert.Equal(t, 3.0, metrics.predictions)
	assert.Equal(t, []float64{3}, metrics.batchSizes)
	assert.Len(t, metrics.confidences, 3)
	assert.Zero(t, metrics.failures)
}

func TestService_SingleRowIsFullyConfident(t *testing.T) {
	s, err := NewService(spreadEnsemble(), ServiceConfig{}, nil)
	require.NoError(t, err)

	for _, spread := range []float64{0, 0.1, 50, 1e6} {
		results, err := s.Predict(context.Background(), [][]float64{row(10, spread)})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 1.0, results[0].Confidence)
		assert.Equal(t, 10.0, results[0].Prediction)
	}
}

func TestService_EmptyBatch(t *testing.T) {
	s, err := NewService(spreadEnsemble(), ServiceConfig{}, nil)
	require.NoError(t, err)

	results, err := s.Predict(context.Background(), [][]float64{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestService_ConfidenceIsBatchRelative(t *testing.T) {
	s, err := NewService(spreadEnsemble(), ServiceConfig{}, nil)
	require.NoError(t, err)

	target := row(10, 1)
	small, err := s.Predict(context.Background(), [][]float64{target, row(10, 2)})
	require.NoError(t, err)
	large, err := s.Predict(context.Background(), [][]float64{target, row(10, 100)})
	require.NoError(t, err)

	assert.Equal(t, small[0].Prediction, large[0].Prediction)
	assert.Less(t, small[0].Confidence, large[0].Confidence)
}

func TestService_Errors(t *testing.T) {
	metrics := &MockMetrics{}
	s, err := NewService(failingEnsemble(), ServiceConfig{}, metrics)
	require.NoError(t, err)

	_, err = s.Predict(context.Background(), [][]float64{row(1, 1)})
	assert.Error(t, err)
	assert.Equal(t, 1, metrics.failures)

	_, err = s.Predict(context.Background(), [][]float64{{1, 2}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Predict(ctx, [][]float64{row(1, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_CacheServesRepeatedRows(t *testing.T) {
	metrics := &MockMetrics{}
	e := spreadEnsemble()
	s, err := NewService(e, ServiceConfig{CacheSize: 16}, metrics)
	require.NoError(t, err)

	rows := [][]float64{row(100, 0), row(200, 3), row(150, 1.5)}
	first, err := s.Predict(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, e.calls)
	assert.Equal(t, 3, metrics.cacheMisses)

	second, err := s.Predict(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, e.calls)
	assert.Equal(t, 3, metrics.cacheHits)
	assert.Equal(t, first, second)

	// only the new row reaches the ensemble
	mixed, err := s.Predict(context.Background(), append(rows, row(75, 0.5)))
	require.NoError(t, err)
	assert.Equal(t, 2, e.calls)
	assert.Equal(t, first, mixed[:3])
}

func TestService_CacheDisabled(t *testing.T) {
	e := spreadEnsemble()
	s, err := NewService(e, ServiceConfig{CacheSize: 0}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Predict(context.Background(), [][]float64{row(1, 1)})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, e.calls)
}

func TestService_WithTrainedForest(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var x [][]float64
	var y []float64
	for i := 0; i < 120; i++ {
		r := make([]float64, common.ServingFeatureLen)
		for j := range r {
			r[j] = rng.Float64() * 10
		}
		x = append(x, r)
		y = append(y, 1000*r[0]+50*r[3])
	}

	params := forest.DefaultParams()
	params.NumTrees = 15
	f, err := forest.Fit(context.Background(), x, y, params)
	require.NoError(t, err)

	var _ Ensemble = f
	s, err := NewService(f, ServiceConfig{CacheSize: 8}, &MockMetrics{})
	require.NoError(t, err)

	batch := x[:10]
	results, err := s.Predict(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 10)

	means, err := f.PredictBatch(batch)
	require.NoError(t, err)
	minConfidence := 1.0
	for i, r := range results {
		assert.Equal(t, Round2(means[i]), r.Prediction)
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
		if r.Confidence < minConfidence {
			minConfidence = r.Confidence
		}
	}
	assert.Equal(t, 0.0, minConfidence)
}
