package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"housing-forest/internal/common"
)

// MetricsInterface defines metrics methods needed by the prediction service
type MetricsInterface interface {
	MLRequestsInc()
	MLPredictionsAdd(float64)
	MLFailuresInc()
	MLValidationErrorsInc(reason string)
	MLLatencyObserve(float64)
	MLBatchSizeObserve(float64)
	MLConfidenceObserve(float64)
	MLCacheHitsInc()
	MLCacheMissesInc()
}

// Result is the prediction for one input row.
type Result struct {
	Prediction float64 `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// ServiceConfig contains configuration for the prediction service
type ServiceConfig struct {
	Width     int // defaults to common.ServingFeatureLen
	CacheSize int // 0 disables the row cache
}

// rowStats is the batch-independent part of a row's result.
type rowStats struct {
	prediction float64
	dispersion float64
}

// Service runs batch inference on an immutable ensemble. It is safe for
// concurrent use.
type Service struct {
	ensemble Ensemble
	trees    int
	width    int
	cache    *lru.Cache[string, rowStats]
	metrics  MetricsInterface
}

// NewService wraps an already loaded ensemble. The ensemble must accept rows
// of the configured width.
func NewService(ensemble Ensemble, config ServiceConfig, metrics MetricsInterface) (*Service, error) {
	if ensemble == nil {
		return nil, errors.New("ensemble is required")
	}
	if config.Width == 0 {
		config.Width = common.ServingFeatureLen
	}
	if ensemble.Width() != config.Width {
		return nil, fmt.Errorf("model expects %d features, service accepts %d", ensemble.Width(), config.Width)
	}
	if len(ensemble.Members()) == 0 {
		return nil, errors.New("ensemble has no members")
	}

	s := &Service{
		ensemble: ensemble,
		trees:    len(ensemble.Members()),
		width:    config.Width,
		metrics:  metrics,
	}
	if config.CacheSize > 0 {
		cache, err := lru.New[string, rowStats](config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		s.cache = cache
	}

	log.Info().
		Int("trees", s.trees).
		Int("width", s.width).
		Int("cache_size", config.CacheSize).
		Msg("prediction service ready")
	return s, nil
}

// Width returns the row width the service accepts.
func (s *Service) Width() int {
	return s.width
}

// Trees returns the number of trees in the served ensemble.
func (s *Service) Trees() int {
	return s.trees
}

// Predict returns one result per row, in input order. Predictions are the
// ensemble mean; confidence compares each row's tree dispersion with the most
// dispersed row of the same batch. Both values are rounded to two decimals.
func (s *Service) Predict(ctx context.Context, rows [][]float64) ([]Result, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.MLBatchSizeObserve(float64(len(rows)))
	}
	if len(rows) == 0 {
		return []Result{}, nil
	}
	for i, row := range rows {
		if len(row) != s.width {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), s.width)
		}
	}

	stats, err := s.rowStats(rows)
	if err != nil {
		if s.metrics != nil {
			s.metrics.MLFailuresInc()
		}
		return nil, err
	}

	dispersions := make([]float64, len(stats))
	for i, st := range stats {
		dispersions[i] = st.dispersion
	}
	confidences := Confidences(dispersions)

	results := make([]Result, len(rows))
	for i, st := range stats {
		results[i] = Result{
			Prediction: Round2(st.prediction),
			Confidence: Round2(confidences[i]),
		}
		if s.metrics != nil {
			s.metrics.MLConfidenceObserve(confidences[i])
		}
	}
	if s.metrics != nil {
		s.metrics.MLPredictionsAdd(float64(len(rows)))
	}
	return results, nil
}

// rowStats resolves prediction and dispersion per row, consulting the cache
// first and evaluating only the rows it misses.
func (s *Service) rowStats(rows [][]float64) ([]rowStats, error) {
	stats := make([]rowStats, len(rows))
	keys := make([]string, len(rows))
	var missing []int

	for i, row := range rows {
		if s.cache == nil {
			missing = append(missing, i)
			continue
		}
		keys[i] = rowKey(row)
		if st, ok := s.cache.Get(keys[i]); ok {
			stats[i] = st
			if s.metrics != nil {
				s.metrics.MLCacheHitsInc()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.MLCacheMissesInc()
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return stats, nil
	}

	pending := make([][]float64, len(missing))
	for j, i := range missing {
		pending[j] = rows[i]
	}

	preds, err := s.ensemble.PredictBatch(pending)
	if err != nil {
		return nil, fmt.Errorf("ensemble prediction: %w", err)
	}
	if len(preds) != len(pending) {
		return nil, fmt.Errorf("ensemble returned %d predictions for %d rows", len(preds), len(pending))
	}
	dispersions, err := TreeDispersions(s.ensemble.Members(), pending)
	if err != nil {
		return nil, fmt.Errorf("tree dispersion: %w", err)
	}

	for j, i := range missing {
		st := rowStats{prediction: preds[j], dispersion: dispersions[j]}
		stats[i] = st
		if s.cache != nil {
			s.cache.Add(keys[i], st)
		}
	}
	return stats, nil
}

// rowKey encodes the exact bit patterns of a row.
func rowKey(row []float64) string {
	var b strings.Builder
	b.Grow(len(row) * 17)
	for _, v := range row {
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
		b.WriteByte(',')
	}
	return b.String()
}
