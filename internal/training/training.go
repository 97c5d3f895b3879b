// Package training turns the housing CSV into a served model: it encodes the
// dataset, fits the forest on a seeded train split, scores the holdout split
// and writes the artifact with its metadata sidecar.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"housing-forest/internal/cfg"
	"housing-forest/internal/dataset"
	"housing-forest/internal/forest"
	"housing-forest/internal/ml"
	"housing-forest/internal/storage"
)

// MetricsInterface defines metrics methods needed by the trainer
type MetricsInterface interface {
	TrainingRunsInc()
	TrainingDurationObserve(float64)
	TrainingRowsSet(float64)
	HoldoutR2Set(float64)
}

// RunRecorder persists a summary of each completed run.
type RunRecorder interface {
	RecordRun(run storage.TrainingRun) error
}

// Options configures one training run.
type Options struct {
	DatasetPath string
	ModelPath   string
	Forest      cfg.ForestSettings
	// Now is overridable in tests.
	Now func() time.Time
}

// OptionsFromSettings builds run options from loaded settings.
func OptionsFromSettings(s cfg.Settings) Options {
	return Options{
		DatasetPath: s.DatasetPath,
		ModelPath:   s.ModelPath,
		Forest:      s.Forest,
	}
}

// Report is the outcome of a successful run.
type Report struct {
	Forest   *forest.Forest
	Metadata *ml.ModelMetadata
	Run      storage.TrainingRun
}

// Run executes the full pipeline and overwrites the artifact at
// opts.ModelPath. metrics and recorder may be nil.
func Run(ctx context.Context, opts Options, metrics MetricsInterface, recorder RunRecorder) (*Report, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	started := now()

	table, err := dataset.LoadCSV(opts.DatasetPath)
	if err != nil {
		return nil, err
	}
	matrix, err := dataset.Encode(table)
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	log.Info().
		Str("dataset", opts.DatasetPath).
		Int("rows", matrix.Rows()).
		Int("features", len(matrix.FeatureNames)).
		Msg("dataset encoded")

	split, err := dataset.TrainTestSplit(matrix.Rows(), opts.Forest.TestSize, opts.Forest.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	train := matrix.Subset(split.Train)
	holdout := matrix.Subset(split.Test)

	params := forestParams(opts.Forest)
	fitStart := time.Now()
	model, err := forest.Fit(ctx, train.X, train.Y, params)
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}
	log.Info().
		Int("trees", len(model.Trees)).
		Int("train_rows", train.Rows()).
		Dur("elapsed", time.Since(fitStart)).
		Msg("forest fitted")

	md := &ml.ModelMetadata{
		Version:      started.UTC().Format("20060102-150405"),
		Kind:         ml.ModelKind,
		TrainedAt:    started.UTC(),
		Features:     matrix.FeatureNames,
		NumTrees:     params.NumTrees,
		MaxDepth:     params.MaxDepth,
		Seed:         params.Seed,
		TrainingRows: train.Rows(),
		HoldoutRows:  holdout.Rows(),
	}

	if holdout.Rows() > 0 {
		md.Holdout, err = Evaluate(model, holdout.X, holdout.Y)
		if err != nil {
			return nil, fmt.Errorf("evaluate holdout: %w", err)
		}
		log.Info().
			Float64("r2", md.Holdout.R2).
			Float64("mae", md.Holdout.MAE).
			Float64("rmse", md.Holdout.RMSE).
			Int("holdout_rows", holdout.Rows()).
			Msg("holdout evaluated")
	}
	if holdout.Rows() >= 2 {
		md.FeatureImportance, err = PermutationImportance(model, holdout.X, holdout.Y, matrix.FeatureNames, params.Seed)
		if err != nil {
			return nil, fmt.Errorf("feature importance: %w", err)
		}
	}

	if err := model.Save(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	if err := ml.SaveModelMetadata(opts.ModelPath, md); err != nil {
		return nil, fmt.Errorf("save metadata: %w", err)
	}

	duration := now().Sub(started)
	run := storage.TrainingRun{
		ID:           uuid.New().String(),
		Version:      md.Version,
		StartedAt:    started.UTC(),
		Duration:     duration,
		DatasetPath:  opts.DatasetPath,
		ModelPath:    opts.ModelPath,
		NumTrees:     params.NumTrees,
		Seed:         params.Seed,
		TrainingRows: md.TrainingRows,
		HoldoutRows:  md.HoldoutRows,
	}
	if md.Holdout != nil {
		run.R2, run.MAE, run.RMSE = md.Holdout.R2, md.Holdout.MAE, md.Holdout.RMSE
	}
	if recorder != nil {
		if err := recorder.RecordRun(run); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	if metrics != nil {
		metrics.TrainingRunsInc()
		metrics.TrainingDurationObserve(duration.Seconds())
		metrics.TrainingRowsSet(float64(md.TrainingRows))
		if md.Holdout != nil {
			metrics.HoldoutR2Set(md.Holdout.R2)
		}
	}

	log.Info().
		Str("model", opts.ModelPath).
		Str("version", md.Version).
		Dur("duration", duration).
		Msg("model saved")

	return &Report{Forest: model, Metadata: md, Run: run}, nil
}

func forestParams(s cfg.ForestSettings) forest.Params {
	params := forest.DefaultParams()
	if s.NumTrees > 0 {
		params.NumTrees = s.NumTrees
	}
	params.MaxDepth = s.MaxDepth
	if s.MinSamplesSplit > 0 {
		params.MinSamplesSplit = s.MinSamplesSplit
	}
	if s.MinSamplesLeaf > 0 {
		params.MinSamplesLeaf = s.MinSamplesLeaf
	}
	params.MaxFeatures = s.MaxFeatures
	params.Seed = s.Seed
	params.Workers = s.Workers
	return params
}
