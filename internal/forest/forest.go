// Package forest implements bagged CART regression trees: fitting, batch
// prediction and a JSON artifact format.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Predictor is the single capability shared by a tree and a forest.
type Predictor interface {
	PredictBatch(rows [][]float64) ([]float64, error)
}

// Params configures forest fitting.
type Params struct {
	NumTrees        int
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 means all features
	Bootstrap       bool
	Seed            int64
	Workers         int // 0 means runtime.NumCPU()
}

// DefaultParams mirrors the usual random-forest regressor defaults.
func DefaultParams() Params {
	return Params{
		NumTrees:        100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		Seed:            42,
	}
}

// Forest is an ensemble of regression trees. Its prediction is the mean of
// the member trees.
type Forest struct {
	NumFeatures int     `json:"num_features"`
	Trees       []*Tree `json:"trees"`
}

// Fit grows params.NumTrees trees concurrently. Each tree draws its sample
// and feature subsets from its own generator seeded from params.Seed, so the
// result does not depend on scheduling.
func Fit(ctx context.Context, x [][]float64, y []float64, params Params) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("features and targets size mismatch: %d vs %d", len(x), len(y))
	}
	numFeatures := len(x[0])
	if numFeatures == 0 {
		return nil, errors.New("rows have no features")
	}
	for i, row := range x {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), numFeatures)
		}
	}
	if params.NumTrees <= 0 {
		return nil, fmt.Errorf("number of trees must be positive, got %d", params.NumTrees)
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}

	master := rand.New(rand.NewPCG(uint64(params.Seed), uint64(params.NumTrees)))
	seeds := make([]uint64, params.NumTrees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trees := make([]*Tree, params.NumTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
			trees[i] = fitTree(x, y, drawSample(len(x), params.Bootstrap, rng), params, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit trees: %w", err)
	}

	return &Forest{NumFeatures: numFeatures, Trees: trees}, nil
}

func drawSample(n int, bootstrap bool, rng *rand.Rand) []int {
	sample := make([]int, n)
	for i := range sample {
		if bootstrap {
			sample[i] = rng.IntN(n)
		} else {
			sample[i] = i
		}
	}
	return sample
}

// PredictBatch returns the mean tree prediction for every row.
func (f *Forest) PredictBatch(rows [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	for i, row := range rows {
		if len(row) != f.NumFeatures {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), f.NumFeatures)
		}
	}

	out := make([]float64, len(rows))
	for _, t := range f.Trees {
		preds, err := t.PredictBatch(rows)
		if err != nil {
			return nil, err
		}
		for i, p := range preds {
			out[i] += p
		}
	}
	n := float64(len(f.Trees))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// Members exposes the trees behind the common Predictor interface.
func (f *Forest) Members() []Predictor {
	members := make([]Predictor, len(f.Trees))
	for i, t := range f.Trees {
		members[i] = t
	}
	return members
}

// Width returns the number of features every input row must carry.
func (f *Forest) Width() int {
	return f.NumFeatures
}

// Validate checks the structural consistency of a decoded forest.
func (f *Forest) Validate() error {
	if f.NumFeatures <= 0 {
		return fmt.Errorf("invalid feature count %d", f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i, t := range f.Trees {
		if t == nil {
			return fmt.Errorf("tree %d is null", i)
		}
		if err := t.validate(f.NumFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
