// Package ml serves a tree ensemble over HTTP. It validates feature batches,
// runs batch inference and attaches a batch-relative confidence score derived
// from how much the member trees disagree on each row.
package ml

import "housing-forest/internal/forest"

// Ensemble is a homogeneous collection of tree predictors that can also
// predict as a whole. forest.Forest satisfies it.
type Ensemble interface {
	forest.Predictor

	// Members returns the individual trees of the ensemble.
	Members() []forest.Predictor

	// Width is the number of features every row must carry.
	Width() int
}
