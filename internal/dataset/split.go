package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Split holds the row indices of a train/holdout partition.
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles n row indices with a seeded generator and reserves
// ceil(n*testSize) of them for the holdout set.
func TrainTestSplit(n int, testSize float64, seed int64) (Split, error) {
	if n <= 0 {
		return Split{}, fmt.Errorf("cannot split %d rows", n)
	}
	if testSize < 0 || testSize >= 1 {
		return Split{}, fmt.Errorf("test size must be in [0, 1), got %f", testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest >= n {
		return Split{}, fmt.Errorf("test size %f leaves no training rows out of %d", testSize, n)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)

	return Split{
		Test:  perm[:nTest],
		Train: perm[nTest:],
	}, nil
}

// Subset returns the rows of m selected by idx, in idx order.
func (m *Matrix) Subset(idx []int) *Matrix {
	out := &Matrix{
		FeatureNames: m.FeatureNames,
		X:            make([][]float64, len(idx)),
		Y:            make([]float64, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = m.X[j]
		out.Y[i] = m.Y[j]
	}
	return out
}
