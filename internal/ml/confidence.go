package ml

import (
	"fmt"
	"math"

	"housing-forest/internal/forest"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// dispersionEpsilon keeps the normalisation defined when every row has zero
// dispersion.
const dispersionEpsilon = 1e-6

// TreeDispersions returns, for each row, the population standard deviation
// of the member trees' predictions.
func TreeDispersions(members []forest.Predictor, rows [][]float64) ([]float64, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("ensemble has no members")
	}

	// perRow[i][t] is the prediction of tree t for row i.
	perRow := make([][]float64, len(rows))
	for i := range perRow {
		perRow[i] = make([]float64, len(members))
	}
	for t, m := range members {
		preds, err := m.PredictBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", t, err)
		}
		if len(preds) != len(rows) {
			return nil, fmt.Errorf("member %d returned %d predictions for %d rows", t, len(preds), len(rows))
		}
		for i, p := range preds {
			perRow[i][t] = p
		}
	}

	out := make([]float64, len(rows))
	for i, col := range perRow {
		out[i] = math.Sqrt(stat.PopVariance(col, nil))
	}
	return out, nil
}

// Confidences turns per-row dispersions into confidence values relative to
// the most dispersed row of the same batch:
//
//	confidence = 1 - d / (max(d) + 1e-6)
//
// The score is batch-dependent, not a probability. A batch of one row has
// nothing to be compared against and always scores 1.
func Confidences(dispersions []float64) []float64 {
	out := make([]float64, len(dispersions))
	switch len(dispersions) {
	case 0:
		return out
	case 1:
		out[0] = 1
		return out
	}

	maxDispersion := floats.Max(dispersions) + dispersionEpsilon
	for i, d := range dispersions {
		out[i] = 1 - d/maxDispersion
	}
	return out
}

// Round2 rounds v to two decimal digits.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
