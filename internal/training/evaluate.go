package training

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"housing-forest/internal/forest"
	"housing-forest/internal/ml"
)

// Evaluate scores model predictions against the held-out targets.
func Evaluate(model forest.Predictor, x [][]float64, y []float64) (*ml.HoldoutMetrics, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("no holdout rows")
	}
	preds, err := model.PredictBatch(x)
	if err != nil {
		return nil, fmt.Errorf("predict holdout: %w", err)
	}
	return score(preds, y), nil
}

func score(preds, y []float64) *ml.HoldoutMetrics {
	n := float64(len(y))
	return &ml.HoldoutMetrics{
		R2:   finite(stat.RSquaredFrom(preds, y, nil)),
		MAE:  floats.Distance(preds, y, 1) / n,
		RMSE: floats.Distance(preds, y, 2) / math.Sqrt(n),
	}
}

// finite maps NaN and infinities to zero so metrics stay JSON encodable.
// R² is undefined when every holdout target is equal.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// PermutationImportance measures, for every feature, how much the holdout R²
// drops when that feature's column is shuffled. Larger drops mean the model
// leans on the feature more. Negative drops are clamped to zero.
func PermutationImportance(model forest.Predictor, x [][]float64, y []float64, names []string, seed int64) (map[string]float64, error) {
	if len(x) < 2 {
		return nil, fmt.Errorf("need at least 2 holdout rows, got %d", len(x))
	}
	if len(names) != len(x[0]) {
		return nil, fmt.Errorf("%d feature names for %d columns", len(names), len(x[0]))
	}

	baseline, err := Evaluate(model, x, y)
	if err != nil {
		return nil, err
	}

	importance := make(map[string]float64, len(names))
	permuted := make([][]float64, len(x))
	for j, name := range names {
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(j)))
		perm := rng.Perm(len(x))
		for i := range x {
			row := make([]float64, len(x[i]))
			copy(row, x[i])
			row[j] = x[perm[i]][j]
			permuted[i] = row
		}

		shuffled, err := Evaluate(model, permuted, y)
		if err != nil {
			return nil, err
		}
		importance[name] = math.Max(0, baseline.R2-shuffled.R2)
	}
	return importance, nil
}
