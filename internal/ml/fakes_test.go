package ml

import (
	"errors"

	"housing-forest/internal/common"
	"housing-forest/internal/forest"
)

type funcTree func(row []float64) float64

func (f funcTree) PredictBatch(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = f(row)
	}
	return out, nil
}

// fakeEnsemble averages its trees like a forest does and counts calls.
type fakeEnsemble struct {
	trees []forest.Predictor
	width int
	err   error
	calls int
}

func (e *fakeEnsemble) PredictBatch(rows [][]float64) ([]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([]float64, len(rows))
	for _, t := range e.trees {
		preds, _ := t.PredictBatch(rows)
		for i, p := range preds {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(e.trees))
	}
	return out, nil
}

func (e *fakeEnsemble) Members() []forest.Predictor { return e.trees }
func (e *fakeEnsemble) Width() int                  { return e.width }

// spreadEnsemble has three trees predicting row[0]-row[1], row[0] and
// row[0]+row[1]: the mean is row[0] and the dispersion grows with |row[1]|.
func spreadEnsemble() *fakeEnsemble {
	return &fakeEnsemble{
		width: common.ServingFeatureLen,
		trees: []forest.Predictor{
			funcTree(func(r []float64) float64 { return r[0] - r[1] }),
			funcTree(func(r []float64) float64 { return r[0] }),
			funcTree(func(r []float64) float64 { return r[0] + r[1] }),
		},
	}
}

func failingEnsemble() *fakeEnsemble {
	e := spreadEnsemble()
	e.err = errors.New("boom")
	return e
}

// row builds a serving-width row with the first two values set.
func row(mean, spread float64) []float64 {
	r := make([]float64, common.ServingFeatureLen)
	r[0] = mean
	r[1] = spread
	return r
}
