package forest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepData returns rows where y is 100 when x[0] > 5 and 0 otherwise; the
// second feature is noise.
func stepData() ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		v := float64(i % 10)
		x = append(x, []float64{v, float64((i * 7) % 13)})
		if v > 5 {
			y = append(y, 100)
		} else {
			y = append(y, 0)
		}
	}
	return x, y
}

func TestTree_PredictRow(t *testing.T) {
	tree := &Tree{Nodes: []Node{
		{Feature: 0, Threshold: 2.5, Left: 1, Right: 2},
		{Leaf: true, Value: -1, Feature: -1},
		{Leaf: true, Value: 1, Feature: -1},
	}}

	v, err := tree.PredictRow([]float64{1})
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)

	v, err = tree.PredictRow([]float64{2.5})
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)

	v, err = tree.PredictRow([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	// NaN compares false and goes right
	v, err = tree.PredictRow([]float64{math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = tree.PredictRow([]float64{})
	assert.Error(t, err)

	_, err = (&Tree{}).PredictRow([]float64{1})
	assert.Error(t, err)
}

func TestFit_SingleTreeWithoutBootstrapRecoversStep(t *testing.T) {
	x, y := stepData()
	params := DefaultParams()
	params.NumTrees = 1
	params.Bootstrap = false

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	require.Len(t, f.Trees, 1)
	assert.Equal(t, 2, f.NumFeatures)

	preds, err := f.PredictBatch([][]float64{{0, 0}, {5, 3}, {6, 1}, {9, 12}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 100, 100}, preds)
	assert.Equal(t, 1, f.Trees[0].Depth())
}

func TestFit_ForestApproximatesStep(t *testing.T) {
	x, y := stepData()
	params := DefaultParams()
	params.NumTrees = 30

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	assert.Len(t, f.Trees, 30)

	preds, err := f.PredictBatch([][]float64{{1, 4}, {8, 4}})
	require.NoError(t, err)
	assert.Less(t, preds[0], 20.0)
	assert.Greater(t, preds[1], 80.0)
}

func TestFit_DeterministicAcrossWorkerCounts(t *testing.T) {
	x, y := stepData()
	params := DefaultParams()
	params.NumTrees = 12
	params.MaxFeatures = 1

	params.Workers = 1
	a, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)

	params.Workers = 8
	b, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFit_MaxDepth(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	y := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	params := DefaultParams()
	params.NumTrees = 5
	params.MaxDepth = 2

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	for _, tree := range f.Trees {
		assert.LessOrEqual(t, tree.Depth(), 2)
	}
}

func TestFit_MinSamplesLeaf(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	y := []float64{0, 0, 0, 10, 10, 50}
	params := DefaultParams()
	params.NumTrees = 1
	params.Bootstrap = false
	params.MinSamplesLeaf = 3

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	for _, n := range f.Trees[0].Nodes {
		if n.Leaf {
			assert.GreaterOrEqual(t, n.Samples, 3)
		}
	}
}

func TestFit_NaNFeaturesDoNotBreakTraining(t *testing.T) {
	x, y := stepData()
	for i := 0; i < len(x); i += 4 {
		x[i][1] = math.NaN()
	}
	params := DefaultParams()
	params.NumTrees = 5

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)

	preds, err := f.PredictBatch([][]float64{{8, math.NaN()}})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(preds[0]))
}

func TestFit_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Fit(ctx, nil, nil, DefaultParams())
	assert.Error(t, err)

	_, err = Fit(ctx, [][]float64{{1}}, []float64{1, 2}, DefaultParams())
	assert.Error(t, err)

	_, err = Fit(ctx, [][]float64{{1}, {1, 2}}, []float64{1, 2}, DefaultParams())
	assert.Error(t, err)

	params := DefaultParams()
	params.NumTrees = 0
	_, err = Fit(ctx, [][]float64{{1}}, []float64{1}, params)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	x, y := stepData()
	_, err = Fit(cancelled, x, y, DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForest_PredictBatchWidth(t *testing.T) {
	x, y := stepData()
	params := DefaultParams()
	params.NumTrees = 3

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)

	_, err = f.PredictBatch([][]float64{{1, 2, 3}})
	assert.Error(t, err)

	preds, err := f.PredictBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestForest_MembersMatchTrees(t *testing.T) {
	x, y := stepData()
	params := DefaultParams()
	params.NumTrees = 4

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)

	rows := [][]float64{{2, 3}, {7, 1}}
	members := f.Members()
	require.Len(t, members, 4)

	sum := make([]float64, len(rows))
	for _, m := range members {
		preds, err := m.PredictBatch(rows)
		require.NoError(t, err)
		for i, p := range preds {
			sum[i] += p
		}
	}
	mean, err := f.PredictBatch(rows)
	require.NoError(t, err)
	for i := range rows {
		assert.InDelta(t, sum[i]/4, mean[i], 1e-9)
	}
}

func TestArtifact_RoundTrip(t *testing.T) {
	x, y := stepData()
	params := DefaultParams()
	params.NumTrees = 10

	f, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "app", "model.json")
	require.NoError(t, f.Save(path))

	row := [][]float64{{6.5, 2}}
	want, err := f.PredictBatch(row)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		loaded, err := Load(path)
		require.NoError(t, err)
		got, err := loaded.PredictBatch(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestArtifact_SaveOverwrites(t *testing.T) {
	x, y := stepData()
	params := DefaultParams()
	path := filepath.Join(t.TempDir(), "model.json")

	params.NumTrees = 2
	first, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	require.NoError(t, first.Save(path))

	params.NumTrees = 5
	second, err := Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	require.NoError(t, second.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Trees, 5)
}

func TestArtifact_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o600))
	_, err = Load(corrupt)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"num_features":13,"trees":[]}`), 0o600))
	_, err = Load(empty)
	assert.Error(t, err)

	badChild := filepath.Join(dir, "bad_child.json")
	require.NoError(t, os.WriteFile(badChild, []byte(`{"num_features":1,"trees":[{"nodes":[{"feature":0,"threshold":1,"left":5,"right":6}]}]}`), 0o600))
	_, err = Load(badChild)
	assert.Error(t, err)

	require.Error(t, (&Forest{}).Save(filepath.Join(dir, "untrained.json")))
}
