package dataset

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallCSV = `price,area,bedrooms,bathrooms,stories,mainroad,guestroom,basement,hotwaterheating,airconditioning,parking,prefarea,furnishingstatus
13300000,7420,4,2,3,yes,no,no,no,yes,2,yes,furnished
12250000,8960,4,4,4,yes,no,no,no,yes,3,no,furnished
12250000,9960,3,2,2,yes,no,yes,no,no,2,yes,semi-furnished
1750000,3850,3,1,2,yes,no,no,no,no,0,no,unfurnished
`

func TestEncode_HousingLayout(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(smallCSV))
	require.NoError(t, err)

	m, err := Encode(table)
	require.NoError(t, err)

	expectedNames := []string{
		"area", "bedrooms", "bathrooms", "stories", "mainroad", "guestroom",
		"basement", "hotwaterheating", "airconditioning", "parking", "prefarea",
		"furnishingstatus_semi-furnished", "furnishingstatus_unfurnished",
	}
	assert.Equal(t, expectedNames, m.FeatureNames)
	assert.Len(t, m.FeatureNames, 13)
	require.Equal(t, 4, m.Rows())

	assert.Equal(t, []float64{13300000, 12250000, 12250000, 1750000}, m.Y)
	assert.Equal(t, []float64{7420, 4, 2, 3, 1, 0, 0, 0, 1, 2, 1, 0, 0}, m.X[0])
	assert.Equal(t, []float64{9960, 3, 2, 2, 1, 0, 1, 0, 0, 2, 1, 1, 0}, m.X[2])
	assert.Equal(t, []float64{3850, 3, 1, 2, 1, 0, 0, 0, 0, 0, 0, 0, 1}, m.X[3])
}

func TestEncodeBinary(t *testing.T) {
	assert.Equal(t, 1.0, EncodeBinary("yes"))
	assert.Equal(t, 0.0, EncodeBinary("no"))
	assert.Equal(t, 1.0, EncodeBinary(" yes "))
	assert.True(t, math.IsNaN(EncodeBinary("Yes")))
	assert.True(t, math.IsNaN(EncodeBinary("maybe")))
	assert.True(t, math.IsNaN(EncodeBinary("")))
}

func TestEncode_UnknownBinaryValueBecomesNaN(t *testing.T) {
	csv := strings.Replace(smallCSV, "7420,4,2,3,yes", "7420,4,2,3,perhaps", 1)
	table, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)

	m, err := Encode(table)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.X[0][4]))
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"missing target", "area,mainroad,guestroom,basement,hotwaterheating,airconditioning,prefarea,furnishingstatus\n1,yes,no,no,no,no,no,furnished\n"},
		{"missing furnishing", "price,area,mainroad,guestroom,basement,hotwaterheating,airconditioning,prefarea\n1,1,yes,no,no,no,no,no\n"},
		{"missing binary column", "price,area,guestroom,basement,hotwaterheating,airconditioning,prefarea,furnishingstatus\n1,1,no,no,no,no,no,furnished\n"},
		{"non numeric area", strings.Replace(smallCSV, "7420", "big", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ReadCSV(strings.NewReader(tt.csv))
			require.NoError(t, err)

			_, err = Encode(table)
			assert.Error(t, err)
		})
	}
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadCSV_Fixture(t *testing.T) {
	table, err := LoadCSV(filepath.Join("testdata", "housing_sample.csv"))
	require.NoError(t, err)

	m, err := Encode(table)
	require.NoError(t, err)
	assert.Equal(t, 40, m.Rows())
	assert.Len(t, m.FeatureNames, 13)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	split, err := TrainTestSplit(545, 0.2, 42)
	require.NoError(t, err)

	assert.Len(t, split.Test, 109) // ceil(545 * 0.2)
	assert.Len(t, split.Train, 436)

	all := append(append([]int{}, split.Train...), split.Test...)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v, "split must be a partition of all rows")
	}
}

func TestTrainTestSplit_Reproducible(t *testing.T) {
	a, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	b, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	c, err := TrainTestSplit(100, 0.2, 7)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Test, c.Test)
}

func TestTrainTestSplit_Invalid(t *testing.T) {
	_, err := TrainTestSplit(0, 0.2, 1)
	assert.Error(t, err)

	_, err = TrainTestSplit(10, 1.0, 1)
	assert.Error(t, err)

	_, err = TrainTestSplit(1, 0.5, 1)
	assert.Error(t, err)
}

func TestSubset(t *testing.T) {
	m := &Matrix{
		FeatureNames: []string{"a"},
		X:            [][]float64{{1}, {2}, {3}},
		Y:            []float64{10, 20, 30},
	}

	sub := m.Subset([]int{2, 0})
	assert.Equal(t, [][]float64{{3}, {1}}, sub.X)
	assert.Equal(t, []float64{30, 10}, sub.Y)
	assert.Equal(t, m.FeatureNames, sub.FeatureNames)
}
