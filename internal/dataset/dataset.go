// Package dataset loads the housing CSV and turns it into a numeric feature
// matrix for the forest trainer.
//
// Encoding follows the training recipe the served model was built with:
// yes/no columns become 1/0 (anything else becomes NaN), the furnishing
// status column is expanded into indicator columns with the first category
// (lexicographic) dropped as reference level, and the price column is
// isolated as target.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"housing-forest/internal/common"
)

// Table is a raw CSV table with a header row.
type Table struct {
	Header  []string
	Records [][]string
}

// Matrix is an encoded dataset ready for fitting.
type Matrix struct {
	FeatureNames []string
	X            [][]float64
	Y            []float64
}

// Rows returns the number of samples.
func (m *Matrix) Rows() int {
	return len(m.X)
}

// LoadCSV reads a CSV file with a header row.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads a CSV stream with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty CSV: missing header")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	return &Table{Header: header, Records: records}, nil
}

func (t *Table) columnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Encode converts the housing table into a feature matrix and target vector.
func Encode(t *Table) (*Matrix, error) {
	targetIdx := t.columnIndex(common.TargetColumn)
	if targetIdx < 0 {
		return nil, fmt.Errorf("missing target column %q", common.TargetColumn)
	}
	furnishIdx := t.columnIndex(common.FurnishingColumn)
	if furnishIdx < 0 {
		return nil, fmt.Errorf("missing column %q", common.FurnishingColumn)
	}

	binary := make(map[int]bool, len(common.BinaryColumns))
	for _, name := range common.BinaryColumns {
		idx := t.columnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("missing column %q", name)
		}
		binary[idx] = true
	}

	// Plain columns keep file order; indicators are appended after them.
	var plain []int
	var names []string
	for i, h := range t.Header {
		if i == targetIdx || i == furnishIdx {
			continue
		}
		plain = append(plain, i)
		names = append(names, h)
	}

	levels := indicatorLevels(t.Records, furnishIdx)
	for _, level := range levels {
		names = append(names, common.FurnishingColumn+"_"+level)
	}

	m := &Matrix{
		FeatureNames: names,
		X:            make([][]float64, 0, len(t.Records)),
		Y:            make([]float64, 0, len(t.Records)),
	}

	for row, rec := range t.Records {
		if len(rec) != len(t.Header) {
			return nil, fmt.Errorf("row %d: expected %d fields, got %d", row+1, len(t.Header), len(rec))
		}

		y, err := parseNumber(rec[targetIdx])
		if err == nil && math.IsNaN(y) {
			err = errors.New("missing value")
		}
		if err != nil {
			return nil, fmt.Errorf("row %d column %q: %w", row+1, common.TargetColumn, err)
		}

		x := make([]float64, 0, len(names))
		for _, idx := range plain {
			if binary[idx] {
				x = append(x, EncodeBinary(rec[idx]))
				continue
			}
			v, err := parseNumber(rec[idx])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", row+1, t.Header[idx], err)
			}
			x = append(x, v)
		}

		category := strings.TrimSpace(rec[furnishIdx])
		for _, level := range levels {
			if category == level {
				x = append(x, 1)
			} else {
				x = append(x, 0)
			}
		}

		m.X = append(m.X, x)
		m.Y = append(m.Y, y)
	}

	return m, nil
}

// EncodeBinary maps "yes" to 1 and "no" to 0. Any other value yields NaN.
func EncodeBinary(v string) float64 {
	switch strings.TrimSpace(v) {
	case "yes":
		return 1
	case "no":
		return 0
	default:
		return math.NaN()
	}
}

// indicatorLevels returns the sorted distinct categories of a column minus
// the first one, which serves as the reference level.
func indicatorLevels(records [][]string, idx int) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		if idx < len(rec) {
			if v := strings.TrimSpace(rec[idx]); v != "" {
				seen[v] = struct{}{}
			}
		}
	}

	levels := make([]string, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Strings(levels)

	if len(levels) == 0 {
		return nil
	}
	return levels[1:]
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}
