package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Node is one entry of a tree's flat node slice. Internal nodes route a row
// left when row[Feature] <= Threshold and right otherwise, so NaN values
// always go right.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Samples   int     `json:"samples"`
	Leaf      bool    `json:"leaf"`
}

// Tree is a regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// PredictRow walks the tree for a single row.
func (t *Tree) PredictRow(row []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, errors.New("tree not trained")
	}
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return node.Value, nil
		}
		if node.Feature < 0 || node.Feature >= len(row) {
			return 0, fmt.Errorf("feature index %d out of range for row of %d values", node.Feature, len(row))
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		if idx <= 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// PredictBatch predicts every row of the batch, preserving order.
func (t *Tree) PredictBatch(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		v, err := t.PredictRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		n := t.Nodes[idx]
		if n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

func (t *Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		// Children are always appended after their parent.
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// treeBuilder grows one CART regression tree on a (bootstrap) sample.
type treeBuilder struct {
	x      [][]float64
	y      []float64
	params Params
	rng    *rand.Rand
	nodes  []Node

	features []int
	order    []int
}

func fitTree(x [][]float64, y []float64, sample []int, params Params, rng *rand.Rand) *Tree {
	numFeatures := len(x[0])
	b := &treeBuilder{
		x:        x,
		y:        y,
		params:   params,
		rng:      rng,
		features: make([]int, numFeatures),
		order:    make([]int, len(sample)),
	}
	for i := range b.features {
		b.features[i] = i
	}
	b.grow(sample, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	mean := sum / n
	sse := sumSq - sum*sum/n

	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Left: -1, Right: -1, Value: mean, Samples: len(idx), Leaf: true})

	if len(idx) < b.params.MinSamplesSplit ||
		len(idx) < 2*b.params.MinSamplesLeaf ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		sse <= 1e-12*math.Max(1, sumSq) {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	b.nodes[self] = Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      l,
		Right:     r,
		Value:     mean,
		Samples:   len(idx),
	}
	return self
}

// bestSplit scans the candidate features for the threshold with the lowest
// summed squared error of the two children.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	candidates := b.candidateFeatures()

	bestFeature := -1
	bestThreshold := 0.0
	bestErr := math.Inf(1)
	minLeaf := b.params.MinSamplesLeaf

	order := b.order[:len(idx)]
	for _, f := range candidates {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool {
			va, vc := b.x[order[a]][f], b.x[order[c]][f]
			if math.IsNaN(va) {
				return false
			}
			return math.IsNaN(vc) || va < vc
		})

		// NaN rows sit at the tail and always stay on the right.
		valid := len(order)
		for valid > 0 && math.IsNaN(b.x[order[valid-1]][f]) {
			valid--
		}

		totalSum, totalSq := 0.0, 0.0
		for _, i := range order {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		leftSum, leftSq := 0.0, 0.0
		for k := 0; k < valid-1; k++ {
			yi := b.y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			cur, next := b.x[order[k]][f], b.x[order[k+1]][f]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := float64(len(order) - k - 1)
			if k+1 < minLeaf || len(order)-k-1 < minLeaf {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			errSum := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if errSum < bestErr {
				bestErr = errSum
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// candidateFeatures returns the features considered at one node: all of them
// when MaxFeatures is unset, otherwise a random subset of that size.
func (b *treeBuilder) candidateFeatures() []int {
	k := b.params.MaxFeatures
	if k <= 0 || k >= len(b.features) {
		return b.features
	}
	b.rng.Shuffle(len(b.features), func(i, j int) {
		b.features[i], b.features[j] = b.features[j], b.features[i]
	})
	return b.features[:k]
}
