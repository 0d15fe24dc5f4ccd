package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// IsolationForest flags outliers by how quickly random axis-aligned splits
// isolate them. Predict returns -1 for outliers and 1 for inliers; the cut-off
// is set so that roughly Contamination of the training rows are outliers.
type IsolationForest struct {
	NEstimators   int
	MaxSamples    int // 0 means min(256, rows)
	Contamination float64
	Seed          int64

	trees      []*isoNode
	sampleSize int
	width      int
	offset     float64
}

// NewIsolationForest returns a forest with 100 trees.
func NewIsolationForest(contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{NEstimators: 100, Contamination: contamination, Seed: seed}
}

type isoNode struct {
	size      int
	feature   int
	threshold float64
	left      *isoNode
	right     *isoNode
}

// Fit grows the trees and calibrates the outlier cut-off on x.
func (f *IsolationForest) Fit(x [][]float64) error {
	width, err := checkMatrix(x)
	if err != nil {
		return err
	}
	if f.Contamination <= 0 || f.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %v", f.Contamination)
	}

	n := f.NEstimators
	if n <= 0 {
		n = 100
	}
	sampleSize := f.MaxSamples
	if sampleSize <= 0 {
		sampleSize = 256
	}
	if sampleSize > len(x) {
		sampleSize = len(x)
	}
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))

	rng := rand.New(rand.NewSource(f.Seed))
	trees := make([]*isoNode, n)
	for t := range trees {
		perm := rng.Perm(len(x))[:sampleSize]
		trees[t] = growIso(x, perm, width, 0, heightLimit, rng)
	}
	f.trees = trees
	f.sampleSize = sampleSize
	f.width = width

	scores := make([]float64, len(x))
	for i, row := range x {
		scores[i] = f.score(row)
	}
	f.offset = percentile(scores, f.Contamination)
	return nil
}

// ScoreSamples returns the opposite of the anomaly score: lower is more
// abnormal, values lie in [-1, 0).
func (f *IsolationForest) ScoreSamples(row []float64) (float64, error) {
	if len(f.trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(row) != f.width {
		return 0, fmt.Errorf("row has %d features, forest was fitted on %d", len(row), f.width)
	}
	return f.score(row), nil
}

// Predict returns -1 for an outlier and 1 for an inlier.
func (f *IsolationForest) Predict(row []float64) (int, error) {
	s, err := f.ScoreSamples(row)
	if err != nil {
		return 0, err
	}
	if s < f.offset {
		return -1, nil
	}
	return 1, nil
}

func (f *IsolationForest) score(row []float64) float64 {
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(row, tree, 0)
	}
	mean := total / float64(len(f.trees))
	// A one-row sample has no expected depth; treat it as depth ratio 1.
	ratio := 1.0
	if c := averagePath(f.sampleSize); c > 0 {
		ratio = mean / c
	}
	return -math.Pow(2, -ratio)
}

func growIso(x [][]float64, idx []int, width, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	// Only features that still vary inside the node can split it.
	var candidates []int
	lows := make([]float64, width)
	highs := make([]float64, width)
	for j := 0; j < width; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			lo = math.Min(lo, x[i][j])
			hi = math.Max(hi, x[i][j])
		}
		lows[j], highs[j] = lo, hi
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &isoNode{size: len(idx)}
	}

	feature := candidates[rng.Intn(len(candidates))]
	threshold := lows[feature] + rng.Float64()*(highs[feature]-lows[feature])

	var left, right []int
	for _, i := range idx {
		if x[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &isoNode{
		size:      len(idx),
		feature:   feature,
		threshold: threshold,
		left:      growIso(x, left, width, depth+1, limit, rng),
		right:     growIso(x, right, width, depth+1, limit, rng),
	}
}

func pathLength(row []float64, node *isoNode, depth int) float64 {
	if node.left == nil {
		return float64(depth) + averagePath(node.size)
	}
	if row[node.feature] < node.threshold {
		return pathLength(row, node.left, depth+1)
	}
	return pathLength(row, node.right, depth+1)
}

// averagePath is the mean path length of an unsuccessful search in a binary
// search tree of n nodes.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n)
	return 2*(math.Log(m-1)+eulerGamma) - 2*(m-1)/m
}

// percentile interpolates linearly between closest ranks, q in [0, 1].
func percentile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}
