package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// RandomForest is a bagged ensemble of CART classification trees using Gini
// impurity, bootstrap samples and sqrt(features) candidates per split.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int // 0 grows until leaves are pure
	MinSamplesSplit int
	Seed            int64

	nClasses int
	nFeature int
	trees    []*treeNode
}

// NewRandomForest returns a forest with n trees and the given seed.
func NewRandomForest(n int, seed int64) *RandomForest {
	return &RandomForest{NEstimators: n, MinSamplesSplit: 2, Seed: seed}
}

type treeNode struct {
	leaf      bool
	proba     []float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

// Fit trains the forest from scratch.
func (f *RandomForest) Fit(x [][]float64, y []int) error {
	width, err := checkMatrix(x)
	if err != nil {
		return err
	}
	if err := checkLabels(x, y); err != nil {
		return err
	}

	classes := 2
	for _, label := range y {
		if label+1 > classes {
			classes = label + 1
		}
	}
	n := f.NEstimators
	if n <= 0 {
		n = 100
	}
	minSplit := f.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}

	b := &treeBuilder{
		x:        x,
		y:        y,
		classes:  classes,
		maxFeat:  int(math.Max(1, math.Floor(math.Sqrt(float64(width))))),
		width:    width,
		maxDepth: f.MaxDepth,
		minSplit: minSplit,
	}

	seeds := rand.New(rand.NewSource(f.Seed))
	trees := make([]*treeNode, n)
	for t := range trees {
		b.rng = rand.New(rand.NewSource(seeds.Int63()))
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = b.rng.Intn(len(x))
		}
		trees[t] = b.grow(sample, 0)
	}

	f.trees = trees
	f.nClasses = classes
	f.nFeature = width
	return nil
}

// PredictProba averages the class distributions of every tree.
func (f *RandomForest) PredictProba(row []float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}
	if len(row) != f.nFeature {
		return nil, fmt.Errorf("row has %d features, forest was fitted on %d", len(row), f.nFeature)
	}
	proba := make([]float64, f.nClasses)
	for _, tree := range f.trees {
		node := tree
		for !node.leaf {
			if row[node.feature] <= node.threshold {
				node = node.left
			} else {
				node = node.right
			}
		}
		for c, p := range node.proba {
			proba[c] += p
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.trees))
	}
	return proba, nil
}

// Predict returns the most probable class, the lowest label on ties.
func (f *RandomForest) Predict(row []float64) (int, error) {
	proba, err := f.PredictProba(row)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return best, nil
}

type treeBuilder struct {
	x        [][]float64
	y        []int
	classes  int
	width    int
	maxFeat  int
	maxDepth int
	minSplit int
	rng      *rand.Rand
}

func (b *treeBuilder) leaf(counts []float64, n int) *treeNode {
	proba := make([]float64, b.classes)
	if n == 0 {
		return &treeNode{leaf: true, proba: proba}
	}
	for c := range counts {
		proba[c] = counts[c] / float64(n)
	}
	return &treeNode{leaf: true, proba: proba}
}

func (b *treeBuilder) grow(idx []int, depth int) *treeNode {
	counts := make([]float64, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	if gini(counts, float64(len(idx))) == 0 || len(idx) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return b.leaf(counts, len(idx))
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		return b.leaf(counts, len(idx))
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

// bestSplit visits features in random order and stops once maxFeat features
// with at least one valid threshold have been evaluated.
func (b *treeBuilder) bestSplit(idx []int, total []float64) (int, float64, bool) {
	n := float64(len(idx))
	bestScore := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, len(idx))
	left := make([]float64, b.classes)
	right := make([]float64, b.classes)

	visited := 0
	for _, feature := range b.rng.Perm(b.width) {
		if visited >= b.maxFeat {
			break
		}
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][feature] < b.x[sorted[j]][feature] })
		if b.x[sorted[0]][feature] == b.x[sorted[len(sorted)-1]][feature] {
			continue
		}
		visited++

		for c := range left {
			left[c] = 0
			right[c] = total[c]
		}
		for k := 0; k < len(sorted)-1; k++ {
			label := b.y[sorted[k]]
			left[label]++
			right[label]--

			cur, next := b.x[sorted[k]][feature], b.x[sorted[k+1]][feature]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			score := (nl*gini(left, nl) + nr*gini(right, nr)) / n
			if score < bestScore {
				bestScore = score
				bestFeature = feature
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 1.0
	for _, c := range counts {
		p := c / n
		sum -= p * p
	}
	return sum
}
