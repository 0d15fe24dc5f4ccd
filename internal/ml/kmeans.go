package ml

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KMeans is Lloyd's algorithm with k-means++ seeding. The run with the lowest
// inertia out of NInit restarts is kept.
type KMeans struct {
	K       int
	MaxIter int
	NInit   int
	Tol     float64
	Seed    int64

	Centroids [][]float64
	Inertia   float64
}

// NewKMeans returns a k-cluster model with the usual defaults.
func NewKMeans(k int, seed int64) *KMeans {
	return &KMeans{K: k, MaxIter: 300, NInit: 10, Tol: 1e-4, Seed: seed}
}

// Fit clusters x from scratch.
func (km *KMeans) Fit(x [][]float64) error {
	width, err := checkMatrix(x)
	if err != nil {
		return err
	}
	if km.K <= 0 {
		return fmt.Errorf("k must be positive, got %d", km.K)
	}
	if len(x) < km.K {
		return fmt.Errorf("need at least %d rows to form %d clusters, got %d", km.K, km.K, len(x))
	}

	// Convergence tolerance scales with the mean per-feature variance.
	col := make([]float64, len(x))
	meanVar := 0.0
	for j := 0; j < width; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		meanVar += stat.PopVariance(col, nil)
	}
	tol := km.Tol * meanVar / float64(width)

	nInit := km.NInit
	if nInit <= 0 {
		nInit = 1
	}
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}

	rng := rand.New(rand.NewSource(km.Seed))
	best := math.Inf(1)
	var bestCentroids [][]float64
	for run := 0; run < nInit; run++ {
		centroids := km.seed(x, rng)
		inertia := lloyd(x, centroids, maxIter, tol)
		if inertia < best {
			best = inertia
			bestCentroids = centroids
		}
	}

	km.Centroids = bestCentroids
	km.Inertia = best
	return nil
}

// Predict returns the index of the nearest centroid.
func (km *KMeans) Predict(row []float64) (int, error) {
	if len(km.Centroids) == 0 {
		return 0, ErrNotFitted
	}
	if len(row) != len(km.Centroids[0]) {
		return 0, fmt.Errorf("row has %d features, centroids have %d", len(row), len(km.Centroids[0]))
	}
	label, _ := nearest(row, km.Centroids)
	return label, nil
}

func (km *KMeans) seed(x [][]float64, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, km.K)
	centroids = append(centroids, cloneRow(x[rng.Intn(len(x))]))

	dist := make([]float64, len(x))
	for len(centroids) < km.K {
		total := 0.0
		for i, row := range x {
			_, d := nearest(row, centroids)
			dist[i] = d
			total += d
		}
		if total == 0 {
			centroids = append(centroids, cloneRow(x[rng.Intn(len(x))]))
			continue
		}
		target := rng.Float64() * total
		pick := len(x) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, cloneRow(x[pick]))
	}
	return centroids
}

// lloyd refines centroids in place and returns the final inertia. Empty
// clusters keep their previous centroid.
func lloyd(x [][]float64, centroids [][]float64, maxIter int, tol float64) float64 {
	width := len(centroids[0])
	labels := make([]int, len(x))
	sums := make([][]float64, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, width)
	}
	counts := make([]int, len(centroids))

	for iter := 0; iter < maxIter; iter++ {
		for i, row := range x {
			labels[i], _ = nearest(row, centroids)
		}

		for c := range sums {
			floats.Scale(0, sums[c])
			counts[c] = 0
		}
		for i, row := range x {
			floats.Add(sums[labels[i]], row)
			counts[labels[i]]++
		}

		shift := 0.0
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			d := floats.Distance(centroids[c], sums[c], 2)
			shift += d * d
			copy(centroids[c], sums[c])
		}
		if shift <= tol {
			break
		}
	}

	inertia := 0.0
	for _, row := range x {
		_, d := nearest(row, centroids)
		inertia += d
	}
	return inertia
}

// nearest returns the closest centroid and its squared distance.
func nearest(row []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		d := floats.Distance(row, centroid, 2)
		if d*d < bestDist {
			best, bestDist = c, d*d
		}
	}
	return best, bestDist
}

func cloneRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
