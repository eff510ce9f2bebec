// Package kmeans implements Lloyd's algorithm over flattened float32
// vectors. It is the centroid trainer behind product quantization.
package kmeans

import (
	"errors"
	"math"
	"math/rand"

	"github.com/hupe1980/vecquant/internal/simd"
)

// ErrInsufficientData is returned when fewer vectors than clusters are given.
var ErrInsufficientData = errors.New("kmeans: fewer vectors than clusters")

// Result holds the trained centroids and convergence information.
type Result struct {
	// Centroids is the flattened k*dim centroid matrix.
	Centroids []float32
	// Converged is false when the iteration budget ran out before the
	// centroids stabilized. The centroids are still usable.
	Converged bool
	// Iterations is the number of Lloyd iterations performed.
	Iterations int
}

// Config bounds a training run.
type Config struct {
	// MaxIterations is the Lloyd iteration budget.
	MaxIterations int
	// Threshold is the max squared centroid movement considered converged.
	Threshold float32
	// Rand is the randomness source for seeding. Must not be nil.
	Rand *rand.Rand
}

// Train clusters n = len(vectors)/dim points into k centroids.
// Seeding is k-means++: the first centroid is drawn uniformly, each
// subsequent one proportional to the squared distance from the nearest
// already-chosen centroid.
func Train(vectors []float32, dim, k int, cfg Config) (*Result, error) {
	n := len(vectors) / dim
	if n < k {
		return nil, ErrInsufficientData
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}

	centroids := seedPlusPlus(vectors, dim, n, k, cfg.Rand)

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)
	prev := make([]float32, k*dim)

	res := &Result{Centroids: centroids}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		res.Iterations = iter + 1
		changed := false

		// Assignment step
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := nearest(vec, centroids, dim, k)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			res.Converged = true
			break
		}

		// Update step
		copy(prev, centroids)
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += vec[d]
			}
			counts[c]++
		}
		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				inv := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * inv
				}
			} else {
				// Reseed empty cluster with a random point.
				idx := cfg.Rand.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}

		if cfg.Threshold > 0 && maxMovement(prev, centroids, dim, k) <= cfg.Threshold {
			res.Converged = true
			break
		}
	}

	return res, nil
}

// Nearest returns the index of the closest centroid to vec.
func Nearest(vec, centroids []float32, dim int) int {
	return nearest(vec, centroids, dim, len(centroids)/dim)
}

func nearest(vec, centroids []float32, dim, k int) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := simd.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

func maxMovement(prev, curr []float32, dim, k int) float32 {
	var maxMove float32
	for j := 0; j < k; j++ {
		m := simd.SquaredL2(prev[j*dim:(j+1)*dim], curr[j*dim:(j+1)*dim])
		if m > maxMove {
			maxMove = m
		}
	}
	return maxMove
}

func seedPlusPlus(vectors []float32, dim, n, k int, r *rand.Rand) []float32 {
	centroids := make([]float32, k*dim)

	first := r.Intn(n)
	copy(centroids[:dim], vectors[first*dim:(first+1)*dim])

	// minDistSq tracks each vector's squared distance to its nearest
	// chosen centroid.
	minDistSq := make([]float32, n)
	var sum float32
	for i := 0; i < n; i++ {
		d := simd.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[:dim])
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		if sum == 0 {
			idx := r.Intn(n)
			copy(centroids[c*dim:(c+1)*dim], vectors[idx*dim:(idx+1)*dim])
			continue
		}

		target := r.Float32() * sum
		var cumsum float32
		chosen := 0
		for i, d := range minDistSq {
			cumsum += d
			if cumsum >= target {
				chosen = i
				break
			}
		}
		copy(centroids[c*dim:(c+1)*dim], vectors[chosen*dim:(chosen+1)*dim])

		sum = 0
		for i := 0; i < n; i++ {
			d := simd.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[c*dim:(c+1)*dim])
			if d < minDistSq[i] {
				minDistSq[i] = d
			}
			sum += minDistSq[i]
		}
	}

	return centroids
}
