package cluster

import (
	"math"
	"math/rand"

	"github.com/engram-labs/engram/internal/vector"
)

// kmeansRun is the outcome of one K-means execution at a fixed K.
type kmeansRun struct {
	k           int
	centroids   [][]float32
	assignments []int
	inertia     float64
	iterations  int
}

// cosineDistance is the clustering distance: 1 - cosine similarity. Range
// [0, 2]; 0 means identical direction.
func cosineDistance(a, b []float32) float64 {
	return 1.0 - vector.CosineSimilarity(a, b)
}

// runKMeans partitions points into k clusters. Centroids are seeded from
// distinct randomly chosen member vectors; assignment uses cosine distance
// while the centroid update is the plain arithmetic mean. Iteration stops
// when the average centroid displacement drops below convergence or maxIter
// is reached.
//
// A cluster left without members keeps an all-zero centroid. A zero centroid
// has similarity 0 to every point, so it will rarely win an assignment
// again; the slot is effectively lost for the rest of the run. Preserved
// behavior, see DESIGN.md.
func runKMeans(points [][]float32, k, maxIter int, convergence float64, rng *rand.Rand) kmeansRun {
	dim := len(points[0])

	centroids := make([][]float32, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		centroids[i] = append([]float32(nil), points[idx]...)
	}

	assignments := make([]int, len(points))
	iterations := 0

	for iter := 0; iter < maxIter; iter++ {
		iterations = iter + 1

		for i, p := range points {
			assignments[i] = nearestCentroid(p, centroids)
		}

		next := recomputeCentroids(points, assignments, k, dim)

		displacement := 0.0
		for i := range centroids {
			displacement += euclidean(centroids[i], next[i])
		}
		displacement /= float64(k)

		centroids = next
		if displacement < convergence {
			break
		}
	}

	// Final assignment against the converged centroids.
	inertia := 0.0
	for i, p := range points {
		assignments[i] = nearestCentroid(p, centroids)
		d := cosineDistance(p, centroids[assignments[i]])
		inertia += d * d
	}

	return kmeansRun{
		k:           k,
		centroids:   centroids,
		assignments: assignments,
		inertia:     inertia,
		iterations:  iterations,
	}
}

func nearestCentroid(p []float32, centroids [][]float32) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		if d := cosineDistance(p, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func recomputeCentroids(points [][]float32, assignments []int, k, dim int) [][]float32 {
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, p := range points {
		c := assignments[i]
		counts[c]++
		for j, v := range p {
			sums[c][j] += float64(v)
		}
	}

	next := make([][]float32, k)
	for i := range next {
		next[i] = make([]float32, dim)
		if counts[i] == 0 {
			continue // empty cluster: all-zero centroid
		}
		for j := range next[i] {
			next[i][j] = float32(sums[i][j] / float64(counts[i]))
		}
	}
	return next
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// singleClusterInertia is the K=1 baseline: squared cosine distances to the
// mean of all points. It anchors the inertia curve so the elbow is defined
// even at the smallest candidate K.
func singleClusterInertia(points [][]float32) float64 {
	dim := len(points[0])
	centroid := recomputeCentroids(points, make([]int, len(points)), 1, dim)[0]
	inertia := 0.0
	for _, p := range points {
		d := cosineDistance(p, centroid)
		inertia += d * d
	}
	return inertia
}

// selectElbow picks K from a series of runs ordered by ascending K: the K
// with the maximum drop in the rate of inertia improvement between
// consecutive values. baseline is the K=1 inertia, giving the first run a
// preceding drop; the last run's following drop is taken as zero.
func selectElbow(baseline float64, runs []kmeansRun) int {
	switch len(runs) {
	case 0:
		return -1
	case 1:
		return 0
	}

	bestIdx := 0
	bestScore := math.Inf(-1)
	for i := range runs {
		prev := baseline
		if i > 0 {
			prev = runs[i-1].inertia
		}
		drop := prev - runs[i].inertia
		nextDrop := 0.0
		if i < len(runs)-1 {
			nextDrop = runs[i].inertia - runs[i+1].inertia
		}
		if score := drop - nextDrop; score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}
