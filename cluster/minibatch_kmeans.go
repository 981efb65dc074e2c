// Package cluster provides the clustering estimators that clustering-based
// detectors delegate to.
package cluster

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// MiniBatchKMeans is a mini-batch variant of k-means clustering. Cluster
// centers are initialized with k-means++ and refined with per-sample
// streaming averages over randomly drawn mini-batches.
type MiniBatchKMeans struct {
	model.BaseEstimator

	// Hyperparameters.
	nClusters        int
	init             string // "k-means++" or "random"
	maxIter          int
	batchSize        int
	tol              float64
	maxNoImprovement int
	randomState      int64

	// Learned parameters.
	clusterCenters_ [][]float64
	labels_         []int
	inertia_        float64
	nIter_          int
	nFeatures_      int

	rng *rand.Rand
}

// Option configures a MiniBatchKMeans.
type Option func(*MiniBatchKMeans)

// WithNClusters sets the number of clusters.
func WithNClusters(n int) Option {
	return func(km *MiniBatchKMeans) {
		km.nClusters = n
	}
}

// WithInit sets the initialization method, "k-means++" or "random".
func WithInit(init string) Option {
	return func(km *MiniBatchKMeans) {
		km.init = init
	}
}

// WithMaxIter sets the maximum number of mini-batch iterations.
func WithMaxIter(maxIter int) Option {
	return func(km *MiniBatchKMeans) {
		km.maxIter = maxIter
	}
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(batchSize int) Option {
	return func(km *MiniBatchKMeans) {
		km.batchSize = batchSize
	}
}

// WithTol sets the inertia improvement tolerance used for early stopping.
func WithTol(tol float64) Option {
	return func(km *MiniBatchKMeans) {
		km.tol = tol
	}
}

// WithRandomState seeds the random number generator for reproducible
// clustering. Negative seeds select a time-based source.
func WithRandomState(seed int64) Option {
	return func(km *MiniBatchKMeans) {
		km.randomState = seed
	}
}

// NewMiniBatchKMeans creates an unfitted MiniBatchKMeans.
func NewMiniBatchKMeans(options ...Option) *MiniBatchKMeans {
	km := &MiniBatchKMeans{
		nClusters:        8,
		init:             "k-means++",
		maxIter:          100,
		batchSize:        100,
		tol:              0.0,
		maxNoImprovement: 10,
		randomState:      -1,
	}

	for _, opt := range options {
		opt(km)
	}

	if km.randomState >= 0 {
		km.rng = rand.New(rand.NewSource(km.randomState))
	} else {
		km.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return km
}

// NClusters returns the configured number of clusters.
func (km *MiniBatchKMeans) NClusters() int {
	return km.nClusters
}

// Fit clusters the training data.
func (km *MiniBatchKMeans) Fit(X mat.Matrix) error {
	if X == nil {
		return errors.NewValueError("MiniBatchKMeans.Fit", "input matrix is nil")
	}

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewFitError("MiniBatchKMeans.Fit", "empty data", errors.ErrEmptyData)
	}
	if km.nClusters < 1 {
		return errors.NewValidationError("n_clusters", "must be positive", km.nClusters)
	}
	if rows < km.nClusters {
		return errors.NewInsufficientDataError("MiniBatchKMeans.Fit", km.nClusters, 1, rows, cols)
	}

	centers := km.initializeCenters(X)
	counts := make([]int, km.nClusters)

	prevInertia := math.Inf(1)
	noImprovement := 0
	nIter := 0

	for iter := 0; iter < km.maxIter; iter++ {
		nIter = iter + 1

		for _, idx := range km.sampleBatch(rows) {
			sample := mat.Row(nil, idx, X)
			nearest, _ := nearestCenter(sample, centers)

			// Per-center learning rate decays with its assignment count.
			counts[nearest]++
			eta := 1.0 / float64(counts[nearest])
			for j := 0; j < cols; j++ {
				centers[nearest][j] = (1-eta)*centers[nearest][j] + eta*sample[j]
			}
		}

		inertia := computeInertia(X, centers)
		if prevInertia-inertia < km.tol {
			noImprovement++
			if noImprovement >= km.maxNoImprovement {
				break
			}
		} else {
			noImprovement = 0
		}
		prevInertia = inertia
	}

	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		labels[i], _ = nearestCenter(mat.Row(nil, i, X), centers)
	}

	km.clusterCenters_ = centers
	km.labels_ = labels
	km.inertia_ = computeInertia(X, centers)
	km.nIter_ = nIter
	km.nFeatures_ = cols
	km.SetFitted()
	return nil
}

// Transform converts each row of X into its distances to the cluster
// centers, returning an (n_samples x n_clusters) matrix.
func (km *MiniBatchKMeans) Transform(X mat.Matrix) (*mat.Dense, error) {
	if !km.IsFitted() {
		return nil, errors.NewNotFittedError("MiniBatchKMeans", "Transform")
	}

	rows, cols := X.Dims()
	if cols != km.nFeatures_ {
		return nil, errors.NewDimensionError("MiniBatchKMeans.Transform", km.nFeatures_, cols, 1)
	}

	distances := mat.NewDense(rows, km.nClusters, nil)
	for i := 0; i < rows; i++ {
		sample := mat.Row(nil, i, X)
		for c := range km.clusterCenters_ {
			distances.Set(i, c, euclidean(sample, km.clusterCenters_[c]))
		}
	}
	return distances, nil
}

// Predict assigns each row of X to its nearest cluster.
func (km *MiniBatchKMeans) Predict(X mat.Matrix) ([]int, error) {
	if !km.IsFitted() {
		return nil, errors.NewNotFittedError("MiniBatchKMeans", "Predict")
	}

	rows, cols := X.Dims()
	if cols != km.nFeatures_ {
		return nil, errors.NewDimensionError("MiniBatchKMeans.Predict", km.nFeatures_, cols, 1)
	}

	assignments := make([]int, rows)
	for i := 0; i < rows; i++ {
		assignments[i], _ = nearestCenter(mat.Row(nil, i, X), km.clusterCenters_)
	}
	return assignments, nil
}

// ClusterCenters returns a copy of the fitted cluster centers.
func (km *MiniBatchKMeans) ClusterCenters() [][]float64 {
	centers := make([][]float64, len(km.clusterCenters_))
	for i := range km.clusterCenters_ {
		centers[i] = make([]float64, len(km.clusterCenters_[i]))
		copy(centers[i], km.clusterCenters_[i])
	}
	return centers
}

// SetClusterCenters restores fitted cluster centers, e.g. from a serialized
// model, and marks the estimator as fitted.
func (km *MiniBatchKMeans) SetClusterCenters(centers [][]float64) error {
	if len(centers) == 0 {
		return errors.NewValueError("MiniBatchKMeans.SetClusterCenters", "empty centers")
	}
	width := len(centers[0])
	copied := make([][]float64, len(centers))
	for i := range centers {
		if len(centers[i]) != width {
			return errors.NewDimensionError("MiniBatchKMeans.SetClusterCenters", width, len(centers[i]), 1)
		}
		copied[i] = make([]float64, width)
		copy(copied[i], centers[i])
	}
	km.clusterCenters_ = copied
	km.nClusters = len(copied)
	km.nFeatures_ = width
	km.SetFitted()
	return nil
}

// Labels returns the cluster label of each training sample.
func (km *MiniBatchKMeans) Labels() []int {
	if km.labels_ == nil {
		return nil
	}
	labels := make([]int, len(km.labels_))
	copy(labels, km.labels_)
	return labels
}

// Inertia returns the within-cluster sum of squared distances of the
// training data.
func (km *MiniBatchKMeans) Inertia() float64 {
	return km.inertia_
}

// NIterations returns the number of mini-batch iterations run during Fit.
func (km *MiniBatchKMeans) NIterations() int {
	return km.nIter_
}

// initializeCenters picks the initial cluster centers.
func (km *MiniBatchKMeans) initializeCenters(X mat.Matrix) [][]float64 {
	rows, _ := X.Dims()

	if km.init == "random" {
		centers := make([][]float64, km.nClusters)
		for i := range centers {
			centers[i] = mat.Row(nil, km.rng.Intn(rows), X)
		}
		return centers
	}

	// k-means++: each new center is drawn with probability proportional to
	// the squared distance from the nearest existing center.
	centers := make([][]float64, km.nClusters)
	centers[0] = mat.Row(nil, km.rng.Intn(rows), X)

	distances := make([]float64, rows)
	for c := 1; c < km.nClusters; c++ {
		var total float64
		for i := 0; i < rows; i++ {
			sample := mat.Row(nil, i, X)
			minDist := math.Inf(1)
			for j := 0; j < c; j++ {
				if d := euclidean(sample, centers[j]); d < minDist {
					minDist = d
				}
			}
			distances[i] = minDist * minDist
			total += distances[i]
		}

		target := km.rng.Float64() * total
		var cumulative float64
		selected := rows - 1
		for i := 0; i < rows; i++ {
			cumulative += distances[i]
			if cumulative >= target {
				selected = i
				break
			}
		}

		centers[c] = mat.Row(nil, selected, X)
	}

	return centers
}

// sampleBatch draws a random mini-batch of row indices without replacement.
func (km *MiniBatchKMeans) sampleBatch(nSamples int) []int {
	batchSize := km.batchSize
	if batchSize > nSamples {
		batchSize = nSamples
	}

	indices := km.rng.Perm(nSamples)
	return indices[:batchSize]
}

// nearestCenter returns the index of and distance to the closest center.
func nearestCenter(sample []float64, centers [][]float64) (int, float64) {
	nearest := 0
	minDist := math.Inf(1)
	for c, center := range centers {
		if d := euclidean(sample, center); d < minDist {
			minDist = d
			nearest = c
		}
	}
	return nearest, minDist
}

// computeInertia is the within-cluster sum of squared distances.
func computeInertia(X mat.Matrix, centers [][]float64) float64 {
	rows, _ := X.Dims()
	var inertia float64
	for i := 0; i < rows; i++ {
		_, d := nearestCenter(mat.Row(nil, i, X), centers)
		inertia += d * d
	}
	return inertia
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
