// Package datasets provides synthetic dataset generators for examples and
// tests. Generators are deterministic under a fixed random state.
package datasets

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
)

// blobsConfig holds the generator settings.
type blobsConfig struct {
	nSamples    int
	nFeatures   int
	centers     int
	clusterStd  float64
	centerBox   [2]float64
	nOutliers   int
	outlierBox  [2]float64
	randomState int64
}

// BlobsOption configures the blob generator.
type BlobsOption func(*blobsConfig)

// WithNSamples sets the number of inlier samples.
func WithNSamples(n int) BlobsOption {
	return func(c *blobsConfig) {
		c.nSamples = n
	}
}

// WithNFeatures sets the feature dimensionality.
func WithNFeatures(n int) BlobsOption {
	return func(c *blobsConfig) {
		c.nFeatures = n
	}
}

// WithCenters sets the number of Gaussian clusters.
func WithCenters(n int) BlobsOption {
	return func(c *blobsConfig) {
		c.centers = n
	}
}

// WithClusterStd sets the standard deviation of each cluster.
func WithClusterStd(std float64) BlobsOption {
	return func(c *blobsConfig) {
		c.clusterStd = std
	}
}

// WithCenterBox sets the box cluster centers are drawn from.
func WithCenterBox(low, high float64) BlobsOption {
	return func(c *blobsConfig) {
		c.centerBox = [2]float64{low, high}
	}
}

// WithOutliers injects n uniform outliers drawn from the box [low, high] in
// every dimension, appended after the inlier samples.
func WithOutliers(n int, low, high float64) BlobsOption {
	return func(c *blobsConfig) {
		c.nOutliers = n
		c.outlierBox = [2]float64{low, high}
	}
}

// WithRandomState seeds the generator for reproducible data. Negative seeds
// select a time-based source.
func WithRandomState(seed int64) BlobsOption {
	return func(c *blobsConfig) {
		c.randomState = seed
	}
}

// MakeBlobs generates isotropic Gaussian blobs. It returns the sample matrix
// and one ground-truth label per row: model.Inlier for cluster samples,
// model.Outlier for injected outliers. Outlier rows, if any, come last.
func MakeBlobs(options ...BlobsOption) (*mat.Dense, []int) {
	cfg := &blobsConfig{
		nSamples:    100,
		nFeatures:   2,
		centers:     1,
		clusterStd:  1.0,
		centerBox:   [2]float64{-10, 10},
		outlierBox:  [2]float64{-50, 50},
		randomState: -1,
	}
	for _, opt := range options {
		opt(cfg)
	}

	var rng *rand.Rand
	if cfg.randomState >= 0 {
		rng = rand.New(rand.NewSource(cfg.randomState))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	centers := make([][]float64, cfg.centers)
	span := cfg.centerBox[1] - cfg.centerBox[0]
	for c := range centers {
		centers[c] = make([]float64, cfg.nFeatures)
		for j := range centers[c] {
			centers[c][j] = cfg.centerBox[0] + rng.Float64()*span
		}
	}

	total := cfg.nSamples + cfg.nOutliers
	X := mat.NewDense(total, cfg.nFeatures, nil)
	y := make([]int, total)

	for i := 0; i < cfg.nSamples; i++ {
		center := centers[i%cfg.centers]
		for j := 0; j < cfg.nFeatures; j++ {
			X.Set(i, j, center[j]+rng.NormFloat64()*cfg.clusterStd)
		}
		y[i] = model.Inlier
	}

	// Outlier draws landing within a few standard deviations of a cluster
	// center would be indistinguishable from inliers, so those are redrawn.
	outlierSpan := cfg.outlierBox[1] - cfg.outlierBox[0]
	minDistance := 4 * cfg.clusterStd
	point := make([]float64, cfg.nFeatures)
	for i := cfg.nSamples; i < total; i++ {
		for attempt := 0; attempt < 100; attempt++ {
			for j := range point {
				point[j] = cfg.outlierBox[0] + rng.Float64()*outlierSpan
			}
			if distanceToNearest(point, centers) > minDistance {
				break
			}
		}
		X.SetRow(i, point)
		y[i] = model.Outlier
	}

	return X, y
}

func distanceToNearest(point []float64, centers [][]float64) float64 {
	nearest := math.Inf(1)
	for _, center := range centers {
		var sum float64
		for j := range point {
			diff := point[j] - center[j]
			sum += diff * diff
		}
		if d := math.Sqrt(sum); d < nearest {
			nearest = d
		}
	}
	return nearest
}
