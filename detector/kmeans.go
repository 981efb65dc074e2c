package detector

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/cluster"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// MiniBatchKMeans is an outlier detector using k-means clustering: the
// anomaly score of a sample is its distance to the nearest cluster center,
// so samples far from every cluster score high.
type MiniBatchKMeans struct {
	baseDetector

	kmeansOptions []cluster.Option
	kmeans        *cluster.MiniBatchKMeans
}

// KMeansOption configures a MiniBatchKMeans detector.
type KMeansOption func(*MiniBatchKMeans)

// WithKMeansFPR sets the false positive rate used to calibrate the decision
// threshold.
func WithKMeansFPR(fpr float64) KMeansOption {
	return func(d *MiniBatchKMeans) {
		d.fpr = fpr
	}
}

// WithKMeansVerbose enables fit logging.
func WithKMeansVerbose(verbose bool) KMeansOption {
	return func(d *MiniBatchKMeans) {
		d.verbose = verbose
	}
}

// WithKMeansClusterOptions passes options through to the underlying
// clustering estimator, e.g. cluster.WithNClusters or
// cluster.WithRandomState.
func WithKMeansClusterOptions(options ...cluster.Option) KMeansOption {
	return func(d *MiniBatchKMeans) {
		d.kmeansOptions = append(d.kmeansOptions, options...)
	}
}

// NewMiniBatchKMeans creates an unfitted MiniBatchKMeans detector.
func NewMiniBatchKMeans(options ...KMeansOption) *MiniBatchKMeans {
	d := &MiniBatchKMeans{
		baseDetector: newBaseDetector("MiniBatchKMeans"),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Fit clusters the training data and calibrates the decision threshold from
// the in-sample distances. The number of samples must be at least the number
// of clusters. On failure the detector keeps its previous state.
func (d *MiniBatchKMeans) Fit(X mat.Matrix) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer errors.Recover(&err, "MiniBatchKMeans.Fit")

	if err := d.checkFPR(); err != nil {
		return err
	}
	if X == nil {
		return errors.NewValueError("MiniBatchKMeans.Fit", "input matrix is nil")
	}

	_, p := X.Dims()

	// A fresh delegate per fit keeps re-fit overwrite semantics simple: the
	// previous estimator survives untouched if this fit fails.
	km := cluster.NewMiniBatchKMeans(d.kmeansOptions...)
	if err := km.Fit(X); err != nil {
		return err
	}

	scores, err := nearestCenterDistances(km, X)
	if err != nil {
		return err
	}

	d.kmeans = km
	d.completeFit(p, scores)
	return nil
}

// AnomalyScore computes the distance of each row of X to its nearest fitted
// cluster center.
func (d *MiniBatchKMeans) AnomalyScore(X mat.Matrix) (*mat.VecDense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("AnomalyScore", X); err != nil {
		return nil, err
	}

	scores, err := nearestCenterDistances(d.kmeans, X)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(len(scores), scores), nil
}

// Detect labels each row of X Inlier or Outlier against the fitted
// threshold.
func (d *MiniBatchKMeans) Detect(X mat.Matrix) ([]int, error) {
	threshold, err := d.Threshold()
	if err != nil {
		return nil, err
	}
	return d.DetectWithThreshold(X, threshold)
}

// DetectWithThreshold labels each row of X against an explicit threshold.
func (d *MiniBatchKMeans) DetectWithThreshold(X mat.Matrix, threshold float64) ([]int, error) {
	scores, err := d.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return labelScores(scores, threshold), nil
}

// FitDetect fits the detector and labels the training samples.
func (d *MiniBatchKMeans) FitDetect(X mat.Matrix) ([]int, error) {
	if err := d.Fit(X); err != nil {
		return nil, err
	}
	return d.Detect(X)
}

// ClusterCenters returns the fitted cluster centers.
func (d *MiniBatchKMeans) ClusterCenters() ([][]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "ClusterCenters")
	}
	return d.kmeans.ClusterCenters(), nil
}

// Labels returns the cluster assignment of each training sample.
func (d *MiniBatchKMeans) Labels() ([]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "Labels")
	}
	return d.kmeans.Labels(), nil
}

// Inertia returns the within-cluster sum of squared distances of the
// training data.
func (d *MiniBatchKMeans) Inertia() (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return 0, errors.NewNotFittedError(d.name, "Inertia")
	}
	return d.kmeans.Inertia(), nil
}

// nearestCenterDistances reduces the delegate's distance transform to the
// minimum distance per row.
func nearestCenterDistances(km *cluster.MiniBatchKMeans, X mat.Matrix) ([]float64, error) {
	distances, err := km.Transform(X)
	if err != nil {
		return nil, err
	}

	rows, clusters := distances.Dims()
	scores := make([]float64, rows)
	for i := 0; i < rows; i++ {
		minDist := math.Inf(1)
		for c := 0; c < clusters; c++ {
			if v := distances.At(i, c); v < minDist {
				minDist = v
			}
		}
		scores[i] = minDist
	}
	return scores, nil
}
