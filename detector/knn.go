package detector

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/parallel"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// KNN is a distance-based outlier detector: the anomaly score of a sample is
// its mean distance to the k nearest training samples. Isolated samples have
// distant neighbors and score high.
type KNN struct {
	baseDetector

	// Hyperparameters.
	k int

	// Learned parameters. The technique is instance-based, so the training
	// data itself is the model.
	train_ *mat.Dense
}

// KNNOption configures a KNN detector.
type KNNOption func(*KNN)

// WithKNNNeighbors sets the number of neighbors k.
func WithKNNNeighbors(k int) KNNOption {
	return func(d *KNN) {
		d.k = k
	}
}

// WithKNNFPR sets the false positive rate used to calibrate the decision
// threshold.
func WithKNNFPR(fpr float64) KNNOption {
	return func(d *KNN) {
		d.fpr = fpr
	}
}

// WithKNNVerbose enables fit logging.
func WithKNNVerbose(verbose bool) KNNOption {
	return func(d *KNN) {
		d.verbose = verbose
	}
}

// NewKNN creates an unfitted KNN detector.
func NewKNN(options ...KNNOption) *KNN {
	d := &KNN{
		baseDetector: newBaseDetector("KNN"),
		k:            5,
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

func (d *KNN) checkParams() error {
	if err := d.checkFPR(); err != nil {
		return err
	}
	if d.k < 1 {
		return errors.NewValidationError("k", "must be positive", d.k)
	}
	return nil
}

// Fit stores the training data and calibrates the decision threshold from
// the in-sample neighbor distances, excluding each sample from its own
// neighborhood. The number of samples must exceed k. On failure the detector
// keeps its previous state.
func (d *KNN) Fit(X mat.Matrix) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer errors.Recover(&err, "KNN.Fit")

	if err := d.checkParams(); err != nil {
		return err
	}
	if X == nil {
		return errors.NewValueError("KNN.Fit", "input matrix is nil")
	}

	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewFitError("KNN.Fit", "empty data", errors.ErrEmptyData)
	}
	if n <= d.k {
		return errors.NewInsufficientDataError("KNN.Fit", d.k+1, 1, n, p)
	}

	train := mat.DenseCopyOf(X)
	scores := neighborDistances(train, train, d.k, true)

	d.train_ = train
	d.completeFit(p, scores)
	return nil
}

// AnomalyScore computes the mean distance of each row of X to its k nearest
// training samples.
func (d *KNN) AnomalyScore(X mat.Matrix) (*mat.VecDense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("AnomalyScore", X); err != nil {
		return nil, err
	}

	scores := neighborDistances(d.train_, X, d.k, false)
	return mat.NewVecDense(len(scores), scores), nil
}

// Detect labels each row of X Inlier or Outlier against the fitted
// threshold.
func (d *KNN) Detect(X mat.Matrix) ([]int, error) {
	threshold, err := d.Threshold()
	if err != nil {
		return nil, err
	}
	return d.DetectWithThreshold(X, threshold)
}

// DetectWithThreshold labels each row of X against an explicit threshold.
func (d *KNN) DetectWithThreshold(X mat.Matrix, threshold float64) ([]int, error) {
	scores, err := d.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return labelScores(scores, threshold), nil
}

// FitDetect fits the detector and labels the training samples.
func (d *KNN) FitDetect(X mat.Matrix) ([]int, error) {
	if err := d.Fit(X); err != nil {
		return nil, err
	}
	return d.Detect(X)
}

// K returns the configured number of neighbors.
func (d *KNN) K() int {
	return d.k
}

// neighborDistances computes, for each row of X, the mean distance to its k
// nearest rows of train. With excludeSelf set, X is assumed to be the
// training matrix itself and row i skips its own entry.
func neighborDistances(train *mat.Dense, X mat.Matrix, k int, excludeSelf bool) []float64 {
	nTrain, p := train.Dims()
	n, _ := X.Dims()
	scores := make([]float64, n)

	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		sample := make([]float64, p)
		other := make([]float64, p)
		distances := make([]float64, 0, nTrain)

		for i := start; i < end; i++ {
			for j := 0; j < p; j++ {
				sample[j] = X.At(i, j)
			}

			distances = distances[:0]
			for t := 0; t < nTrain; t++ {
				if excludeSelf && t == i {
					continue
				}
				mat.Row(other, t, train)
				distances = append(distances, euclideanDistance(sample, other))
			}

			sort.Float64s(distances)
			var sum float64
			for _, dist := range distances[:k] {
				sum += dist
			}
			scores[i] = sum / float64(k)
		}
	})

	return scores
}
