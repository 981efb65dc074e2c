package detector

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
	"github.com/YuminosukeSato/godetect/pkg/log"
)

// defaultFPR is the default false positive rate used to calibrate the
// decision threshold.
const defaultFPR = 0.01

// parallelThreshold is the row count below which scoring loops run
// sequentially instead of spawning workers.
const parallelThreshold = 1000

// baseDetector carries the state and behavior shared by every technique:
// the fitted-state lifecycle, the false-positive-rate hyperparameter, the
// threshold calibrated at fit time and the retained in-sample scores.
type baseDetector struct {
	model.BaseEstimator

	mu sync.RWMutex

	name    string
	fpr     float64
	verbose bool
	logger  log.Logger

	nFeatures      int
	threshold      float64
	trainingScores []float64

	// Per-feature thresholds, set only by techniques that attribute
	// anomalies to individual features.
	featureThresholds []float64
}

func newBaseDetector(name string) baseDetector {
	return baseDetector{
		name:   name,
		fpr:    defaultFPR,
		logger: log.GetLoggerWithName(name),
	}
}

// checkFPR validates the false positive rate hyperparameter.
func (b *baseDetector) checkFPR() error {
	if b.fpr < 0 || b.fpr >= 1 {
		return errors.NewValidationError("fpr", "must be in [0, 1)", b.fpr)
	}
	return nil
}

// Name returns the detector's name.
func (b *baseDetector) Name() string {
	return b.name
}

// FPR returns the configured false positive rate.
func (b *baseDetector) FPR() float64 {
	return b.fpr
}

// Threshold returns the decision threshold calibrated during Fit.
func (b *baseDetector) Threshold() (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.IsFitted() {
		return 0, errors.NewNotFittedError(b.name, "Threshold")
	}
	return b.threshold, nil
}

// TrainingScores returns a copy of the anomaly scores of the training
// samples, in training order. This is the sequence a plotting wrapper
// consumes.
func (b *baseDetector) TrainingScores() ([]float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.IsFitted() {
		return nil, errors.NewNotFittedError(b.name, "TrainingScores")
	}
	scores := make([]float64, len(b.trainingScores))
	copy(scores, b.trainingScores)
	return scores, nil
}

// NFeatures returns the feature dimensionality seen during Fit, or 0 before
// a successful Fit.
func (b *baseDetector) NFeatures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nFeatures
}

// calibrateThreshold computes the 100*(1-fpr) percentile of the in-sample
// anomaly scores.
func (b *baseDetector) calibrateThreshold(scores []float64) float64 {
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	return stat.Quantile(1-b.fpr, stat.Empirical, sorted, nil)
}

// completeFit stores the calibration results and transitions the detector to
// the fitted state. Callers invoke it only after the delegate estimation
// succeeded, so a failed re-fit never disturbs the previous state.
func (b *baseDetector) completeFit(nFeatures int, trainingScores []float64) {
	b.nFeatures = nFeatures
	b.trainingScores = trainingScores
	b.threshold = b.calibrateThreshold(trainingScores)
	b.SetFitted()

	if b.verbose {
		b.logger.Info("fit completed",
			log.OperationKey, "fit",
			log.SamplesKey, len(trainingScores),
			log.FeaturesKey, nFeatures,
			log.ThresholdKey, b.threshold,
		)
	}
}

// calibrateFeatureThresholds computes the 100*(1-fpr) percentile of each
// column of the in-sample feature-wise scores.
func (b *baseDetector) calibrateFeatureThresholds(scores *mat.Dense) []float64 {
	n, p := scores.Dims()
	thresholds := make([]float64, p)
	column := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(column, j, scores)
		sort.Float64s(column)
		thresholds[j] = stat.Quantile(1-b.fpr, stat.Empirical, column, nil)
	}
	return thresholds
}

// validateScoreInput checks the fitted state and the shape of a scoring
// input. Callers must hold at least a read lock.
func (b *baseDetector) validateScoreInput(method string, X mat.Matrix) error {
	if !b.IsFitted() {
		return errors.NewNotFittedError(b.name, method)
	}
	if X == nil {
		return errors.NewValueError(b.name+"."+method, "input matrix is nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewValueError(b.name+"."+method, "empty input")
	}
	if c != b.nFeatures {
		return errors.NewDimensionError(b.name+"."+method, b.nFeatures, c, 1)
	}
	return nil
}

// labelScores maps anomaly scores to detection labels against a threshold.
func labelScores(scores *mat.VecDense, threshold float64) []int {
	labels := make([]int, scores.Len())
	for i := range labels {
		if scores.AtVec(i) > threshold {
			labels[i] = model.Outlier
		} else {
			labels[i] = model.Inlier
		}
	}
	return labels
}

// labelFeatureScores maps feature-wise anomaly scores to detection labels
// against per-feature thresholds.
func labelFeatureScores(scores *mat.Dense, thresholds []float64) [][]int {
	n, p := scores.Dims()
	labels := make([][]int, n)
	for i := 0; i < n; i++ {
		labels[i] = make([]int, p)
		for j := 0; j < p; j++ {
			if scores.At(i, j) > thresholds[j] {
				labels[i][j] = model.Outlier
			} else {
				labels[i][j] = model.Inlier
			}
		}
	}
	return labels
}

// euclideanDistance computes the Euclidean distance between two vectors of
// equal length.
func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
