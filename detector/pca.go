package detector

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/parallel"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// PCA is a reconstruction-based outlier detector. Training data is projected
// onto a truncated principal subspace; the anomaly score of a sample is its
// squared reconstruction error, so samples outside the subspace spanned by
// the normal data score high.
type PCA struct {
	baseDetector

	// Hyperparameters.
	nComponents   int // 0 selects the smallest k explaining varianceRatio
	varianceRatio float64

	// Learned parameters.
	mean_                   []float64
	components_             *mat.Dense // (n_features x k), columns are principal axes
	explainedVarianceRatio_ []float64
	nComponents_            int
}

// PCAOption configures a PCA detector.
type PCAOption func(*PCA)

// WithPCAComponents fixes the number of principal components to retain. The
// default of 0 selects the smallest number of components whose cumulative
// explained variance reaches the configured ratio.
func WithPCAComponents(n int) PCAOption {
	return func(d *PCA) {
		d.nComponents = n
	}
}

// WithPCAVarianceRatio sets the cumulative explained variance ratio used for
// automatic component selection.
func WithPCAVarianceRatio(ratio float64) PCAOption {
	return func(d *PCA) {
		d.varianceRatio = ratio
	}
}

// WithPCAFPR sets the false positive rate used to calibrate the decision
// threshold.
func WithPCAFPR(fpr float64) PCAOption {
	return func(d *PCA) {
		d.fpr = fpr
	}
}

// WithPCAVerbose enables fit logging.
func WithPCAVerbose(verbose bool) PCAOption {
	return func(d *PCA) {
		d.verbose = verbose
	}
}

// NewPCA creates an unfitted PCA detector.
func NewPCA(options ...PCAOption) *PCA {
	d := &PCA{
		baseDetector:  newBaseDetector("PCA"),
		varianceRatio: 0.9,
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

func (d *PCA) checkParams() error {
	if err := d.checkFPR(); err != nil {
		return err
	}
	if d.nComponents < 0 {
		return errors.NewValidationError("n_components", "must be non-negative", d.nComponents)
	}
	if d.varianceRatio <= 0 || d.varianceRatio > 1 {
		return errors.NewValidationError("variance_ratio", "must be in (0, 1]", d.varianceRatio)
	}
	return nil
}

// Fit computes the principal subspace of the training data and calibrates
// the decision threshold from the in-sample reconstruction errors. On
// failure the detector keeps its previous state.
func (d *PCA) Fit(X mat.Matrix) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer errors.Recover(&err, "PCA.Fit")

	if err := d.checkParams(); err != nil {
		return err
	}
	if X == nil {
		return errors.NewValueError("PCA.Fit", "input matrix is nil")
	}

	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewFitError("PCA.Fit", "empty data", errors.ErrEmptyData)
	}
	if n < 2 || p < 2 {
		return errors.NewInsufficientDataError("PCA.Fit", 2, 2, n, p)
	}
	if d.nComponents >= p {
		return errors.NewValidationError("n_components", "must be smaller than the number of features", d.nComponents)
	}

	mean := columnMeans(X)
	centered := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			centered.Set(i, j, X.At(i, j)-mean[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return errors.NewFitError("PCA.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}

	values := svd.Values(nil)
	var total float64
	for _, s := range values {
		total += s * s
	}
	if total == 0 {
		return errors.NewFitError("PCA.Fit", "training data has zero variance", errors.ErrSingularMatrix)
	}

	ratios := make([]float64, len(values))
	for i, s := range values {
		ratios[i] = s * s / total
	}

	k := d.nComponents
	if k == 0 {
		cumulative := 0.0
		for i, r := range ratios {
			cumulative += r
			if cumulative >= d.varianceRatio {
				k = i + 1
				break
			}
		}
		// Keep at least one direction out of the subspace so the
		// reconstruction error does not vanish identically.
		if k >= p {
			k = p - 1
		}
		if k == 0 {
			k = 1
		}
	}

	var v mat.Dense
	svd.VTo(&v)
	components := mat.NewDense(p, k, nil)
	components.Copy(v.Slice(0, p, 0, k))

	scores := reconstructionErrors(X, mean, components)
	featureScores := featureResidualScores(X, mean, components)

	d.mean_ = mean
	d.components_ = components
	d.explainedVarianceRatio_ = ratios[:k]
	d.nComponents_ = k
	d.featureThresholds = d.calibrateFeatureThresholds(featureScores)
	d.completeFit(p, scores)
	return nil
}

// AnomalyScore computes the squared reconstruction error of each row of X.
func (d *PCA) AnomalyScore(X mat.Matrix) (*mat.VecDense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("AnomalyScore", X); err != nil {
		return nil, err
	}

	scores := reconstructionErrors(X, d.mean_, d.components_)
	return mat.NewVecDense(len(scores), scores), nil
}

// FeatureWiseAnomalyScore computes the squared reconstruction error of each
// sample broken down per feature.
func (d *PCA) FeatureWiseAnomalyScore(X mat.Matrix) (*mat.Dense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("FeatureWiseAnomalyScore", X); err != nil {
		return nil, err
	}
	return featureResidualScores(X, d.mean_, d.components_), nil
}

// Analyze returns Inlier or Outlier per sample and feature, comparing
// per-feature reconstruction errors against the thresholds calibrated during
// Fit.
func (d *PCA) Analyze(X mat.Matrix) ([][]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("Analyze", X); err != nil {
		return nil, err
	}
	scores := featureResidualScores(X, d.mean_, d.components_)
	return labelFeatureScores(scores, d.featureThresholds), nil
}

// AnalyzeWithThresholds labels each sample and feature against explicit
// per-feature thresholds instead of the fitted ones.
func (d *PCA) AnalyzeWithThresholds(X mat.Matrix, thresholds []float64) ([][]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("AnalyzeWithThresholds", X); err != nil {
		return nil, err
	}
	if len(thresholds) != d.nFeatures {
		return nil, errors.NewDimensionError(d.name+".AnalyzeWithThresholds", d.nFeatures, len(thresholds), 1)
	}
	scores := featureResidualScores(X, d.mean_, d.components_)
	return labelFeatureScores(scores, thresholds), nil
}

// FitAnalyze fits the detector and analyzes the training samples.
func (d *PCA) FitAnalyze(X mat.Matrix) ([][]int, error) {
	if err := d.Fit(X); err != nil {
		return nil, err
	}
	return d.Analyze(X)
}

// FeatureWiseThresholds returns the per-feature decision thresholds
// calibrated during Fit.
func (d *PCA) FeatureWiseThresholds() ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "FeatureWiseThresholds")
	}
	thresholds := make([]float64, len(d.featureThresholds))
	copy(thresholds, d.featureThresholds)
	return thresholds, nil
}

// Detect labels each row of X Inlier or Outlier against the fitted
// threshold.
func (d *PCA) Detect(X mat.Matrix) ([]int, error) {
	threshold, err := d.Threshold()
	if err != nil {
		return nil, err
	}
	return d.DetectWithThreshold(X, threshold)
}

// DetectWithThreshold labels each row of X against an explicit threshold.
func (d *PCA) DetectWithThreshold(X mat.Matrix, threshold float64) ([]int, error) {
	scores, err := d.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return labelScores(scores, threshold), nil
}

// FitDetect fits the detector and labels the training samples.
func (d *PCA) FitDetect(X mat.Matrix) ([]int, error) {
	if err := d.Fit(X); err != nil {
		return nil, err
	}
	return d.Detect(X)
}

// NComponents returns the number of retained principal components.
func (d *PCA) NComponents() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return 0, errors.NewNotFittedError(d.name, "NComponents")
	}
	return d.nComponents_, nil
}

// ExplainedVarianceRatio returns the variance ratio explained by each
// retained component.
func (d *PCA) ExplainedVarianceRatio() ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "ExplainedVarianceRatio")
	}
	ratios := make([]float64, len(d.explainedVarianceRatio_))
	copy(ratios, d.explainedVarianceRatio_)
	return ratios, nil
}

// reconstructionResidual writes (x - mean) - V V'(x - mean) for row i of X
// into residual.
func reconstructionResidual(X mat.Matrix, i int, mean []float64, components *mat.Dense, residual []float64) {
	p, k := components.Dims()

	projected := make([]float64, k)
	for c := 0; c < k; c++ {
		var sum float64
		for j := 0; j < p; j++ {
			sum += components.At(j, c) * (X.At(i, j) - mean[j])
		}
		projected[c] = sum
	}

	for j := 0; j < p; j++ {
		var reconstructed float64
		for c := 0; c < k; c++ {
			reconstructed += components.At(j, c) * projected[c]
		}
		residual[j] = (X.At(i, j) - mean[j]) - reconstructed
	}
}

// featureResidualScores computes the squared reconstruction error per sample
// broken down per feature.
func featureResidualScores(X mat.Matrix, mean []float64, components *mat.Dense) *mat.Dense {
	n, p := X.Dims()
	scores := mat.NewDense(n, p, nil)

	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		residual := make([]float64, p)
		for i := start; i < end; i++ {
			reconstructionResidual(X, i, mean, components, residual)
			for j := 0; j < p; j++ {
				scores.Set(i, j, residual[j]*residual[j])
			}
		}
	})

	return scores
}

// reconstructionErrors computes the squared reconstruction error per row.
func reconstructionErrors(X mat.Matrix, mean []float64, components *mat.Dense) []float64 {
	n, p := X.Dims()
	scores := make([]float64, n)

	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		residual := make([]float64, p)
		for i := start; i < end; i++ {
			reconstructionResidual(X, i, mean, components, residual)
			var sum float64
			for j := 0; j < p; j++ {
				sum += residual[j] * residual[j]
			}
			scores[i] = sum
		}
	})

	return scores
}
