package detector

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/godetect/core/parallel"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// SparseStructureLearning is an outlier detector based on sparse structure
// learning: a graphical-lasso estimate of the inverse covariance (precision)
// matrix of the training data. The anomaly score of a sample is its squared
// Mahalanobis distance under the fitted precision matrix, and per-feature
// scores are the negative log conditional Gaussian likelihoods, which
// attribute an anomaly to the features that break the learned conditional
// independence structure.
type SparseStructureLearning struct {
	baseDetector

	// Hyperparameters.
	alpha   float64 // L1 regularization strength
	tol     float64 // convergence tolerance of the outer loop
	maxIter int     // maximum outer iterations

	// Learned parameters.
	mean_       []float64
	covariance_ *mat.SymDense
	precision_  *mat.Dense
	nIter_      int
}

// GLassoOption configures a SparseStructureLearning detector.
type GLassoOption func(*SparseStructureLearning)

// WithGLassoAlpha sets the L1 regularization strength. Larger values yield
// sparser precision matrices.
func WithGLassoAlpha(alpha float64) GLassoOption {
	return func(d *SparseStructureLearning) {
		d.alpha = alpha
	}
}

// WithGLassoTol sets the convergence tolerance.
func WithGLassoTol(tol float64) GLassoOption {
	return func(d *SparseStructureLearning) {
		d.tol = tol
	}
}

// WithGLassoMaxIter sets the maximum number of outer iterations.
func WithGLassoMaxIter(maxIter int) GLassoOption {
	return func(d *SparseStructureLearning) {
		d.maxIter = maxIter
	}
}

// WithGLassoFPR sets the false positive rate used to calibrate the decision
// threshold.
func WithGLassoFPR(fpr float64) GLassoOption {
	return func(d *SparseStructureLearning) {
		d.fpr = fpr
	}
}

// WithGLassoVerbose enables fit logging.
func WithGLassoVerbose(verbose bool) GLassoOption {
	return func(d *SparseStructureLearning) {
		d.verbose = verbose
	}
}

// NewSparseStructureLearning creates an unfitted SparseStructureLearning
// detector. Construction only stores configuration.
func NewSparseStructureLearning(options ...GLassoOption) *SparseStructureLearning {
	d := &SparseStructureLearning{
		baseDetector: newBaseDetector("SparseStructureLearning"),
		alpha:        0.01,
		tol:          1e-4,
		maxIter:      100,
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

func (d *SparseStructureLearning) checkParams() error {
	if err := d.checkFPR(); err != nil {
		return err
	}
	if d.alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", d.alpha)
	}
	if d.tol <= 0 {
		return errors.NewValidationError("tol", "must be positive", d.tol)
	}
	if d.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", d.maxIter)
	}
	return nil
}

// Fit estimates the sparse precision matrix from the training data and
// calibrates the decision threshold. The number of samples must be at least
// the number of features. On failure the detector keeps its previous state.
func (d *SparseStructureLearning) Fit(X mat.Matrix) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer errors.Recover(&err, "SparseStructureLearning.Fit")

	if err := d.checkParams(); err != nil {
		return err
	}
	if X == nil {
		return errors.NewValueError("SparseStructureLearning.Fit", "input matrix is nil")
	}

	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewFitError("SparseStructureLearning.Fit", "empty data", errors.ErrEmptyData)
	}
	if p < 2 || n < p {
		return errors.NewInsufficientDataError("SparseStructureLearning.Fit", p, 2, n, p)
	}

	mean := columnMeans(X)

	cov := mat.NewSymDense(p, nil)
	stat.CovarianceMatrix(cov, X, nil)

	// A zero-variance feature makes the covariance singular before the
	// penalty is even applied.
	for j := 0; j < p; j++ {
		if cov.At(j, j) <= 0 {
			return errors.NewFitError("SparseStructureLearning.Fit", "zero-variance feature", errors.ErrSingularMatrix)
		}
	}

	precision, nIter, converged, err := graphicalLasso(cov, d.alpha, d.tol, d.maxIter)
	if err != nil {
		return errors.NewFitError("SparseStructureLearning.Fit", "graphical lasso failed", err)
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("graphical lasso", nIter, ""))
	}
	if err := errors.CheckMatrix("graphical lasso", precision, p, p, nIter); err != nil {
		return errors.NewFitError("SparseStructureLearning.Fit", "unstable precision estimate", err)
	}

	scores := mahalanobisScores(X, mean, precision)
	featureScores := conditionalFeatureScores(X, mean, precision)

	d.mean_ = mean
	d.covariance_ = cov
	d.precision_ = precision
	d.nIter_ = nIter
	d.featureThresholds = d.calibrateFeatureThresholds(featureScores)
	d.completeFit(p, scores)
	return nil
}

// AnomalyScore computes the squared Mahalanobis distance of each row of X
// under the fitted precision matrix.
func (d *SparseStructureLearning) AnomalyScore(X mat.Matrix) (*mat.VecDense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("AnomalyScore", X); err != nil {
		return nil, err
	}

	scores := mahalanobisScores(X, d.mean_, d.precision_)
	return mat.NewVecDense(len(scores), scores), nil
}

// FeatureWiseAnomalyScore computes, for each sample and feature, the negative
// log conditional Gaussian likelihood of the feature given all others under
// the fitted precision matrix.
func (d *SparseStructureLearning) FeatureWiseAnomalyScore(X mat.Matrix) (*mat.Dense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("FeatureWiseAnomalyScore", X); err != nil {
		return nil, err
	}
	return conditionalFeatureScores(X, d.mean_, d.precision_), nil
}

// Analyze returns Inlier or Outlier per sample and feature, comparing
// feature-wise scores against the per-feature thresholds calibrated during
// Fit. It attributes an anomaly to the features that break the learned
// conditional independence structure.
func (d *SparseStructureLearning) Analyze(X mat.Matrix) ([][]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("Analyze", X); err != nil {
		return nil, err
	}
	scores := conditionalFeatureScores(X, d.mean_, d.precision_)
	return labelFeatureScores(scores, d.featureThresholds), nil
}

// AnalyzeWithThresholds labels each sample and feature against explicit
// per-feature thresholds instead of the fitted ones.
func (d *SparseStructureLearning) AnalyzeWithThresholds(X mat.Matrix, thresholds []float64) ([][]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateScoreInput("AnalyzeWithThresholds", X); err != nil {
		return nil, err
	}
	if len(thresholds) != d.nFeatures {
		return nil, errors.NewDimensionError(d.name+".AnalyzeWithThresholds", d.nFeatures, len(thresholds), 1)
	}
	scores := conditionalFeatureScores(X, d.mean_, d.precision_)
	return labelFeatureScores(scores, thresholds), nil
}

// FitAnalyze fits the detector and analyzes the training samples.
func (d *SparseStructureLearning) FitAnalyze(X mat.Matrix) ([][]int, error) {
	if err := d.Fit(X); err != nil {
		return nil, err
	}
	return d.Analyze(X)
}

// FeatureWiseThresholds returns the per-feature decision thresholds
// calibrated during Fit.
func (d *SparseStructureLearning) FeatureWiseThresholds() ([]float64, error) {
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
func (d *SparseStructureLearning) Detect(X mat.Matrix) ([]int, error) {
	threshold, err := d.Threshold()
	if err != nil {
		return nil, err
	}
	return d.DetectWithThreshold(X, threshold)
}

// DetectWithThreshold labels each row of X against an explicit threshold.
func (d *SparseStructureLearning) DetectWithThreshold(X mat.Matrix, threshold float64) ([]int, error) {
	scores, err := d.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return labelScores(scores, threshold), nil
}

// FitDetect fits the detector and labels the training samples.
func (d *SparseStructureLearning) FitDetect(X mat.Matrix) ([]int, error) {
	if err := d.Fit(X); err != nil {
		return nil, err
	}
	return d.Detect(X)
}

// Mean returns the per-feature training mean.
func (d *SparseStructureLearning) Mean() ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "Mean")
	}
	mean := make([]float64, len(d.mean_))
	copy(mean, d.mean_)
	return mean, nil
}

// Precision returns a copy of the fitted sparse precision matrix.
func (d *SparseStructureLearning) Precision() (*mat.Dense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "Precision")
	}
	return mat.DenseCopyOf(d.precision_), nil
}

// Covariance returns a copy of the empirical covariance of the training
// data.
func (d *SparseStructureLearning) Covariance() (*mat.SymDense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "Covariance")
	}
	p := d.covariance_.SymmetricDim()
	cov := mat.NewSymDense(p, nil)
	cov.CopySym(d.covariance_)
	return cov, nil
}

// PartialCorrcoef returns the partial correlation matrix implied by the
// fitted precision matrix. Entry (i, j) is the correlation between features
// i and j conditioned on all remaining features; zeros encode conditional
// independence.
func (d *SparseStructureLearning) PartialCorrcoef() (*mat.Dense, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(d.name, "PartialCorrcoef")
	}

	p, _ := d.precision_.Dims()
	pcorr := mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		pcorr.Set(i, i, 1)
		for j := i + 1; j < p; j++ {
			v := -d.precision_.At(i, j) / math.Sqrt(d.precision_.At(i, i)*d.precision_.At(j, j))
			pcorr.Set(i, j, v)
			pcorr.Set(j, i, v)
		}
	}
	return pcorr, nil
}

// NIterations returns the number of outer iterations the graphical lasso
// ran during the last Fit.
func (d *SparseStructureLearning) NIterations() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nIter_
}

// columnMeans computes the per-column mean of X.
func columnMeans(X mat.Matrix) []float64 {
	n, p := X.Dims()
	mean := make([]float64, p)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			mean[j] += X.At(i, j)
		}
	}
	for j := 0; j < p; j++ {
		mean[j] /= float64(n)
	}
	return mean
}

// precisionApply computes dst = precision * v.
func precisionApply(precision *mat.Dense, v, dst []float64) {
	p := len(v)
	for i := 0; i < p; i++ {
		var sum float64
		for j := 0; j < p; j++ {
			sum += precision.At(i, j) * v[j]
		}
		dst[i] = sum
	}
}

// conditionalFeatureScores computes, per sample and feature, the negative log
// conditional Gaussian likelihood of the feature given all others under the
// precision matrix.
func conditionalFeatureScores(X mat.Matrix, mean []float64, precision *mat.Dense) *mat.Dense {
	n, p := X.Dims()
	scores := mat.NewDense(n, p, nil)

	diag := make([]float64, p)
	for j := 0; j < p; j++ {
		diag[j] = precision.At(j, j)
	}

	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		centered := make([]float64, p)
		projected := make([]float64, p)
		for i := start; i < end; i++ {
			for j := 0; j < p; j++ {
				centered[j] = X.At(i, j) - mean[j]
			}
			precisionApply(precision, centered, projected)
			for j := 0; j < p; j++ {
				scores.Set(i, j, 0.5*math.Log(2*math.Pi/diag[j])+projected[j]*projected[j]/(2*diag[j]))
			}
		}
	})

	return scores
}

// mahalanobisScores computes the squared Mahalanobis distance of each row of
// X from mean under the given precision matrix.
func mahalanobisScores(X mat.Matrix, mean []float64, precision *mat.Dense) []float64 {
	n, p := X.Dims()
	scores := make([]float64, n)

	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		centered := make([]float64, p)
		projected := make([]float64, p)
		for i := start; i < end; i++ {
			for j := 0; j < p; j++ {
				centered[j] = X.At(i, j) - mean[j]
			}
			precisionApply(precision, centered, projected)
			var score float64
			for j := 0; j < p; j++ {
				score += centered[j] * projected[j]
			}
			scores[i] = score
		}
	})

	return scores
}

// graphicalLasso estimates a sparse precision matrix from the covariance S
// with L1 penalty alpha, using block coordinate descent: each column of the
// working covariance estimate W is updated by solving a lasso subproblem
// over the remaining block.
func graphicalLasso(S *mat.SymDense, alpha, tol float64, maxIter int) (*mat.Dense, int, bool, error) {
	p := S.SymmetricDim()

	// Working covariance estimate: S with the penalty added on the
	// diagonal.
	W := mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			W.Set(i, j, S.At(i, j))
		}
		W.Set(i, i, S.At(i, i)+alpha)
	}

	// Lasso coefficients per target column.
	B := mat.NewDense(p, p-1, nil)

	// Convergence is measured against the scale of the off-diagonal
	// covariance entries.
	var offDiagSum float64
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			if i != j {
				offDiagSum += math.Abs(S.At(i, j))
			}
		}
	}
	scale := offDiagSum / float64(p*(p-1))
	if scale == 0 {
		// Features are uncorrelated; W is already the solution.
		scale = 1
	}
	crit := tol * scale

	const maxInnerIter = 100

	beta := make([]float64, p-1)
	w12 := make([]float64, p-1)

	nIter := 0
	converged := false
	for it := 0; it < maxIter && !converged; it++ {
		nIter = it + 1
		maxDelta := 0.0

		for j := 0; j < p; j++ {
			// sub maps the p-1 block indices to full indices.
			sub := func(k int) int {
				if k < j {
					return k
				}
				return k + 1
			}

			for k := 0; k < p-1; k++ {
				beta[k] = B.At(j, k)
			}

			// Lasso coordinate descent on
			// 0.5 b'W11 b - b's12 + alpha*|b|_1.
			for inner := 0; inner < maxInnerIter; inner++ {
				innerDelta := 0.0
				for k := 0; k < p-1; k++ {
					kk := sub(k)
					r := S.At(kk, j)
					for l := 0; l < p-1; l++ {
						if l == k {
							continue
						}
						r -= W.At(kk, sub(l)) * beta[l]
					}
					old := beta[k]
					beta[k] = softThreshold(r, alpha) / W.At(kk, kk)
					if delta := math.Abs(beta[k] - old); delta > innerDelta {
						innerDelta = delta
					}
				}
				if innerDelta < crit {
					break
				}
			}

			// w12 = W11 * beta; write back into column and row j.
			for k := 0; k < p-1; k++ {
				kk := sub(k)
				var sum float64
				for l := 0; l < p-1; l++ {
					sum += W.At(kk, sub(l)) * beta[l]
				}
				w12[k] = sum
			}
			for k := 0; k < p-1; k++ {
				kk := sub(k)
				if delta := math.Abs(W.At(kk, j) - w12[k]); delta > maxDelta {
					maxDelta = delta
				}
				W.Set(kk, j, w12[k])
				W.Set(j, kk, w12[k])
				B.Set(j, k, beta[k])
			}
		}

		if maxDelta < crit {
			converged = true
		}
	}

	// Recover the precision matrix from W and the lasso coefficients:
	// theta_jj = 1 / (w_jj - w12'beta), theta_.j = -beta * theta_jj.
	precision := mat.NewDense(p, p, nil)
	for j := 0; j < p; j++ {
		sub := func(k int) int {
			if k < j {
				return k
			}
			return k + 1
		}

		var dot float64
		for k := 0; k < p-1; k++ {
			dot += W.At(sub(k), j) * B.At(j, k)
		}
		denom := W.At(j, j) - dot
		if denom <= 0 || math.IsNaN(denom) {
			return nil, nIter, converged, errors.ErrSingularMatrix
		}
		thetaJJ := 1 / denom
		precision.Set(j, j, thetaJJ)
		for k := 0; k < p-1; k++ {
			precision.Set(sub(k), j, -B.At(j, k)*thetaJJ)
		}
	}

	// Symmetrize; the column-wise recovery is only symmetric up to
	// numerical error.
	for i := 0; i < p; i++ {
		for j := i + 1; j < p; j++ {
			v := 0.5 * (precision.At(i, j) + precision.At(j, i))
			precision.Set(i, j, v)
			precision.Set(j, i, v)
		}
	}

	return precision, nIter, converged, nil
}

// softThreshold is the soft-thresholding operator used by the lasso
// coordinate descent updates.
func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	default:
		return 0
	}
}
