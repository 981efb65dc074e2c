// Capability interfaces implemented by the detector types. Each technique is
// an independent struct; the only shared behavior is the score-threshold
// contract, so composition of small interfaces replaces any hierarchy.
package model

import (
	"io"

	"gonum.org/v1/gonum/mat"
)

// Detection labels returned by Detector.Detect. The convention follows the
// usual outlier-detection encoding: positive one for inliers, negative one
// for outliers.
const (
	// Inlier marks a sample whose anomaly score is at or below the threshold.
	Inlier = 1
	// Outlier marks a sample whose anomaly score exceeds the threshold.
	Outlier = -1
)

// Detector is the contract every outlier detector satisfies.
//
// AnomalyScore returns one real-valued score per input row; higher means more
// anomalous. Scores on a fixed fitted model are deterministic and free of
// side effects, so the method is safe to call repeatedly (for example by a
// plotting wrapper). Detect derives labels by comparing scores against the
// threshold calibrated during Fit.
type Detector interface {
	// Fit estimates the model parameters from the training data and
	// calibrates the decision threshold. Returns the error unchanged from
	// the underlying estimation routine; on failure the detector keeps its
	// previous state.
	Fit(X mat.Matrix) error

	// AnomalyScore computes one anomaly score per row of X. Fails with a
	// NotFittedError before a successful Fit and with a DimensionError when
	// the feature count differs from the training data.
	AnomalyScore(X mat.Matrix) (*mat.VecDense, error)

	// Detect returns Inlier or Outlier per row of X, using the threshold
	// fixed at fit time.
	Detect(X mat.Matrix) ([]int, error)
}

// ThresholdDetector is implemented by detectors that allow the calibrated
// threshold to be overridden per call.
type ThresholdDetector interface {
	Detector

	// DetectWithThreshold labels each row of X against an explicit
	// threshold instead of the fitted one.
	DetectWithThreshold(X mat.Matrix, threshold float64) ([]int, error)
}

// FeatureWiseScorer is implemented by detectors that can attribute an anomaly
// to individual features.
type FeatureWiseScorer interface {
	// FeatureWiseAnomalyScore returns an (n_samples x n_features) matrix of
	// per-feature anomaly scores.
	FeatureWiseAnomalyScore(X mat.Matrix) (*mat.Dense, error)

	// Analyze returns Inlier or Outlier per sample and feature, comparing
	// feature-wise scores against the per-feature thresholds calibrated
	// during Fit. A row may be flagged on some features and clean on others.
	Analyze(X mat.Matrix) ([][]int, error)
}

// Transformer is the interface for data transformation steps such as scalers.
type Transformer interface {
	// Fit learns the parameters required for the transformation.
	Fit(X mat.Matrix) error

	// Transform applies the transformation.
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform runs Fit followed by Transform on the same data.
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// Exporter is implemented by estimators whose learned parameters can be
// serialized. The encoding is purely numeric JSON, so an export/import
// round trip reproduces scores exactly.
type Exporter interface {
	// Export writes the fitted parameters to w.
	Export(w io.Writer) error
}

// Importer is implemented by estimators that can restore learned parameters
// previously written by Export. Importing transitions the estimator to the
// fitted state.
type Importer interface {
	// Import reads fitted parameters from r, replacing any current state.
	Import(r io.Reader) error
}
