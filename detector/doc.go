// Package detector provides unsupervised outlier-detection estimators that
// share a common fit/score/detect contract.
//
// Every detector is constructed with functional options, never touching data,
// and starts unfitted. Fit estimates the technique's parameters from a
// training table (rows = samples, columns = features) and calibrates a
// decision threshold as the 100*(1-fpr) percentile of the in-sample anomaly
// scores. After a successful Fit the detector is immutable with respect to
// scoring: AnomalyScore returns one deterministic real-valued score per row
// (higher = more anomalous) and Detect labels each row Inlier (+1) or
// Outlier (-1), flagging a sample iff its score exceeds the threshold.
//
// Calling AnomalyScore or Detect before Fit fails with a NotFittedError, and
// scoring input whose feature count differs from the training data fails
// with a DimensionError. Re-fitting overwrites the learned state; a failed
// re-fit leaves the previous fitted state untouched.
//
// Available techniques:
//
//   - SparseStructureLearning: graphical-lasso sparse precision matrix with
//     Mahalanobis scoring and per-feature anomaly attribution
//   - MiniBatchKMeans: distance to the nearest cluster center
//   - PCA: squared reconstruction error in a truncated principal subspace
//   - KNN: mean distance to the k nearest training samples
//
// Fitted parameters of every detector round-trip through Export/Import as
// purely numeric JSON, reproducing scores exactly.
package detector
