// Package model provides the core abstractions shared by every detector in
// godetect: the fitted-state lifecycle and the capability interfaces that
// describe what an estimator can do.
//
// All detectors embed BaseEstimator to get consistent state tracking:
//
//	type MyDetector struct {
//		model.BaseEstimator
//		// detector-specific fields
//	}
//
//	func (d *MyDetector) Fit(X mat.Matrix) error {
//		// estimation logic
//		d.SetFitted()
//		return nil
//	}
//
// Querying an estimator before Fit has succeeded must fail with a
// NotFittedError; embedding BaseEstimator gives implementations a single
// source of truth for that check.
package model

// EstimatorState represents the learning state of an estimator.
type EstimatorState int

const (
	// NotFitted indicates the estimator has not been trained yet.
	NotFitted EstimatorState = iota
	// Fitted indicates the estimator has been trained.
	Fitted
)

// BaseEstimator is the base structure embedded by all estimators.
type BaseEstimator struct {
	state EstimatorState
}

// IsFitted returns whether the estimator has been fitted with training data.
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted marks the estimator as fitted. Called by implementations at the
// end of a successful Fit, never by callers.
func (e *BaseEstimator) SetFitted() {
	e.state = Fitted
}

// Reset returns the estimator to its initial untrained state.
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
}
