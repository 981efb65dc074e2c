// Package errors provides the structured error and warning system used across
// godetect. It is inspired by scikit-learn's exception hierarchy: every error
// type carries the context a caller needs to act on it (which estimator,
// which operation, which dimensions), and warnings are routed through a
// configurable handler instead of being raised.
//
// All constructors attach a stack trace via cockroachdb/errors, and every
// structured type implements zerolog's ObjectMarshaler so errors render as
// structured fields rather than flat strings.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================

var (
	warningMutex sync.Mutex
	// User-installed handler; when set it overrides every other sink.
	warningHandler func(w error)
	// zerolog warning sink, injected lazily to avoid a circular import with
	// pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the library-wide warning handler. A handler set here
// overrides the default logging sink, so it can be used to silence, capture
// or redirect warnings such as ConvergenceWarning:
//
//	errors.SetWarningHandler(func(w error) {
//	    // drop warnings
//	})
//
// Passing nil restores the default routing.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink. pkg/log calls
// this at init time; it exists so the two packages do not import each other.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a warning. A handler installed via SetWarningHandler wins over
// the zerolog sink; without either, the warning goes to the standard logger.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	switch {
	case warningHandler != nil:
		warningHandler(w)
	case zerologWarnFunc != nil:
		zerologWarnFunc(w)
	default:
		log.Printf("godetect-warning: %v\n", w)
	}
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning is emitted when an iterative estimation routine stops at
// its iteration limit without meeting the convergence tolerance. The fitted
// parameters are still usable but may be imprecise.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds the structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// NotFittedError is returned when AnomalyScore, Detect or Transform is called
// on an estimator that has not been fitted yet.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("godetect: %s: this detector is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when input data does not match the expected
// dimensions, e.g. a Detect call whose feature count differs from the one
// seen during Fit.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("godetect: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// InsufficientDataError is returned when a training table violates the
// technique-specific minimum sample or feature constraints, e.g. a
// covariance-based detector fitted with fewer samples than features.
type InsufficientDataError struct {
	Op          string
	MinSamples  int
	MinFeatures int
	Samples     int
	Features    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("godetect: %s: insufficient training data. Need at least %d samples and %d features, got %d samples and %d features",
		e.Op, e.MinSamples, e.MinFeatures, e.Samples, e.Features)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("min_samples", e.MinSamples).
		Int("min_features", e.MinFeatures).
		Int("samples", e.Samples).
		Int("features", e.Features).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError creates an InsufficientDataError with a stack
// trace attached.
func NewInsufficientDataError(op string, minSamples, minFeatures, samples, features int) error {
	err := &InsufficientDataError{
		Op:          op,
		MinSamples:  minSamples,
		MinFeatures: minFeatures,
		Samples:     samples,
		Features:    features,
	}
	return errors.WithStack(err)
}

// FitError is returned when the delegate numerical routine fails during Fit:
// a singular covariance matrix, a failed decomposition, or numerically
// unstable intermediate values. The estimator keeps its previous state.
type FitError struct {
	Op   string
	Kind string
	Err  error
}

func (e *FitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("godetect: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("godetect: %s: %s", e.Op, e.Kind)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *FitError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("kind", e.Kind).
		AnErr("cause", e.Err).
		Str("type", "FitError")
}

// NewFitError creates a FitError with a stack trace attached.
func NewFitError(op, kind string, err error) error {
	fitErr := &FitError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(fitErr)
}

// ValidationError is returned when a hyperparameter fails validation.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("godetect: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError is returned when an argument value is invalid for an operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("godetect: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// NumericalInstabilityError reports NaN or Inf values produced by a numerical
// computation.
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("godetect: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a
// stack trace attached.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Sentinel errors
//
// ===========================================================================

var (
	// ErrEmptyData indicates an empty training or scoring table.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix indicates a degenerate (non-invertible) matrix in a
	// covariance-based routine.
	ErrSingularMatrix = New("singular matrix")
)
