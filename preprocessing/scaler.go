// Package preprocessing provides data transformation steps that can run ahead
// of a detector, standalone or inside a pipeline.
package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// StandardScaler transforms each feature to zero mean and unit variance.
// Distance-based detectors are sensitive to feature scale, so standardizing
// first keeps no single feature from dominating the score.
type StandardScaler struct {
	model.BaseEstimator

	withMean bool
	withStd  bool

	// Learned parameters.
	mean_      []float64
	scale_     []float64
	nFeatures_ int
}

// NewStandardScaler creates an unfitted StandardScaler that both centers and
// scales.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{
		withMean: true,
		withStd:  true,
	}
}

// NewStandardScalerWith creates a StandardScaler with centering and scaling
// toggled individually.
func NewStandardScalerWith(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		withMean: withMean,
		withStd:  withStd,
	}
}

// Fit computes the per-feature mean and standard deviation of the training
// data.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	if X == nil {
		return errors.NewValueError("StandardScaler.Fit", "input matrix is nil")
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewFitError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	mean := make([]float64, p)
	if s.withMean {
		for j := 0; j < p; j++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += X.At(i, j)
			}
			mean[j] = sum / float64(n)
		}
	}

	scale := make([]float64, p)
	for j := 0; j < p; j++ {
		scale[j] = 1.0
	}
	if s.withStd {
		for j := 0; j < p; j++ {
			var sumSquares float64
			for i := 0; i < n; i++ {
				diff := X.At(i, j) - mean[j]
				sumSquares += diff * diff
			}
			std := math.Sqrt(sumSquares / float64(n))
			// Constant features pass through unscaled.
			if std > 1e-8 {
				scale[j] = std
			}
		}
	}

	s.mean_ = mean
	s.scale_ = scale
	s.nFeatures_ = p
	s.SetFitted()
	return nil
}

// Transform standardizes X with the fitted statistics.
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}

	n, p := X.Dims()
	if p != s.nFeatures_ {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.nFeatures_, p, 1)
	}

	result := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			result.Set(i, j, (X.At(i, j)-s.mean_[j])/s.scale_[j])
		}
	}
	return result, nil
}

// FitTransform fits the scaler and transforms the same data.
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardized data back to the original scale.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}

	n, p := X.Dims()
	if p != s.nFeatures_ {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.nFeatures_, p, 1)
	}

	result := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			result.Set(i, j, X.At(i, j)*s.scale_[j]+s.mean_[j])
		}
	}
	return result, nil
}

// Mean returns the fitted per-feature means.
func (s *StandardScaler) Mean() []float64 {
	mean := make([]float64, len(s.mean_))
	copy(mean, s.mean_)
	return mean
}

// Scale returns the fitted per-feature standard deviations.
func (s *StandardScaler) Scale() []float64 {
	scale := make([]float64, len(s.scale_))
	copy(scale, s.scale_)
	return scale
}

// MinMaxScaler rescales each feature linearly into a target range, [0, 1] by
// default.
type MinMaxScaler struct {
	model.BaseEstimator

	featureRange [2]float64

	// Learned parameters.
	dataMin_   []float64
	dataRange_ []float64
	nFeatures_ int
}

// NewMinMaxScaler creates an unfitted MinMaxScaler targeting [0, 1].
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{featureRange: [2]float64{0, 1}}
}

// NewMinMaxScalerRange creates a MinMaxScaler targeting [low, high].
func NewMinMaxScalerRange(low, high float64) *MinMaxScaler {
	return &MinMaxScaler{featureRange: [2]float64{low, high}}
}

// Fit computes the per-feature minimum and range of the training data.
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	if X == nil {
		return errors.NewValueError("MinMaxScaler.Fit", "input matrix is nil")
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewFitError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.featureRange[1] <= m.featureRange[0] {
		return errors.NewValidationError("feature_range", "upper bound must exceed lower bound", m.featureRange)
	}

	dataMin := make([]float64, p)
	dataRange := make([]float64, p)
	for j := 0; j < p; j++ {
		low, high := X.At(0, j), X.At(0, j)
		for i := 1; i < n; i++ {
			v := X.At(i, j)
			if v < low {
				low = v
			}
			if v > high {
				high = v
			}
		}
		dataMin[j] = low
		dataRange[j] = high - low
		// Constant features map to the lower bound of the target range.
		if dataRange[j] < 1e-8 {
			dataRange[j] = 1.0
		}
	}

	m.dataMin_ = dataMin
	m.dataRange_ = dataRange
	m.nFeatures_ = p
	m.SetFitted()
	return nil
}

// Transform rescales X into the target range with the fitted statistics.
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "Transform")
	}

	n, p := X.Dims()
	if p != m.nFeatures_ {
		return nil, errors.NewDimensionError("MinMaxScaler.Transform", m.nFeatures_, p, 1)
	}

	span := m.featureRange[1] - m.featureRange[0]
	result := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			std := (X.At(i, j) - m.dataMin_[j]) / m.dataRange_[j]
			result.Set(i, j, std*span+m.featureRange[0])
		}
	}
	return result, nil
}

// FitTransform fits the scaler and transforms the same data.
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform maps rescaled data back to the original range.
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "InverseTransform")
	}

	n, p := X.Dims()
	if p != m.nFeatures_ {
		return nil, errors.NewDimensionError("MinMaxScaler.InverseTransform", m.nFeatures_, p, 1)
	}

	span := m.featureRange[1] - m.featureRange[0]
	result := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			std := (X.At(i, j) - m.featureRange[0]) / span
			result.Set(i, j, std*m.dataRange_[j]+m.dataMin_[j])
		}
	}
	return result, nil
}
