package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

var _ model.Transformer = (*StandardScaler)(nil)
var _ model.Transformer = (*MinMaxScaler)(nil)

func TestStandardScalerNotFitted(t *testing.T) {
	s := NewStandardScaler()
	X := mat.NewDense(2, 2, nil)

	var notFitted *errors.NotFittedError
	if _, err := s.Transform(X); !errors.As(err, &notFitted) {
		t.Errorf("Transform before Fit: got %v, want NotFittedError", err)
	}
	if _, err := s.InverseTransform(X); !errors.As(err, &notFitted) {
		t.Errorf("InverseTransform before Fit: got %v, want NotFittedError", err)
	}
}

func TestStandardScalerFitTransform(t *testing.T) {
	s := NewStandardScaler()
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})

	scaled, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	n, p := scaled.Dims()
	for j := 0; j < p; j++ {
		var sum, sumSquares float64
		for i := 0; i < n; i++ {
			sum += scaled.At(i, j)
			sumSquares += scaled.At(i, j) * scaled.At(i, j)
		}
		mean := sum / float64(n)
		variance := sumSquares/float64(n) - mean*mean
		if math.Abs(mean) > 1e-9 {
			t.Errorf("feature %d: mean = %v, want 0", j, mean)
		}
		if math.Abs(variance-1) > 1e-9 {
			t.Errorf("feature %d: variance = %v, want 1", j, variance)
		}
	}
}

func TestStandardScalerInverseRoundTrip(t *testing.T) {
	s := NewStandardScaler()
	X := mat.NewDense(3, 2, []float64{
		1, -5,
		2, 0,
		3, 5,
	})

	scaled, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	restored, err := s.InverseTransform(scaled)
	if err != nil {
		t.Fatalf("InverseTransform failed: %v", err)
	}

	if !mat.EqualApprox(X, restored, 1e-9) {
		t.Error("inverse transform should recover the original data")
	}
}

func TestStandardScalerConstantFeature(t *testing.T) {
	s := NewStandardScaler()
	X := mat.NewDense(3, 2, []float64{
		1, 7,
		2, 7,
		3, 7,
	})

	scaled, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if v := scaled.At(i, 1); v != 0 {
			t.Errorf("constant feature row %d = %v, want 0", i, v)
		}
	}
}

func TestStandardScalerDimensionMismatch(t *testing.T) {
	s := NewStandardScaler()
	if err := s.Fit(mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	var dimErr *errors.DimensionError
	if _, err := s.Transform(mat.NewDense(3, 3, nil)); !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want DimensionError", err)
	}
}

func TestStandardScalerWithoutCentering(t *testing.T) {
	s := NewStandardScalerWith(false, true)
	X := mat.NewDense(2, 1, []float64{3, 5})
	if err := s.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := s.Mean(); got[0] != 0 {
		t.Errorf("mean = %v, want 0 when centering is disabled", got[0])
	}
}

func TestMinMaxScalerTransform(t *testing.T) {
	m := NewMinMaxScaler()
	X := mat.NewDense(3, 2, []float64{
		0, -10,
		5, 0,
		10, 10,
	})

	scaled, err := m.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	want := mat.NewDense(3, 2, []float64{
		0, 0,
		0.5, 0.5,
		1, 1,
	})
	if !mat.EqualApprox(scaled, want, 1e-9) {
		t.Errorf("scaled = %v, want %v", mat.Formatted(scaled), mat.Formatted(want))
	}
}

func TestMinMaxScalerCustomRange(t *testing.T) {
	m := NewMinMaxScalerRange(-1, 1)
	X := mat.NewDense(2, 1, []float64{0, 10})

	scaled, err := m.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	if scaled.At(0, 0) != -1 || scaled.At(1, 0) != 1 {
		t.Errorf("scaled = [%v %v], want [-1 1]", scaled.At(0, 0), scaled.At(1, 0))
	}
}

func TestMinMaxScalerInvalidRange(t *testing.T) {
	m := NewMinMaxScalerRange(1, 1)
	err := m.Fit(mat.NewDense(2, 1, []float64{0, 1}))
	var invalid *errors.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestMinMaxScalerInverseRoundTrip(t *testing.T) {
	m := NewMinMaxScalerRange(-2, 3)
	X := mat.NewDense(3, 2, []float64{
		1, -5,
		2, 0,
		4, 5,
	})

	scaled, err := m.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	restored, err := m.InverseTransform(scaled)
	if err != nil {
		t.Fatalf("InverseTransform failed: %v", err)
	}
	if !mat.EqualApprox(X, restored, 1e-9) {
		t.Error("inverse transform should recover the original data")
	}
}
