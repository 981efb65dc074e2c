package cluster

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/datasets"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

func twoBlobs(seed int64) *mat.Dense {
	X, _ := datasets.MakeBlobs(
		datasets.WithNSamples(100),
		datasets.WithNFeatures(2),
		datasets.WithCenters(2),
		datasets.WithRandomState(seed),
	)
	return X
}

func TestMiniBatchKMeansFit(t *testing.T) {
	km := NewMiniBatchKMeans(WithNClusters(2), WithRandomState(1))
	X := twoBlobs(1)

	if err := km.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !km.IsFitted() {
		t.Error("estimator should be fitted")
	}

	centers := km.ClusterCenters()
	if len(centers) != 2 {
		t.Fatalf("len(centers) = %d, want 2", len(centers))
	}
	for c, center := range centers {
		if len(center) != 2 {
			t.Errorf("center %d has %d features, want 2", c, len(center))
		}
	}

	labels := km.Labels()
	if len(labels) != 100 {
		t.Errorf("len(labels) = %d, want 100", len(labels))
	}
	if km.Inertia() < 0 {
		t.Errorf("inertia = %v, want non-negative", km.Inertia())
	}
	if km.NIterations() < 1 {
		t.Errorf("NIterations = %d, want at least 1", km.NIterations())
	}
}

func TestMiniBatchKMeansNotFitted(t *testing.T) {
	km := NewMiniBatchKMeans()
	X := mat.NewDense(5, 2, nil)

	var notFitted *errors.NotFittedError
	if _, err := km.Transform(X); !errors.As(err, &notFitted) {
		t.Errorf("Transform before Fit: got %v, want NotFittedError", err)
	}
	if _, err := km.Predict(X); !errors.As(err, &notFitted) {
		t.Errorf("Predict before Fit: got %v, want NotFittedError", err)
	}
}

func TestMiniBatchKMeansInvalidParams(t *testing.T) {
	km := NewMiniBatchKMeans(WithNClusters(0))
	err := km.Fit(mat.NewDense(10, 2, nil))
	var invalid *errors.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestMiniBatchKMeansInsufficientData(t *testing.T) {
	km := NewMiniBatchKMeans(WithNClusters(8), WithRandomState(2))
	err := km.Fit(mat.NewDense(5, 2, nil))
	var insufficient *errors.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
}

func TestMiniBatchKMeansDeterministicWithSeed(t *testing.T) {
	X := twoBlobs(3)

	fit := func() [][]float64 {
		km := NewMiniBatchKMeans(WithNClusters(2), WithRandomState(42))
		if err := km.Fit(X); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		return km.ClusterCenters()
	}

	first := fit()
	second := fit()
	for c := range first {
		for j := range first[c] {
			if first[c][j] != second[c][j] {
				t.Fatalf("center %d differs between seeded fits: %v != %v", c, first[c], second[c])
			}
		}
	}
}

func TestMiniBatchKMeansPredictMatchesLabels(t *testing.T) {
	km := NewMiniBatchKMeans(WithNClusters(2), WithRandomState(4))
	X := twoBlobs(4)
	if err := km.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	predicted, err := km.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	labels := km.Labels()
	for i := range labels {
		if predicted[i] != labels[i] {
			t.Errorf("row %d: Predict = %d, Labels = %d", i, predicted[i], labels[i])
		}
	}
}

func TestMiniBatchKMeansTransform(t *testing.T) {
	km := NewMiniBatchKMeans(WithNClusters(3), WithRandomState(5))
	X := twoBlobs(5)
	if err := km.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	distances, err := km.Transform(X)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	r, c := distances.Dims()
	if r != 100 || c != 3 {
		t.Errorf("dims = (%d, %d), want (100, 3)", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if distances.At(i, j) < 0 {
				t.Fatalf("negative distance at (%d, %d)", i, j)
			}
		}
	}

	wide := mat.NewDense(10, 3, nil)
	var dimErr *errors.DimensionError
	if _, err := km.Transform(wide); !errors.As(err, &dimErr) {
		t.Errorf("got %v, want DimensionError", err)
	}
}

func TestMiniBatchKMeansSetClusterCenters(t *testing.T) {
	km := NewMiniBatchKMeans()
	centers := [][]float64{{0, 0}, {10, 10}}
	if err := km.SetClusterCenters(centers); err != nil {
		t.Fatalf("SetClusterCenters failed: %v", err)
	}
	if !km.IsFitted() {
		t.Error("restoring centers should mark the estimator fitted")
	}
	if km.NClusters() != 2 {
		t.Errorf("NClusters = %d, want 2", km.NClusters())
	}

	predicted, err := km.Predict(mat.NewDense(2, 2, []float64{1, 1, 9, 9}))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if predicted[0] != 0 || predicted[1] != 1 {
		t.Errorf("predicted = %v, want [0 1]", predicted)
	}

	var dimErr *errors.DimensionError
	if err := km.SetClusterCenters([][]float64{{0, 0}, {1}}); !errors.As(err, &dimErr) {
		t.Errorf("ragged centers: got %v, want DimensionError", err)
	}
}
