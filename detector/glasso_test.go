package detector

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/datasets"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

func TestSparseStructureLearningNotFitted(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(1)...)

	if _, err := sut.AnomalyScore(X); !isNotFitted(err) {
		t.Errorf("AnomalyScore before Fit: got %v, want NotFittedError", err)
	}
	if _, err := sut.Detect(X); !isNotFitted(err) {
		t.Errorf("Detect before Fit: got %v, want NotFittedError", err)
	}
	if _, err := sut.FeatureWiseAnomalyScore(X); !isNotFitted(err) {
		t.Errorf("FeatureWiseAnomalyScore before Fit: got %v, want NotFittedError", err)
	}
	if _, err := sut.Analyze(X); !isNotFitted(err) {
		t.Errorf("Analyze before Fit: got %v, want NotFittedError", err)
	}
	if _, err := sut.FeatureWiseThresholds(); !isNotFitted(err) {
		t.Errorf("FeatureWiseThresholds before Fit: got %v, want NotFittedError", err)
	}
	if _, err := sut.Threshold(); !isNotFitted(err) {
		t.Errorf("Threshold before Fit: got %v, want NotFittedError", err)
	}
	if _, err := sut.TrainingScores(); !isNotFitted(err) {
		t.Errorf("TrainingScores before Fit: got %v, want NotFittedError", err)
	}
	if err := sut.Export(&bytes.Buffer{}); !isNotFitted(err) {
		t.Errorf("Export before Fit: got %v, want NotFittedError", err)
	}
}

func TestSparseStructureLearningFit(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(1)...)

	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !sut.IsFitted() {
		t.Error("detector should be fitted")
	}
	if sut.NFeatures() != 2 {
		t.Errorf("NFeatures = %d, want 2", sut.NFeatures())
	}

	scores, err := sut.TrainingScores()
	if err != nil {
		t.Fatalf("TrainingScores failed: %v", err)
	}
	if len(scores) != 100 {
		t.Errorf("len(TrainingScores) = %d, want 100", len(scores))
	}
}

func TestSparseStructureLearningInsufficientData(t *testing.T) {
	sut := NewSparseStructureLearning()

	// 3 samples, 5 features: covariance-based techniques need at least as
	// many samples as features.
	X := mat.NewDense(3, 5, nil)

	err := sut.Fit(X)
	var insufficient *errors.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
	if sut.IsFitted() {
		t.Error("failed fit must leave the detector unfitted")
	}
}

func TestSparseStructureLearningDimensionMismatch(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(1)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	wide := mat.NewDense(10, 3, nil)
	_, err := sut.AnomalyScore(wide)
	var dimErr *errors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want DimensionError", err)
	}
	if dimErr.Expected != 2 || dimErr.Got != 3 {
		t.Errorf("Expected/Got = %d/%d, want 2/3", dimErr.Expected, dimErr.Got)
	}
}

func TestSparseStructureLearningDeterministicScores(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(3)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	first, err := sut.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore failed: %v", err)
	}
	second, err := sut.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore failed: %v", err)
	}

	if !mat.Equal(first, second) {
		t.Error("identical input on a fixed fitted model must produce identical scores")
	}
}

func TestSparseStructureLearningDetectConsistency(t *testing.T) {
	sut := NewSparseStructureLearning(WithGLassoFPR(0.1))
	X, _ := datasets.MakeBlobs(blobOptions(4)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	scores, err := sut.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore failed: %v", err)
	}
	threshold, err := sut.Threshold()
	if err != nil {
		t.Fatalf("Threshold failed: %v", err)
	}
	labels, err := sut.Detect(X)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	for i := range labels {
		wantOutlier := scores.AtVec(i) > threshold
		if wantOutlier != (labels[i] == model.Outlier) {
			t.Errorf("row %d: score %v, threshold %v, label %d",
				i, scores.AtVec(i), threshold, labels[i])
		}
	}
}

func TestSparseStructureLearningCleanData(t *testing.T) {
	// Single-cluster data without injected outliers: at most the configured
	// contamination fraction may be flagged.
	sut := NewSparseStructureLearning(WithGLassoFPR(0.05))
	X, _ := datasets.MakeBlobs(
		datasets.WithNSamples(100),
		datasets.WithNFeatures(2),
		datasets.WithCenters(1),
		datasets.WithRandomState(11),
	)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	labels, err := sut.Detect(X)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	flagged := countOutliers(labels)
	if flagged > 5 {
		t.Errorf("flagged %d of 100 clean samples, want at most 5", flagged)
	}
}

func TestSparseStructureLearningFindsInjectedOutliers(t *testing.T) {
	sut := NewSparseStructureLearning(WithGLassoFPR(0.05))
	X, _ := datasets.MakeBlobs(
		datasets.WithNSamples(100),
		datasets.WithNFeatures(2),
		datasets.WithCenters(1),
		datasets.WithClusterStd(1.0),
		datasets.WithOutliers(5, -50, 50),
		datasets.WithRandomState(12),
	)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	scores, err := sut.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore failed: %v", err)
	}
	assertTopScoresAreOutliers(t, scores, 100, 5)

	labels, err := sut.Detect(X)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for i := 100; i < 105; i++ {
		if labels[i] != model.Outlier {
			t.Errorf("injected outlier %d labeled Inlier", i)
		}
	}
}

func TestSparseStructureLearningAnalyzeConsistency(t *testing.T) {
	sut := NewSparseStructureLearning(WithGLassoFPR(0.1))
	X, _ := datasets.MakeBlobs(blobOptions(14)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	scores, err := sut.FeatureWiseAnomalyScore(X)
	if err != nil {
		t.Fatalf("FeatureWiseAnomalyScore failed: %v", err)
	}
	thresholds, err := sut.FeatureWiseThresholds()
	if err != nil {
		t.Fatalf("FeatureWiseThresholds failed: %v", err)
	}
	labels, err := sut.Analyze(X)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	n, p := scores.Dims()
	if len(labels) != n || len(labels[0]) != p {
		t.Fatalf("Analyze shape = %dx%d, want %dx%d", len(labels), len(labels[0]), n, p)
	}
	if len(thresholds) != p {
		t.Fatalf("len(FeatureWiseThresholds) = %d, want %d", len(thresholds), p)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			wantOutlier := scores.At(i, j) > thresholds[j]
			if wantOutlier != (labels[i][j] == model.Outlier) {
				t.Errorf("sample %d feature %d: score %v, threshold %v, label %d",
					i, j, scores.At(i, j), thresholds[j], labels[i][j])
			}
		}
	}
}

func TestSparseStructureLearningFitAnalyze(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(15)...)

	labels, err := sut.FitAnalyze(X)
	if err != nil {
		t.Fatalf("FitAnalyze failed: %v", err)
	}
	if len(labels) != 100 || len(labels[0]) != 2 {
		t.Fatalf("FitAnalyze shape = %dx%d, want 100x2", len(labels), len(labels[0]))
	}
	if !sut.IsFitted() {
		t.Error("FitAnalyze must leave the detector fitted")
	}
}

func TestSparseStructureLearningAnalyzeThresholdMismatch(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(16)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	_, err := sut.AnalyzeWithThresholds(X, []float64{1})
	var dimErr *errors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want DimensionError", err)
	}
}

func TestSparseStructureLearningSingularCovariance(t *testing.T) {
	sut := NewSparseStructureLearning()

	// A constant feature has zero variance, so the empirical covariance is
	// singular before the penalty is even applied.
	X := mat.NewDense(10, 2, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, 3)
	}

	err := sut.Fit(X)
	if !errors.Is(err, errors.ErrSingularMatrix) {
		t.Fatalf("got %v, want ErrSingularMatrix in the chain", err)
	}
	var fitErr *errors.FitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("got %v, want FitError", err)
	}
	if sut.IsFitted() {
		t.Error("failed fit must leave the detector unfitted")
	}
}

func TestSparseStructureLearningConvergenceWarning(t *testing.T) {
	var captured error
	errors.SetWarningHandler(func(w error) { captured = w })
	defer errors.SetWarningHandler(nil)

	// Strongly correlated features with a single outer iteration and a
	// tolerance the coordinate descent cannot meet.
	rng := rand.New(rand.NewSource(17))
	X := mat.NewDense(100, 2, nil)
	for i := 0; i < 100; i++ {
		v := rng.NormFloat64()
		X.Set(i, 0, v)
		X.Set(i, 1, v+0.1*rng.NormFloat64())
	}

	sut := NewSparseStructureLearning(WithGLassoMaxIter(1), WithGLassoTol(1e-12))
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !sut.IsFitted() {
		t.Error("a non-converged fit is still usable and must leave the detector fitted")
	}
	if sut.NIterations() != 1 {
		t.Errorf("NIterations = %d, want 1", sut.NIterations())
	}

	var warning *errors.ConvergenceWarning
	if !errors.As(captured, &warning) {
		t.Fatalf("got %v, want ConvergenceWarning", captured)
	}
	if warning.Algorithm != "graphical lasso" || warning.Iterations != 1 {
		t.Errorf("warning = %+v, want graphical lasso after 1 iteration", warning)
	}
}

func TestSparseStructureLearningRoundTrip(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(5)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	original, err := sut.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sut.Export(&buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	restored := NewSparseStructureLearning()
	if err := restored.Import(&buf); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	rescored, err := restored.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore on restored detector failed: %v", err)
	}
	if !mat.Equal(original, rescored) {
		t.Error("restored detector must reproduce identical scores")
	}

	origThreshold, _ := sut.Threshold()
	restThreshold, _ := restored.Threshold()
	if origThreshold != restThreshold {
		t.Errorf("threshold changed across round trip: %v != %v", origThreshold, restThreshold)
	}

	origFeature, err := sut.FeatureWiseThresholds()
	if err != nil {
		t.Fatalf("FeatureWiseThresholds failed: %v", err)
	}
	restFeature, err := restored.FeatureWiseThresholds()
	if err != nil {
		t.Fatalf("FeatureWiseThresholds on restored detector failed: %v", err)
	}
	for j := range origFeature {
		if origFeature[j] != restFeature[j] {
			t.Errorf("feature threshold %d changed across round trip: %v != %v",
				j, origFeature[j], restFeature[j])
		}
	}
}

func TestSparseStructureLearningRefitOverwrites(t *testing.T) {
	sut := NewSparseStructureLearning()

	X1, _ := datasets.MakeBlobs(blobOptions(6)...)
	if err := sut.Fit(X1); err != nil {
		t.Fatalf("first Fit failed: %v", err)
	}
	first, _ := sut.Threshold()

	X2, _ := datasets.MakeBlobs(
		datasets.WithNSamples(100),
		datasets.WithNFeatures(2),
		datasets.WithClusterStd(5.0),
		datasets.WithRandomState(99),
	)
	if err := sut.Fit(X2); err != nil {
		t.Fatalf("re-fit failed: %v", err)
	}
	second, _ := sut.Threshold()

	if first == second {
		t.Error("re-fit on different data should replace the learned threshold")
	}
}

func TestSparseStructureLearningFailedRefitKeepsState(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(7)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	before, err := sut.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore failed: %v", err)
	}

	// Insufficient data: the re-fit fails before any state is assigned.
	if err := sut.Fit(mat.NewDense(3, 5, nil)); err == nil {
		t.Fatal("expected re-fit to fail")
	}

	if !sut.IsFitted() {
		t.Fatal("failed re-fit must keep the previous fitted state")
	}
	after, err := sut.AnomalyScore(X)
	if err != nil {
		t.Fatalf("AnomalyScore after failed re-fit: %v", err)
	}
	if !mat.Equal(before, after) {
		t.Error("failed re-fit must not disturb the previous parameters")
	}
}

func TestSparseStructureLearningSparsity(t *testing.T) {
	// With a strong penalty and independent features, the off-diagonal
	// precision entries are driven exactly to zero.
	sut := NewSparseStructureLearning(WithGLassoAlpha(0.5))
	X, _ := datasets.MakeBlobs(
		datasets.WithNSamples(200),
		datasets.WithNFeatures(3),
		datasets.WithCenters(1),
		datasets.WithRandomState(21),
	)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	precision, err := sut.Precision()
	if err != nil {
		t.Fatalf("Precision failed: %v", err)
	}
	p, _ := precision.Dims()
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			if i != j && precision.At(i, j) != 0 {
				t.Errorf("precision[%d][%d] = %v, want exactly 0 under strong penalty",
					i, j, precision.At(i, j))
			}
		}
	}
}

func TestSparseStructureLearningPartialCorrcoef(t *testing.T) {
	sut := NewSparseStructureLearning()
	X, _ := datasets.MakeBlobs(blobOptions(8)...)
	if err := sut.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	pcorr, err := sut.PartialCorrcoef()
	if err != nil {
		t.Fatalf("PartialCorrcoef failed: %v", err)
	}

	p, _ := pcorr.Dims()
	for i := 0; i < p; i++ {
		if pcorr.At(i, i) != 1 {
			t.Errorf("diagonal entry %d = %v, want 1", i, pcorr.At(i, i))
		}
		for j := 0; j < p; j++ {
			if math.Abs(pcorr.At(i, j)) > 1+1e-9 {
				t.Errorf("partial correlation out of range: pcorr[%d][%d] = %v", i, j, pcorr.At(i, j))
			}
			if pcorr.At(i, j) != pcorr.At(j, i) {
				t.Errorf("partial correlation matrix must be symmetric at (%d, %d)", i, j)
			}
		}
	}
}

func TestSparseStructureLearningInvalidParams(t *testing.T) {
	X, _ := datasets.MakeBlobs(blobOptions(9)...)

	tests := []struct {
		name string
		sut  *SparseStructureLearning
	}{
		{name: "negative alpha", sut: NewSparseStructureLearning(WithGLassoAlpha(-1))},
		{name: "invalid fpr", sut: NewSparseStructureLearning(WithGLassoFPR(1.5))},
		{name: "zero tol", sut: NewSparseStructureLearning(WithGLassoTol(0))},
		{name: "zero max iter", sut: NewSparseStructureLearning(WithGLassoMaxIter(0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sut.Fit(X)
			var validation *errors.ValidationError
			if !errors.As(err, &validation) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}
}

// Shared test helpers.

// blobOptions returns the default two-feature single-cluster options with
// the given seed.
func blobOptions(seed int64) []datasets.BlobsOption {
	return []datasets.BlobsOption{
		datasets.WithNSamples(100),
		datasets.WithNFeatures(2),
		datasets.WithCenters(1),
		datasets.WithRandomState(seed),
	}
}

func isNotFitted(err error) bool {
	var notFitted *errors.NotFittedError
	return errors.As(err, &notFitted)
}

func countOutliers(labels []int) int {
	n := 0
	for _, l := range labels {
		if l == model.Outlier {
			n++
		}
	}
	return n
}

// assertTopScoresAreOutliers checks that the nOutliers highest scores belong
// to the rows appended after the first nInliers rows.
func assertTopScoresAreOutliers(t *testing.T, scores *mat.VecDense, nInliers, nOutliers int) {
	t.Helper()

	minOutlierScore := math.Inf(1)
	for i := nInliers; i < nInliers+nOutliers; i++ {
		if s := scores.AtVec(i); s < minOutlierScore {
			minOutlierScore = s
		}
	}
	for i := 0; i < nInliers; i++ {
		if scores.AtVec(i) >= minOutlierScore {
			t.Errorf("inlier %d scored %v, above the lowest injected outlier score %v",
				i, scores.AtVec(i), minOutlierScore)
		}
	}
}
