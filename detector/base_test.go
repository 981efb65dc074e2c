package detector

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
)

func TestLabelScores(t *testing.T) {
	scores := mat.NewVecDense(4, []float64{0.1, 2.0, 0.5, 3.0})
	labels := labelScores(scores, 1.0)

	want := []int{model.Inlier, model.Outlier, model.Inlier, model.Outlier}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("labels[%d] = %d, want %d", i, labels[i], want[i])
		}
	}
}

func TestLabelScoresThresholdIsExclusive(t *testing.T) {
	// A score exactly at the threshold is an inlier; only score > threshold
	// is flagged.
	scores := mat.NewVecDense(1, []float64{1.0})
	labels := labelScores(scores, 1.0)
	if labels[0] != model.Inlier {
		t.Error("score equal to threshold should be labeled Inlier")
	}
}

func TestCalibrateThreshold(t *testing.T) {
	b := newBaseDetector("test")
	scores := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		name       string
		fpr        float64
		maxFlagged int
	}{
		{name: "default fpr", fpr: 0.01, maxFlagged: 1},
		{name: "five percent", fpr: 0.05, maxFlagged: 1},
		{name: "twenty percent", fpr: 0.2, maxFlagged: 2},
		{name: "zero fpr flags nothing", fpr: 0, maxFlagged: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.fpr = tt.fpr
			threshold := b.calibrateThreshold(scores)

			flagged := 0
			for _, s := range scores {
				if s > threshold {
					flagged++
				}
			}
			if flagged > tt.maxFlagged {
				t.Errorf("fpr %v flagged %d of %d, want at most %d",
					tt.fpr, flagged, len(scores), tt.maxFlagged)
			}
		})
	}
}

func TestCheckFPR(t *testing.T) {
	b := newBaseDetector("test")

	b.fpr = -0.1
	if err := b.checkFPR(); err == nil {
		t.Error("negative fpr should be rejected")
	}

	b.fpr = 1.0
	if err := b.checkFPR(); err == nil {
		t.Error("fpr of 1 should be rejected")
	}

	b.fpr = 0.05
	if err := b.checkFPR(); err != nil {
		t.Errorf("valid fpr rejected: %v", err)
	}
}

func TestEuclideanDistance(t *testing.T) {
	a := []float64{0, 0}
	b := []float64{3, 4}
	if got := euclideanDistance(a, b); math.Abs(got-5) > 1e-12 {
		t.Errorf("euclideanDistance = %v, want 5", got)
	}
}
