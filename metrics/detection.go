// Package metrics evaluates detection results against ground-truth labels.
// Labels follow the model package convention: model.Inlier for normal
// samples, model.Outlier for anomalies. Outliers are the positive class.
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// DetectionReport summarizes a labeled detection run.
type DetectionReport struct {
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int

	Precision float64
	Recall    float64
	F1        float64
	Accuracy  float64
}

// Report compares predicted labels against ground truth and computes the
// confusion counts and derived rates. Undefined rates (no predicted or no
// actual positives) are reported as zero.
func Report(yTrue, yPred []int) (*DetectionReport, error) {
	if len(yTrue) == 0 {
		return nil, errors.NewValueError("metrics.Report", "empty labels")
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.NewDimensionError("metrics.Report", len(yTrue), len(yPred), 0)
	}

	r := &DetectionReport{}
	for i := range yTrue {
		if err := checkLabel(yTrue[i]); err != nil {
			return nil, err
		}
		if err := checkLabel(yPred[i]); err != nil {
			return nil, err
		}

		switch {
		case yTrue[i] == model.Outlier && yPred[i] == model.Outlier:
			r.TruePositives++
		case yTrue[i] == model.Inlier && yPred[i] == model.Outlier:
			r.FalsePositives++
		case yTrue[i] == model.Inlier && yPred[i] == model.Inlier:
			r.TrueNegatives++
		default:
			r.FalseNegatives++
		}
	}

	if predicted := r.TruePositives + r.FalsePositives; predicted > 0 {
		r.Precision = float64(r.TruePositives) / float64(predicted)
	}
	if actual := r.TruePositives + r.FalseNegatives; actual > 0 {
		r.Recall = float64(r.TruePositives) / float64(actual)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	r.Accuracy = float64(r.TruePositives+r.TrueNegatives) / float64(len(yTrue))
	return r, nil
}

// Precision returns the fraction of flagged samples that are true outliers.
func Precision(yTrue, yPred []int) (float64, error) {
	r, err := Report(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.Precision, nil
}

// Recall returns the fraction of true outliers that were flagged.
func Recall(yTrue, yPred []int) (float64, error) {
	r, err := Report(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.Recall, nil
}

// F1Score returns the harmonic mean of precision and recall.
func F1Score(yTrue, yPred []int) (float64, error) {
	r, err := Report(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.F1, nil
}

// ROCPoint is one operating point of a ROC curve.
type ROCPoint struct {
	Threshold float64
	FPR       float64
	TPR       float64
}

// ROCCurve sweeps the decision threshold over the observed anomaly scores and
// returns one operating point per distinct score, ordered by increasing false
// positive rate. The first point is (FPR 0, TPR 0), the last (FPR 1, TPR 1).
func ROCCurve(yTrue []int, scores *mat.VecDense) ([]ROCPoint, error) {
	if scores == nil || scores.Len() == 0 {
		return nil, errors.NewValueError("metrics.ROCCurve", "empty scores")
	}
	if len(yTrue) != scores.Len() {
		return nil, errors.NewDimensionError("metrics.ROCCurve", len(yTrue), scores.Len(), 0)
	}

	var positives, negatives int
	for _, label := range yTrue {
		if err := checkLabel(label); err != nil {
			return nil, err
		}
		if label == model.Outlier {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return nil, errors.NewValueError("metrics.ROCCurve", "both classes must be present")
	}

	type scored struct {
		score float64
		label int
	}
	samples := make([]scored, scores.Len())
	for i := range samples {
		samples[i] = scored{score: scores.AtVec(i), label: yTrue[i]}
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].score > samples[j].score
	})

	points := []ROCPoint{{Threshold: samples[0].score, FPR: 0, TPR: 0}}
	var tp, fp int
	for i, s := range samples {
		if s.label == model.Outlier {
			tp++
		} else {
			fp++
		}
		// Emit a point only at distinct score boundaries so ties move the
		// curve diagonally rather than stepwise.
		if i+1 < len(samples) && samples[i+1].score == s.score {
			continue
		}
		points = append(points, ROCPoint{
			Threshold: s.score,
			FPR:       float64(fp) / float64(negatives),
			TPR:       float64(tp) / float64(positives),
		})
	}
	return points, nil
}

// AUC computes the area under the ROC curve by trapezoidal integration.
func AUC(yTrue []int, scores *mat.VecDense) (float64, error) {
	points, err := ROCCurve(yTrue, scores)
	if err != nil {
		return 0, err
	}

	var area float64
	for i := 1; i < len(points); i++ {
		width := points[i].FPR - points[i-1].FPR
		height := (points[i].TPR + points[i-1].TPR) / 2
		area += width * height
	}
	return area, nil
}

func checkLabel(label int) error {
	if label != model.Inlier && label != model.Outlier {
		return errors.NewValueError("metrics", "labels must be Inlier or Outlier")
	}
	return nil
}
