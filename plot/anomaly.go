// Package plot renders detection results to image files using gonum/plot.
package plot

import (
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/metrics"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// AnomalyScore plots per-sample anomaly scores as a line with the decision
// threshold drawn as a horizontal rule, and saves the result to path. The
// image format follows the file extension (.png, .svg, .pdf, ...).
func AnomalyScore(scores *mat.VecDense, threshold float64, path string) error {
	if scores == nil || scores.Len() == 0 {
		return errors.NewValueError("plot.AnomalyScore", "empty scores")
	}

	p := gplot.New()
	p.Title.Text = "Anomaly score"
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Score"

	points := make(plotter.XYs, scores.Len())
	for i := range points {
		points[i].X = float64(i)
		points[i].Y = scores.AtVec(i)
	}
	line, err := plotter.NewLine(points)
	if err != nil {
		return errors.Wrap(err, "failed to build score line")
	}
	p.Add(line)
	p.Legend.Add("score", line)

	rule, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: threshold},
		{X: float64(scores.Len() - 1), Y: threshold},
	})
	if err != nil {
		return errors.Wrap(err, "failed to build threshold rule")
	}
	rule.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(rule)
	p.Legend.Add("threshold", rule)

	return save(p, path)
}

// ROC plots a ROC curve with the chance diagonal and saves the result to
// path.
func ROC(curve []metrics.ROCPoint, path string) error {
	if len(curve) == 0 {
		return errors.NewValueError("plot.ROC", "empty curve")
	}

	p := gplot.New()
	p.Title.Text = "ROC curve"
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	points := make(plotter.XYs, len(curve))
	for i, pt := range curve {
		points[i].X = pt.FPR
		points[i].Y = pt.TPR
	}
	line, err := plotter.NewLine(points)
	if err != nil {
		return errors.Wrap(err, "failed to build ROC line")
	}
	p.Add(line)
	p.Legend.Add("ROC", line)

	diagonal, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "failed to build chance diagonal")
	}
	diagonal.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(diagonal)

	return save(p, path)
}

func save(p *gplot.Plot, path string) error {
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return errors.Wrap(err, "failed to save plot")
	}
	return nil
}
