// Package pipeline chains transformation steps with a final detector so the
// whole sequence can be fitted and applied as a single estimator.
package pipeline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// Step is a named transformation stage.
type Step struct {
	Name        string
	Transformer model.Transformer
}

// Pipeline applies its transformer steps in order and delegates the detector
// contract to the final detector. It satisfies model.Detector itself, so a
// pipeline can be used anywhere a bare detector can.
type Pipeline struct {
	steps    []Step
	detector model.Detector
}

// New creates a pipeline from zero or more transformer steps and a final
// detector.
func New(detector model.Detector, steps ...Step) (*Pipeline, error) {
	if detector == nil {
		return nil, errors.NewValueError("pipeline.New", "final detector is nil")
	}
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if step.Name == "" {
			return nil, errors.NewValueError("pipeline.New", "step name is empty")
		}
		if step.Transformer == nil {
			return nil, errors.NewValueError("pipeline.New", "step "+step.Name+" has a nil transformer")
		}
		if _, dup := seen[step.Name]; dup {
			return nil, errors.NewValueError("pipeline.New", "duplicate step name "+step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return &Pipeline{steps: steps, detector: detector}, nil
}

// Fit fits each transformer on the running transformation of the training
// data, then fits the final detector on the fully transformed data.
func (p *Pipeline) Fit(X mat.Matrix) error {
	current := X
	for _, step := range p.steps {
		transformed, err := step.Transformer.FitTransform(current)
		if err != nil {
			return errors.Wrapf(err, "pipeline step %s", step.Name)
		}
		current = transformed
	}
	return p.detector.Fit(current)
}

// AnomalyScore transforms X through every step and scores it with the final
// detector.
func (p *Pipeline) AnomalyScore(X mat.Matrix) (*mat.VecDense, error) {
	current, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.detector.AnomalyScore(current)
}

// Detect transforms X through every step and labels it with the final
// detector.
func (p *Pipeline) Detect(X mat.Matrix) ([]int, error) {
	current, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.detector.Detect(current)
}

// DetectWithThreshold labels the transformed X against an explicit threshold.
// The final detector must support threshold overrides.
func (p *Pipeline) DetectWithThreshold(X mat.Matrix, threshold float64) ([]int, error) {
	td, ok := p.detector.(model.ThresholdDetector)
	if !ok {
		return nil, errors.NewValueError("Pipeline.DetectWithThreshold", "final detector does not support threshold overrides")
	}
	current, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return td.DetectWithThreshold(current, threshold)
}

// FitDetect fits the pipeline and labels the training samples.
func (p *Pipeline) FitDetect(X mat.Matrix) ([]int, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Detect(X)
}

// FeatureWiseAnomalyScore transforms X and delegates to the final detector.
// Note the scores are attributed to the transformed features. The final
// detector must support feature-wise scoring.
func (p *Pipeline) FeatureWiseAnomalyScore(X mat.Matrix) (*mat.Dense, error) {
	fw, ok := p.detector.(model.FeatureWiseScorer)
	if !ok {
		return nil, errors.NewValueError("Pipeline.FeatureWiseAnomalyScore", "final detector does not support feature-wise scores")
	}
	current, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return fw.FeatureWiseAnomalyScore(current)
}

// Analyze transforms X and delegates per-feature labeling to the final
// detector. Note the labels are attributed to the transformed features. The
// final detector must support feature-wise scoring.
func (p *Pipeline) Analyze(X mat.Matrix) ([][]int, error) {
	fw, ok := p.detector.(model.FeatureWiseScorer)
	if !ok {
		return nil, errors.NewValueError("Pipeline.Analyze", "final detector does not support feature-wise scores")
	}
	current, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return fw.Analyze(current)
}

// Detector returns the final detector.
func (p *Pipeline) Detector() model.Detector {
	return p.detector
}

// Steps returns the names of the transformer steps in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name
	}
	return names
}

func (p *Pipeline) transform(X mat.Matrix) (mat.Matrix, error) {
	current := X
	for _, step := range p.steps {
		transformed, err := step.Transformer.Transform(current)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %s", step.Name)
		}
		current = transformed
	}
	return current, nil
}
