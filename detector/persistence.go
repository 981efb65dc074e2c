package detector

import (
	"encoding/json"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/godetect/cluster"
	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

// The serialized form of a fitted detector is purely numeric JSON. Go's JSON
// encoder emits the shortest float64 representation that round-trips
// exactly, so an Export/Import cycle reproduces anomaly scores bit for bit.

// detectorState is the envelope common to every detector type.
type detectorState struct {
	ModelType      string    `json:"model_type"`
	NFeatures      int       `json:"n_features"`
	FPR            float64   `json:"fpr"`
	Threshold      float64   `json:"threshold"`
	TrainingScores []float64 `json:"training_scores"`
}

// Save writes a fitted detector's learned parameters to a JSON file.
func Save(path string, e model.Exporter) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create model file")
	}
	defer f.Close()

	return e.Export(f)
}

// Load restores a detector's learned parameters from a JSON file previously
// written by Save.
func Load(path string, i model.Importer) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open model file")
	}
	defer f.Close()

	return i.Import(f)
}

func encodeState(w io.Writer, state any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

func decodeState(r io.Reader, state any) error {
	return json.NewDecoder(r).Decode(state)
}

func (s *detectorState) validate(modelType string) error {
	if s.ModelType != modelType {
		return errors.NewValueError("Import", "model_type mismatch: expected "+modelType+", got "+s.ModelType)
	}
	if s.NFeatures <= 0 {
		return errors.NewValueError("Import", "invalid n_features")
	}
	return nil
}

func denseToRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		mat.Row(rows[i], i, m)
	}
	return rows
}

func rowsToDense(op string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.NewValueError(op, "empty matrix in serialized state")
	}
	c := len(rows[0])
	m := mat.NewDense(len(rows), c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, errors.NewDimensionError(op, c, len(row), 1)
		}
		m.SetRow(i, row)
	}
	return m, nil
}

// ===========================================================================
//
//	SparseStructureLearning
//
// ===========================================================================

type glassoState struct {
	detectorState
	Alpha             float64     `json:"alpha"`
	Mean              []float64   `json:"mean"`
	Covariance        [][]float64 `json:"covariance"`
	Precision         [][]float64 `json:"precision"`
	FeatureThresholds []float64   `json:"feature_thresholds"`
	NIter             int         `json:"n_iter"`
}

// Export writes the fitted parameters as JSON.
func (d *SparseStructureLearning) Export(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return errors.NewNotFittedError(d.name, "Export")
	}

	p := d.covariance_.SymmetricDim()
	cov := make([][]float64, p)
	for i := 0; i < p; i++ {
		cov[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			cov[i][j] = d.covariance_.At(i, j)
		}
	}

	state := glassoState{
		detectorState: detectorState{
			ModelType:      d.name,
			NFeatures:      d.nFeatures,
			FPR:            d.fpr,
			Threshold:      d.threshold,
			TrainingScores: d.trainingScores,
		},
		Alpha:             d.alpha,
		Mean:              d.mean_,
		Covariance:        cov,
		Precision:         denseToRows(d.precision_),
		FeatureThresholds: d.featureThresholds,
		NIter:             d.nIter_,
	}
	return encodeState(w, state)
}

// Import restores fitted parameters from JSON, replacing any current state.
func (d *SparseStructureLearning) Import(r io.Reader) error {
	var state glassoState
	if err := decodeState(r, &state); err != nil {
		return errors.Wrap(err, "failed to decode SparseStructureLearning state")
	}
	if err := state.validate("SparseStructureLearning"); err != nil {
		return err
	}
	if len(state.Mean) != state.NFeatures {
		return errors.NewDimensionError("SparseStructureLearning.Import", state.NFeatures, len(state.Mean), 1)
	}
	if len(state.FeatureThresholds) != state.NFeatures {
		return errors.NewDimensionError("SparseStructureLearning.Import", state.NFeatures, len(state.FeatureThresholds), 1)
	}

	precision, err := rowsToDense("SparseStructureLearning.Import", state.Precision)
	if err != nil {
		return err
	}
	// Every matrix payload must agree with n_features; scoring would index
	// out of range otherwise.
	if r, c := precision.Dims(); r != state.NFeatures {
		return errors.NewDimensionError("SparseStructureLearning.Import", state.NFeatures, r, 0)
	} else if c != state.NFeatures {
		return errors.NewDimensionError("SparseStructureLearning.Import", state.NFeatures, c, 1)
	}

	p := len(state.Covariance)
	if p != state.NFeatures {
		return errors.NewDimensionError("SparseStructureLearning.Import", state.NFeatures, p, 1)
	}
	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		if len(state.Covariance[i]) != p {
			return errors.NewDimensionError("SparseStructureLearning.Import", p, len(state.Covariance[i]), 1)
		}
		for j := i; j < p; j++ {
			cov.SetSym(i, j, state.Covariance[i][j])
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.alpha = state.Alpha
	d.fpr = state.FPR
	d.mean_ = state.Mean
	d.covariance_ = cov
	d.precision_ = precision
	d.featureThresholds = state.FeatureThresholds
	d.nIter_ = state.NIter
	d.nFeatures = state.NFeatures
	d.threshold = state.Threshold
	d.trainingScores = state.TrainingScores
	d.SetFitted()
	return nil
}

// ===========================================================================
//
//	MiniBatchKMeans
//
// ===========================================================================

type kmeansState struct {
	detectorState
	ClusterCenters [][]float64 `json:"cluster_centers"`
}

// Export writes the fitted parameters as JSON.
func (d *MiniBatchKMeans) Export(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return errors.NewNotFittedError(d.name, "Export")
	}

	state := kmeansState{
		detectorState: detectorState{
			ModelType:      d.name,
			NFeatures:      d.nFeatures,
			FPR:            d.fpr,
			Threshold:      d.threshold,
			TrainingScores: d.trainingScores,
		},
		ClusterCenters: d.kmeans.ClusterCenters(),
	}
	return encodeState(w, state)
}

// Import restores fitted parameters from JSON, replacing any current state.
func (d *MiniBatchKMeans) Import(r io.Reader) error {
	var state kmeansState
	if err := decodeState(r, &state); err != nil {
		return errors.Wrap(err, "failed to decode MiniBatchKMeans state")
	}
	if err := state.validate("MiniBatchKMeans"); err != nil {
		return err
	}

	if len(state.ClusterCenters) == 0 {
		return errors.NewValueError("MiniBatchKMeans.Import", "empty cluster centers")
	}
	if width := len(state.ClusterCenters[0]); width != state.NFeatures {
		return errors.NewDimensionError("MiniBatchKMeans.Import", state.NFeatures, width, 1)
	}

	km := cluster.NewMiniBatchKMeans(d.kmeansOptions...)
	if err := km.SetClusterCenters(state.ClusterCenters); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.kmeans = km
	d.fpr = state.FPR
	d.nFeatures = state.NFeatures
	d.threshold = state.Threshold
	d.trainingScores = state.TrainingScores
	d.SetFitted()
	return nil
}

// ===========================================================================
//
//	PCA
//
// ===========================================================================

type pcaState struct {
	detectorState
	Mean                   []float64   `json:"mean"`
	Components             [][]float64 `json:"components"`
	NComponents            int         `json:"n_components"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio"`
	FeatureThresholds      []float64   `json:"feature_thresholds"`
}

// Export writes the fitted parameters as JSON.
func (d *PCA) Export(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return errors.NewNotFittedError(d.name, "Export")
	}

	state := pcaState{
		detectorState: detectorState{
			ModelType:      d.name,
			NFeatures:      d.nFeatures,
			FPR:            d.fpr,
			Threshold:      d.threshold,
			TrainingScores: d.trainingScores,
		},
		Mean:                   d.mean_,
		Components:             denseToRows(d.components_),
		NComponents:            d.nComponents_,
		ExplainedVarianceRatio: d.explainedVarianceRatio_,
		FeatureThresholds:      d.featureThresholds,
	}
	return encodeState(w, state)
}

// Import restores fitted parameters from JSON, replacing any current state.
func (d *PCA) Import(r io.Reader) error {
	var state pcaState
	if err := decodeState(r, &state); err != nil {
		return errors.Wrap(err, "failed to decode PCA state")
	}
	if err := state.validate("PCA"); err != nil {
		return err
	}
	if len(state.Mean) != state.NFeatures {
		return errors.NewDimensionError("PCA.Import", state.NFeatures, len(state.Mean), 1)
	}
	if len(state.FeatureThresholds) != state.NFeatures {
		return errors.NewDimensionError("PCA.Import", state.NFeatures, len(state.FeatureThresholds), 1)
	}
	if state.NComponents < 1 || state.NComponents > state.NFeatures {
		return errors.NewValueError("PCA.Import", "invalid n_components")
	}

	components, err := rowsToDense("PCA.Import", state.Components)
	if err != nil {
		return err
	}
	// The component matrix is (n_features x n_components); a mismatched
	// shape would make scoring index out of range.
	if r, c := components.Dims(); r != state.NFeatures {
		return errors.NewDimensionError("PCA.Import", state.NFeatures, r, 0)
	} else if c != state.NComponents {
		return errors.NewDimensionError("PCA.Import", state.NComponents, c, 1)
	}
	if len(state.ExplainedVarianceRatio) != state.NComponents {
		return errors.NewDimensionError("PCA.Import", state.NComponents, len(state.ExplainedVarianceRatio), 1)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.mean_ = state.Mean
	d.components_ = components
	d.nComponents_ = state.NComponents
	d.explainedVarianceRatio_ = state.ExplainedVarianceRatio
	d.featureThresholds = state.FeatureThresholds
	d.fpr = state.FPR
	d.nFeatures = state.NFeatures
	d.threshold = state.Threshold
	d.trainingScores = state.TrainingScores
	d.SetFitted()
	return nil
}

// ===========================================================================
//
//	KNN
//
// ===========================================================================

type knnState struct {
	detectorState
	K     int         `json:"k"`
	Train [][]float64 `json:"train"`
}

// Export writes the fitted parameters as JSON. KNN is instance-based, so the
// training data itself is serialized.
func (d *KNN) Export(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.IsFitted() {
		return errors.NewNotFittedError(d.name, "Export")
	}

	state := knnState{
		detectorState: detectorState{
			ModelType:      d.name,
			NFeatures:      d.nFeatures,
			FPR:            d.fpr,
			Threshold:      d.threshold,
			TrainingScores: d.trainingScores,
		},
		K:     d.k,
		Train: denseToRows(d.train_),
	}
	return encodeState(w, state)
}

// Import restores fitted parameters from JSON, replacing any current state.
func (d *KNN) Import(r io.Reader) error {
	var state knnState
	if err := decodeState(r, &state); err != nil {
		return errors.Wrap(err, "failed to decode KNN state")
	}
	if err := state.validate("KNN"); err != nil {
		return err
	}
	if state.K < 1 {
		return errors.NewValidationError("k", "must be positive", state.K)
	}

	train, err := rowsToDense("KNN.Import", state.Train)
	if err != nil {
		return err
	}
	if r, c := train.Dims(); c != state.NFeatures {
		return errors.NewDimensionError("KNN.Import", state.NFeatures, c, 1)
	} else if r < state.K {
		return errors.NewInsufficientDataError("KNN.Import", state.K, state.NFeatures, r, c)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.k = state.K
	d.train_ = train
	d.fpr = state.FPR
	d.nFeatures = state.NFeatures
	d.threshold = state.Threshold
	d.trainingScores = state.TrainingScores
	d.SetFitted()
	return nil
}
