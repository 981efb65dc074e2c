package detector

import (
	"strings"
	"testing"

	"github.com/YuminosukeSato/godetect/core/model"
	"github.com/YuminosukeSato/godetect/pkg/errors"
)

type importable interface {
	model.Importer
	IsFitted() bool
}

// Serialized state whose matrix payloads disagree with n_features must be
// rejected at Import time; accepting it would only surface later as an
// out-of-range index during scoring.
func TestImportRejectsInconsistentState(t *testing.T) {
	tests := []struct {
		name string
		sut  importable
		json string
	}{
		{
			name: "glasso precision smaller than n_features",
			sut:  NewSparseStructureLearning(),
			json: `{
				"model_type": "SparseStructureLearning",
				"n_features": 2,
				"fpr": 0.01,
				"threshold": 1,
				"training_scores": [1, 2],
				"alpha": 0.01,
				"mean": [0, 0],
				"covariance": [[1, 0], [0, 1]],
				"precision": [[1]],
				"feature_thresholds": [0, 0],
				"n_iter": 3
			}`,
		},
		{
			name: "glasso feature thresholds length mismatch",
			sut:  NewSparseStructureLearning(),
			json: `{
				"model_type": "SparseStructureLearning",
				"n_features": 2,
				"fpr": 0.01,
				"threshold": 1,
				"training_scores": [1, 2],
				"alpha": 0.01,
				"mean": [0, 0],
				"covariance": [[1, 0], [0, 1]],
				"precision": [[1, 0], [0, 1]],
				"feature_thresholds": [0],
				"n_iter": 3
			}`,
		},
		{
			name: "pca component rows exceed n_features",
			sut:  NewPCA(),
			json: `{
				"model_type": "PCA",
				"n_features": 2,
				"fpr": 0.01,
				"threshold": 1,
				"training_scores": [1, 2],
				"mean": [0, 0],
				"components": [[1], [0], [0]],
				"n_components": 1,
				"explained_variance_ratio": [1],
				"feature_thresholds": [0, 0]
			}`,
		},
		{
			name: "pca explained variance length mismatch",
			sut:  NewPCA(),
			json: `{
				"model_type": "PCA",
				"n_features": 2,
				"fpr": 0.01,
				"threshold": 1,
				"training_scores": [1, 2],
				"mean": [0, 0],
				"components": [[1], [0]],
				"n_components": 1,
				"explained_variance_ratio": [0.5, 0.5],
				"feature_thresholds": [0, 0]
			}`,
		},
		{
			name: "knn training matrix width mismatch",
			sut:  NewKNN(),
			json: `{
				"model_type": "KNN",
				"n_features": 2,
				"fpr": 0.01,
				"threshold": 1,
				"training_scores": [1],
				"k": 1,
				"train": [[1, 2, 3]]
			}`,
		},
		{
			name: "kmeans cluster center width mismatch",
			sut:  NewMiniBatchKMeans(),
			json: `{
				"model_type": "MiniBatchKMeans",
				"n_features": 2,
				"fpr": 0.01,
				"threshold": 1,
				"training_scores": [1],
				"cluster_centers": [[1]]
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sut.Import(strings.NewReader(tt.json))
			var dimErr *errors.DimensionError
			if !errors.As(err, &dimErr) {
				t.Fatalf("got %v, want DimensionError", err)
			}
			if tt.sut.IsFitted() {
				t.Error("rejected import must leave the detector unfitted")
			}
		})
	}
}

func TestImportRejectsInsufficientTrainingRows(t *testing.T) {
	// Fewer stored training rows than k would make every score query fail.
	sut := NewKNN()
	payload := `{
		"model_type": "KNN",
		"n_features": 2,
		"fpr": 0.01,
		"threshold": 1,
		"training_scores": [1],
		"k": 5,
		"train": [[1, 2], [3, 4]]
	}`

	err := sut.Import(strings.NewReader(payload))
	var insufficient *errors.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
	if sut.IsFitted() {
		t.Error("rejected import must leave the detector unfitted")
	}
}
