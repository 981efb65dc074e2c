// Standard attribute keys for detector operations. Using these keys
// consistently enables structured log filtering across the library. The keys
// follow a hierarchical naming convention ("model.name", "data.samples").

package log

// Model and operation context.
const (
	// ModelNameKey identifies the detector type.
	// Examples: "SparseStructureLearning", "MiniBatchKMeans", "PCA"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "anomaly_score", "detect", "transform"
	OperationKey = "ml.operation"

	// ComponentKey identifies the package performing the operation.
	// Examples: "detector", "preprocessing", "pipeline"
	ComponentKey = "ml.component"
)

// Data shape and characteristics.
const (
	// SamplesKey is the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// OutliersKey is the number of samples labeled as outliers.
	OutliersKey = "data.outliers"
)

// Fitted model characteristics and performance.
const (
	// ThresholdKey is the decision threshold calibrated at fit time.
	ThresholdKey = "model.threshold"

	// IterationsKey is the number of iterations an estimation routine ran.
	IterationsKey = "model.iterations"

	// DurationMsKey records the execution time of an operation in
	// milliseconds.
	DurationMsKey = "perf.duration_ms"
)
