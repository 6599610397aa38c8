package log

// Standard attribute keys. Using shared keys keeps the JSON log stream queryable
// across pipeline stages.

// Model and component identification
const (
	// ModelNameKey identifies the type of model, e.g. "gbt.Regressor".
	ModelNameKey = "model.name"

	// ModelVersionKey is the pipeline_version the artifact was trained under.
	ModelVersionKey = "model.version"

	// OperationKey specifies the operation being performed (fit, predict, ...).
	OperationKey = "ml.operation"

	// ComponentKey identifies which package emitted the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// StageKey names the pipeline stage (ingestion, cleaning, ...).
	StageKey = "pipeline.stage"

	// RunIDKey is the tracking run identifier.
	RunIDKey = "run.id"
)

// Data characteristics
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// ColumnsKey lists column names.
	ColumnsKey = "data.columns"

	// FilePathKey is a file being read or written.
	FilePathKey = "data.file"

	// FileTypeKey is the configured or detected input format.
	FileTypeKey = "data.file_type"

	// ChunkIndexKey is the zero-based index of a lazily read chunk.
	ChunkIndexKey = "data.chunk"

	// BatchSizeKey indicates the size of processing batches.
	BatchSizeKey = "data.batch_size"

	// PreviewKey carries a short head() rendering of a frame.
	PreviewKey = "data.preview"
)

// Performance and training
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// LossKey records the training loss.
	LossKey = "metrics.loss"

	// MetricNameKey is the evaluation metric name (rmse, mae, ...).
	MetricNameKey = "metrics.name"

	// MetricValueKey is the evaluation metric value.
	MetricValueKey = "metrics.value"

	// R2ScoreKey records R² for regression.
	R2ScoreKey = "metrics.r2_score"

	// IterationKey records the boosting round.
	IterationKey = "training.iteration"

	// BestIterationKey records the best boosting round seen so far.
	BestIterationKey = "training.best_iteration"

	// TrialKey numbers hyperparameter search candidates.
	TrialKey = "tuning.trial"

	// LearningRateKey records the shrinkage rate.
	LearningRateKey = "hyperparams.learning_rate"

	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// ConfigPathKey is the configuration file in use.
	ConfigPathKey = "config.path"
)

// Prediction and serving
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"

	// HorizonKey is the number of steps in a recursive forecast.
	HorizonKey = "preds.horizon"

	// HTTPMethodKey, HTTPPathKey and HTTPStatusKey describe served requests.
	HTTPMethodKey = "http.method"
	HTTPPathKey   = "http.path"
	HTTPStatusKey = "http.status"
)

// Errors
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationForecast  = "forecast"
	OperationTune      = "tune"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
