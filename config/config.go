// Package config loads and validates the YAML file that drives every pipeline
// command.
package config

import (
	"time"
)

// Config is the root of config/config.yaml.
type Config struct {
	Paths         PathsConfig         `yaml:"paths"`
	Data          DataConfig          `yaml:"data"`
	Validation    ValidationConfig    `yaml:"validation"`
	Cleaning      CleaningConfig      `yaml:"cleaning"`
	Preprocessing PreprocessingConfig `yaml:"preprocessing"`
	Features      FeaturesConfig      `yaml:"features"`
	Training      TrainingConfig      `yaml:"training"`
	Tuning        TuningConfig        `yaml:"hyperparameter_tuning"`
	Logging       LoggingConfig       `yaml:"logging"`
	Environment   EnvironmentConfig   `yaml:"environment"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Serving       ServingConfig       `yaml:"serving"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`

	// File is the path the config was loaded from.
	File string `yaml:"-"`
}

// PathsConfig lists the directories the pipeline reads and writes. Relative
// entries are resolved against Root.
type PathsConfig struct {
	Root      string `yaml:"root"`
	Data      string `yaml:"data"`
	Raw       string `yaml:"raw"`
	Processed string `yaml:"processed"`
	Output    string `yaml:"output"`
	Models    string `yaml:"models"`
	Logs      string `yaml:"logs"`
}

// DataConfig controls ingestion and splitting.
type DataConfig struct {
	FileType   string            `yaml:"file_type"`
	Lazy       bool              `yaml:"lazy"`
	ChunkSize  int               `yaml:"chunk_size"`
	SplitRatio float64           `yaml:"split_ratio"`
	Shuffle    bool              `yaml:"shuffle"`
	CV         int               `yaml:"cv"`
	CVGap      int               `yaml:"cv_gap"`
	MaxRows    int               `yaml:"max_rows"`
	TimeColumn string            `yaml:"time_column"`
	Target     string            `yaml:"target"`
	RenameMap  map[string]string `yaml:"rename_map"`
	// Frequency is the sampling interval used for multi-step forecasts; empty
	// means infer it from the data.
	Frequency time.Duration `yaml:"frequency"`
}

// ColumnRule is one required column of the validation schema.
type ColumnRule struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Nullable bool     `yaml:"nullable"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
}

// ValidationConfig is the schema checked after cleaning.
type ValidationConfig struct {
	Columns     []ColumnRule `yaml:"columns"`
	Monotonic   bool         `yaml:"monotonic"`
	UniqueIndex bool         `yaml:"unique_index"`
}

// ColumnCleaning names the strategies applied to one column.
type ColumnCleaning struct {
	MissingValue     string `yaml:"missing_value"`
	OutlierDetection string `yaml:"outlier_detection"`
}

// CleaningConfig is the cleaning plan.
type CleaningConfig struct {
	DropDuplicates bool                      `yaml:"drop_duplicates"`
	Columns        map[string]ColumnCleaning `yaml:"columns"`
}

// ColumnPreprocessing names the strategies applied to one column.
type ColumnPreprocessing struct {
	Scaling           string `yaml:"scaling"`
	Encoding          string `yaml:"encoding"`
	Transformation    string `yaml:"transformation"`
	FeatureExtraction string `yaml:"feature_extraction"`
}

// PreprocessingConfig is the preprocessing plan.
type PreprocessingConfig struct {
	Columns map[string]ColumnPreprocessing `yaml:"columns"`
}

// FeaturesConfig configures feature engineering.
type FeaturesConfig struct {
	Lags           []int  `yaml:"lags"`
	RollingWindows []int  `yaml:"rolling_windows"`
	HolidayCountry string `yaml:"holiday_country"`
	DropNA         bool   `yaml:"drop_na"`
	OutlierFlag    bool   `yaml:"outlier_flag"`
}

// TrainingConfig holds boosting hyperparameters.
type TrainingConfig struct {
	RandomSeed      uint64  `yaml:"random_seed"`
	EarlyStopping   int     `yaml:"early_stopping"`
	EvalMetric      string  `yaml:"eval_metric"`
	NJobs           int     `yaml:"n_jobs"`
	NEstimators     int     `yaml:"n_estimators"`
	Verbosity       int     `yaml:"verbosity"`
	TreeMethod      string  `yaml:"tree_method"`
	Objective       string  `yaml:"objective"`
	LearningRate    float64 `yaml:"learning_rate"`
	NumLeaves       int     `yaml:"num_leaves"`
	MaxDepth        int     `yaml:"max_depth"`
	MinChildSamples int     `yaml:"min_child_samples"`
	MinChildWeight  float64 `yaml:"min_child_weight"`
	Subsample       float64 `yaml:"subsample"`
	SubsampleFreq   int     `yaml:"subsample_freq"`
	ColsampleBytree float64 `yaml:"colsample_bytree"`
	RegAlpha        float64 `yaml:"reg_alpha"`
	RegLambda       float64 `yaml:"reg_lambda"`
	Gamma           float64 `yaml:"gamma"`
	MaxBin          int     `yaml:"max_bin"`
	HuberDelta      float64 `yaml:"huber_delta"`
	// TimeLimit stops boosting early when exceeded; zero disables it.
	TimeLimit time.Duration `yaml:"time_limit"`
}

// SearchSpace lists candidate values per hyperparameter. Empty lists keep the
// training value.
type SearchSpace struct {
	Gamma           []float64 `yaml:"gamma"`
	RegAlpha        []float64 `yaml:"reg_alpha"`
	RegLambda       []float64 `yaml:"reg_lambda"`
	LearningRate    []float64 `yaml:"learning_rate"`
	MaxDepth        []int     `yaml:"max_depth"`
	MinChildWeight  []float64 `yaml:"min_child_weight"`
	Subsample       []float64 `yaml:"subsample"`
	ColsampleBytree []float64 `yaml:"colsample_bytree"`
}

// TuningConfig configures hyperparameter search.
type TuningConfig struct {
	TuningEnabled bool        `yaml:"tuning_enabled"`
	Strategy      string      `yaml:"strategy"`
	NIter         int         `yaml:"n_iter"`
	SearchSpace   SearchSpace `yaml:"search_space"`
}

// FileHandlerConfig configures the rotating log file.
type FileHandlerConfig struct {
	Level       string `yaml:"level"`
	Filename    string `yaml:"filename"`
	MaxBytes    int64  `yaml:"max_bytes"`
	BackupCount int    `yaml:"backup_count"`
}

// HandlersConfig groups log sinks.
type HandlersConfig struct {
	File FileHandlerConfig `yaml:"file"`
}

// LoggingConfig configures logging and run tracking.
type LoggingConfig struct {
	AppName              string         `yaml:"app_name"`
	LogToConsole         bool           `yaml:"log_to_console"`
	EnableTracking       bool           `yaml:"enable_tracking"`
	TrackingURI          string         `yaml:"tracking_uri"`
	LogFeatureImportance bool           `yaml:"log_feature_importance"`
	SaveMetrics          bool           `yaml:"save_metrics"`
	Level                string         `yaml:"level"`
	Handlers             HandlersConfig `yaml:"handlers"`
}

// EnvironmentConfig describes where the pipeline runs.
type EnvironmentConfig struct {
	Mode string `yaml:"mode"`
}

// MetadataConfig is copied into artifacts and reports.
type MetadataConfig struct {
	Description     string `yaml:"description"`
	PipelineVersion string `yaml:"pipeline_version"`
	ModelType       string `yaml:"model_type"`
}

// ServingConfig configures the HTTP API.
type ServingConfig struct {
	Addr           string        `yaml:"addr"`
	InferenceFile  string        `yaml:"inference_file"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxHorizon     int           `yaml:"max_horizon"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// S3Config points at S3-compatible object storage. Credentials come from the
// environment.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// ArtifactsConfig configures artifact replication.
type ArtifactsConfig struct {
	S3 S3Config `yaml:"s3"`
}

// Default returns a configuration for the AEP hourly dataset.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Data:      "data",
			Raw:       "data/raw",
			Processed: "data/processed",
			Output:    "output",
			Models:    "models",
			Logs:      "logs",
		},
		Data: DataConfig{
			FileType:   "csv",
			ChunkSize:  10000,
			SplitRatio: 0.8,
			CV:         5,
			TimeColumn: "datetime",
			Target:     "aep_mw",
		},
		Validation: ValidationConfig{
			Monotonic:   true,
			UniqueIndex: true,
		},
		Cleaning: CleaningConfig{
			DropDuplicates: true,
		},
		Features: FeaturesConfig{
			HolidayCountry: "US",
			DropNA:         true,
			OutlierFlag:    true,
		},
		Training: TrainingConfig{
			RandomSeed:      42,
			EarlyStopping:   10,
			EvalMetric:      "rmse",
			NJobs:           -1,
			NEstimators:     100,
			Verbosity:       1,
			TreeMethod:      "hist",
			Objective:       "regression",
			LearningRate:    0.1,
			NumLeaves:       31,
			MaxDepth:        -1,
			MinChildSamples: 20,
			MinChildWeight:  1e-3,
			Subsample:       1.0,
			ColsampleBytree: 1.0,
			RegLambda:       1.0,
			MaxBin:          255,
			HuberDelta:      1.0,
		},
		Tuning: TuningConfig{
			Strategy: "grid",
			NIter:    10,
		},
		Logging: LoggingConfig{
			AppName:      "gbforecast",
			LogToConsole: true,
			TrackingURI:  "file://output/runs.jsonl",
			SaveMetrics:  true,
			Level:        "INFO",
			Handlers: HandlersConfig{File: FileHandlerConfig{
				Level:       "DEBUG",
				Filename:    "logs/app.log",
				MaxBytes:    10 << 20,
				BackupCount: 5,
			}},
		},
		Environment: EnvironmentConfig{Mode: "development"},
		Metadata: MetadataConfig{
			Description:     "Hourly energy consumption forecasting",
			PipelineVersion: "1.0.0",
			ModelType:       "gbt",
		},
		Serving: ServingConfig{
			Addr:           ":8000",
			InferenceFile:  "data/processed/AEP_hourly.csv",
			AllowedOrigins: []string{"*"},
			MaxHorizon:     168,
			ShutdownGrace:  10 * time.Second,
		},
	}
}

// applyCollectionDefaults fills maps and lists the file left unset. They are
// not part of Default so a configured map replaces, rather than merges with,
// the defaults.
func (c *Config) applyCollectionDefaults() {
	if c.Data.RenameMap == nil {
		c.Data.RenameMap = map[string]string{"Datetime": "datetime", "AEP_MW": "aep_mw"}
	}
	if c.Validation.Columns == nil {
		zero := 0.0
		c.Validation.Columns = []ColumnRule{
			{Name: c.Data.TimeColumn, Kind: "datetime"},
			{Name: c.Data.Target, Kind: "float", Min: &zero},
		}
	}
	if c.Cleaning.Columns == nil {
		c.Cleaning.Columns = map[string]ColumnCleaning{
			c.Data.Target: {MissingValue: "mean", OutlierDetection: "iqr"},
		}
	}
	if c.Preprocessing.Columns == nil {
		c.Preprocessing.Columns = map[string]ColumnPreprocessing{
			c.Data.TimeColumn: {FeatureExtraction: "datetime_features"},
		}
	}
	if c.Features.Lags == nil {
		c.Features.Lags = []int{24}
	}
	if c.Features.RollingWindows == nil {
		c.Features.RollingWindows = []int{24}
	}
}

// Lookback is the number of trailing observations feature engineering needs to
// compute lag and rolling features for the next row.
func (c *Config) Lookback() int {
	n := 1
	for _, l := range c.Features.Lags {
		if l > n {
			n = l
		}
	}
	for _, w := range c.Features.RollingWindows {
		if w+1 > n {
			n = w + 1
		}
	}
	return n
}
