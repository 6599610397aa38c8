package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config/config.yaml"

// LoadError is returned when the config file cannot be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config: failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidationError lists every violated field of a parsed config.
type ValidationError struct {
	Path       string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s is invalid: %s", e.Path, strings.Join(e.Violations, "; "))
}

// Load reads path, applies defaults, environment overrides and path resolution,
// then validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(&LoadError{Path: path, Err: err})
	}

	loadDotEnv(filepath.Dir(path))

	cfg, err := Parse(data)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Path = path
			return nil, err
		}
		return nil, errors.WithStack(&LoadError{Path: path, Err: err})
	}
	cfg.File = path
	return cfg, nil
}

// Parse decodes YAML bytes into a validated Config. Relative paths are
// resolved against paths.root or, when unset, the working directory.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			return nil, errors.WithStack(&ValidationError{Violations: []string{err.Error()}})
		}
		return nil, err
	}
	cfg.applyCollectionDefaults()
	cfg.applyEnv()
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(dir string) {
	for _, candidate := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(candidate); err == nil {
			// existing variables win over the file
			if err := godotenv.Load(candidate); err != nil {
				log.GetLoggerWithName("config").Warn("Failed to load .env file", err, log.FilePathKey, candidate)
			}
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GBF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GBF_TRACKING_URI"); v != "" {
		c.Logging.TrackingURI = v
	}
	if v := os.Getenv("GBF_SERVING_ADDR"); v != "" {
		c.Serving.Addr = v
	}
	if v := os.Getenv("GBF_ENV"); v != "" {
		c.Environment.Mode = v
	}
	if v := os.Getenv("GBF_S3_BUCKET"); v != "" {
		c.Artifacts.S3.Bucket = v
	}
	c.Artifacts.S3.AccessKeyID = os.Getenv("GBF_S3_ACCESS_KEY_ID")
	c.Artifacts.S3.SecretAccessKey = os.Getenv("GBF_S3_SECRET_ACCESS_KEY")
}

func (c *Config) resolvePaths() error {
	root := c.Paths.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "resolve working directory")
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrapf(err, "resolve paths.root %q", root)
	}
	c.Paths.Root = abs

	for _, p := range []*string{
		&c.Paths.Data, &c.Paths.Raw, &c.Paths.Processed, &c.Paths.Output,
		&c.Paths.Models, &c.Paths.Logs, &c.Logging.Handlers.File.Filename,
		&c.Serving.InferenceFile,
	} {
		*p = c.Resolve(*p)
	}
	if strings.HasPrefix(c.Logging.TrackingURI, "file://") {
		c.Logging.TrackingURI = "file://" + c.Resolve(strings.TrimPrefix(c.Logging.TrackingURI, "file://"))
	}
	return nil
}

// Resolve makes p absolute relative to paths.root.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

var (
	fileTypes   = set("csv", "json", "parquet", "xlsx", "auto")
	evalMetrics = set("rmse", "mae", "mape", "mse", "r2")
	treeMethods = set("hist", "exact")
	objectives  = set("regression", "regression_l1", "huber")
	strategies  = set("grid", "random")
	kinds       = set("datetime", "float", "text")
)

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func keys(m map[string]bool) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, "|")
}

// Validate checks the whole configuration and reports every violation at once.
func (c *Config) Validate() error {
	var v []string
	add := func(format string, args ...interface{}) {
		v = append(v, fmt.Sprintf(format, args...))
	}

	if c.Paths.Raw == "" {
		add("paths.raw is required")
	}
	if c.Paths.Models == "" {
		add("paths.models is required")
	}
	if c.Paths.Output == "" {
		add("paths.output is required")
	}

	if !fileTypes[c.Data.FileType] {
		add("data.file_type must be one of %s, got %q", keys(fileTypes), c.Data.FileType)
	}
	if c.Data.Lazy && c.Data.ChunkSize <= 0 {
		add("data.chunk_size must be > 0 when data.lazy is set, got %d", c.Data.ChunkSize)
	}
	if c.Data.SplitRatio <= 0 || c.Data.SplitRatio >= 1 {
		add("data.split_ratio must be in (0, 1), got %g", c.Data.SplitRatio)
	}
	if c.Data.CV < 0 {
		add("data.cv must be >= 0, got %d", c.Data.CV)
	}
	if c.Data.CVGap < 0 {
		add("data.cv_gap must be >= 0, got %d", c.Data.CVGap)
	}
	if c.Data.MaxRows < 0 {
		add("data.max_rows must be >= 0, got %d", c.Data.MaxRows)
	}
	if c.Data.TimeColumn == "" {
		add("data.time_column is required")
	}
	if c.Data.Target == "" {
		add("data.target is required")
	}
	if c.Data.Frequency < 0 {
		add("data.frequency must not be negative")
	}

	for i, col := range c.Validation.Columns {
		if col.Name == "" {
			add("validation.columns[%d].name is required", i)
		}
		if !kinds[col.Kind] {
			add("validation.columns[%d].kind must be one of %s, got %q", i, keys(kinds), col.Kind)
		}
		if col.Min != nil && col.Max != nil && *col.Min > *col.Max {
			add("validation.columns[%d] has min > max", i)
		}
	}

	for _, l := range c.Features.Lags {
		if l <= 0 {
			add("features.lags must be positive, got %d", l)
		}
	}
	for _, w := range c.Features.RollingWindows {
		if w < 2 {
			add("features.rolling_windows must be >= 2, got %d", w)
		}
	}

	t := c.Training
	if t.NEstimators <= 0 {
		add("training.n_estimators must be > 0, got %d", t.NEstimators)
	}
	if t.EarlyStopping < 0 {
		add("training.early_stopping must be >= 0, got %d", t.EarlyStopping)
	}
	if !evalMetrics[t.EvalMetric] {
		add("training.eval_metric must be one of %s, got %q", keys(evalMetrics), t.EvalMetric)
	}
	if !treeMethods[t.TreeMethod] {
		add("training.tree_method must be one of %s, got %q", keys(treeMethods), t.TreeMethod)
	}
	if !objectives[t.Objective] {
		add("training.objective must be one of %s, got %q", keys(objectives), t.Objective)
	}
	if t.LearningRate <= 0 {
		add("training.learning_rate must be > 0, got %g", t.LearningRate)
	}
	if t.NumLeaves < 2 {
		add("training.num_leaves must be >= 2, got %d", t.NumLeaves)
	}
	if t.MinChildSamples < 1 {
		add("training.min_child_samples must be >= 1, got %d", t.MinChildSamples)
	}
	if t.MinChildWeight < 0 {
		add("training.min_child_weight must be >= 0, got %g", t.MinChildWeight)
	}
	if t.Subsample <= 0 || t.Subsample > 1 {
		add("training.subsample must be in (0, 1], got %g", t.Subsample)
	}
	if t.ColsampleBytree <= 0 || t.ColsampleBytree > 1 {
		add("training.colsample_bytree must be in (0, 1], got %g", t.ColsampleBytree)
	}
	if t.RegAlpha < 0 || t.RegLambda < 0 || t.Gamma < 0 {
		add("training.reg_alpha, reg_lambda and gamma must be >= 0")
	}
	if t.MaxBin < 2 {
		add("training.max_bin must be >= 2, got %d", t.MaxBin)
	}
	if t.Objective == "huber" && t.HuberDelta <= 0 {
		add("training.huber_delta must be > 0, got %g", t.HuberDelta)
	}

	if c.Tuning.TuningEnabled {
		if !strategies[c.Tuning.Strategy] {
			add("hyperparameter_tuning.strategy must be one of %s, got %q", keys(strategies), c.Tuning.Strategy)
		}
		if c.Tuning.Strategy == "random" && c.Tuning.NIter <= 0 {
			add("hyperparameter_tuning.n_iter must be > 0 for random search, got %d", c.Tuning.NIter)
		}
		if c.Data.CV < 2 {
			add("data.cv must be >= 2 when tuning is enabled, got %d", c.Data.CV)
		}
		s := c.Tuning.SearchSpace
		for _, x := range s.LearningRate {
			if x <= 0 {
				add("search_space.learning_rate values must be > 0, got %g", x)
			}
		}
		for _, x := range append(append([]float64{}, s.Subsample...), s.ColsampleBytree...) {
			if x <= 0 || x > 1 {
				add("search_space.subsample/colsample_bytree values must be in (0, 1], got %g", x)
			}
		}
		for _, x := range append(append(append([]float64{}, s.Gamma...), s.RegAlpha...), s.RegLambda...) {
			if x < 0 {
				add("search_space.gamma/reg_alpha/reg_lambda values must be >= 0, got %g", x)
			}
		}
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level %q is not a log level", c.Logging.Level)
	}
	if c.Logging.Handlers.File.Filename != "" {
		if _, err := log.ParseLevel(c.Logging.Handlers.File.Level); err != nil {
			add("logging.handlers.file.level %q is not a log level", c.Logging.Handlers.File.Level)
		}
	}
	if c.Logging.EnableTracking && c.Logging.TrackingURI == "" {
		add("logging.tracking_uri is required when tracking is enabled")
	}

	if c.Metadata.PipelineVersion == "" {
		add("metadata.pipeline_version is required")
	} else if strings.ContainsAny(c.Metadata.PipelineVersion, `/\`) {
		add("metadata.pipeline_version must not contain path separators")
	}

	if c.Serving.MaxHorizon <= 0 {
		add("serving.max_horizon must be > 0, got %d", c.Serving.MaxHorizon)
	}
	if c.Serving.ReloadInterval < 0 {
		add("serving.reload_interval must not be negative")
	}

	if len(v) > 0 {
		return errors.WithStack(&ValidationError{Path: c.File, Violations: v})
	}
	return nil
}

// LogOptions translates the logging section into pkg/log options.
func (c *Config) LogOptions() (log.Options, error) {
	level, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.Options{}, err
	}
	// logging.level gates every record, as in a root logger; the file handler
	// may filter further.
	opts := log.Options{
		AppName:      c.Logging.AppName,
		Level:        level,
		Console:      c.Logging.LogToConsole,
		ConsoleLevel: level,
	}
	fh := c.Logging.Handlers.File
	if fh.Filename != "" {
		fileLevel, err := log.ParseLevel(fh.Level)
		if err != nil {
			return log.Options{}, err
		}
		opts.File = &log.FileOptions{
			Filename:    fh.Filename,
			Level:       fileLevel,
			MaxBytes:    fh.MaxBytes,
			BackupCount: fh.BackupCount,
		}
	}
	return opts, nil
}
