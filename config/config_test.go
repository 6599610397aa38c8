package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.Data.FileType)
	assert.Equal(t, time.Hour, cfg.Data.Frequency)
	assert.Equal(t, 5*time.Minute, cfg.Serving.ReloadInterval)
	assert.Equal(t, "aep_mw", cfg.Data.RenameMap["AEP_MW"])
	assert.True(t, filepath.IsAbs(cfg.Paths.Raw))
	assert.Equal(t, []int{24}, cfg.Features.Lags)
	assert.Len(t, cfg.Tuning.SearchSpace.MaxDepth, 3)
	require.Len(t, cfg.Validation.Columns, 2)
	require.NotNil(t, cfg.Validation.Columns[1].Min)
	assert.Equal(t, 0.0, *cfg.Validation.Columns[1].Min)
	assert.Equal(t, "iqr", cfg.Cleaning.Columns["aep_mw"].OutlierDetection)
}

func TestDefaultsFillMissingSections(t *testing.T) {
	path := writeConfig(t, "paths:\n  root: /srv/forecast\nmetadata:\n  pipeline_version: \"2\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/forecast/data/raw", cfg.Paths.Raw)
	assert.Equal(t, "/srv/forecast/models", cfg.Paths.Models)
	assert.Equal(t, "file:///srv/forecast/output/runs.jsonl", cfg.Logging.TrackingURI)
	assert.Equal(t, 100, cfg.Training.NEstimators)
	assert.Equal(t, "mean", cfg.Cleaning.Columns["aep_mw"].MissingValue)
	assert.Equal(t, "datetime_features", cfg.Preprocessing.Columns["datetime"].FeatureExtraction)
	assert.Equal(t, 25, cfg.Lookback())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		var le *LoadError
		require.True(t, errors.As(err, &le))
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := Load(writeConfig(t, "paths: [unclosed\n"))
		var le *LoadError
		require.True(t, errors.As(err, &le))
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Load(writeConfig(t, "data:\n  fil_type: csv\n"))
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.NotEmpty(t, ve.Path)
	})

	t.Run("every violation listed", func(t *testing.T) {
		path := writeConfig(t, `
data:
  file_type: txt
  split_ratio: 1.5
training:
  eval_metric: logloss
  n_estimators: 0
`)
		_, err := Load(path)
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Len(t, ve.Violations, 4)
		assert.Contains(t, err.Error(), "data.file_type")
		assert.Contains(t, err.Error(), "training.eval_metric")
	})

	t.Run("tuning needs folds", func(t *testing.T) {
		path := writeConfig(t, "data:\n  cv: 1\nhyperparameter_tuning:\n  tuning_enabled: true\n  strategy: random\n  n_iter: 0\n")
		_, err := Load(path)
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Len(t, ve.Violations, 2)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GBF_LOG_LEVEL", "DEBUG")
	t.Setenv("GBF_SERVING_ADDR", ":9999")
	t.Setenv("GBF_TRACKING_URI", "postgres://u:p@localhost/runs")

	cfg, err := Load(writeConfig(t, "environment:\n  mode: production\n"))
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, ":9999", cfg.Serving.Addr)
	assert.Equal(t, "postgres://u:p@localhost/runs", cfg.Logging.TrackingURI)
}

func TestDotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, "{}\n")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte("GBF_ENV=staging\n"), 0o644))
	t.Setenv("GBF_ENV", "")
	os.Unsetenv("GBF_ENV")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment.Mode)
}

func TestMalformedDotEnvWarns(t *testing.T) {
	logger := log.UseTestProvider(t, log.LevelInfo)
	path := writeConfig(t, "{}\n")
	envFile := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GBF_ENV=\"staging\n"), 0o644))

	_, err := Load(path)
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Failed to load .env file"))
	assert.True(t, logger.ContainsField(log.FilePathKey, envFile))
}

func TestLogOptions(t *testing.T) {
	cfg := Default()
	cfg.applyCollectionDefaults()
	cfg.Logging.Level = "WARNING"
	opts, err := cfg.LogOptions()
	require.NoError(t, err)
	assert.Equal(t, log.LevelWarn, opts.Level)
	assert.Equal(t, log.LevelWarn, opts.ConsoleLevel)
	require.NotNil(t, opts.File)
	assert.Equal(t, log.LevelDebug, opts.File.Level)
	assert.Equal(t, 5, opts.File.BackupCount)
}
