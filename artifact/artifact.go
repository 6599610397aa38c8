// Package artifact persists trained models together with the fitted state
// needed to reproduce their inputs at inference time.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/gbforecast/core/model"
	"github.com/YuminosukeSato/gbforecast/features"
	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
	"github.com/YuminosukeSato/gbforecast/preprocessing"
)

// Metadata describes how and when a bundle was produced.
type Metadata struct {
	PipelineVersion string             `json:"pipeline_version"`
	ModelType       string             `json:"model_type"`
	Description     string             `json:"description,omitempty"`
	TrainedAt       time.Time          `json:"trained_at"`
	RunID           string             `json:"run_id,omitempty"`
	Target          string             `json:"target"`
	TimeColumn      string             `json:"time_column"`
	Frequency       time.Duration      `json:"frequency,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// Bundle is everything inference needs.
type Bundle struct {
	Metadata      Metadata             `json:"metadata"`
	Model         *gbt.Model           `json:"model"`
	FeatureNames  []string             `json:"feature_names"`
	Preprocessing *preprocessing.State `json:"preprocessing"`
	Features      features.State       `json:"features"`
}

// FileName is the artifact file name for a pipeline version.
func FileName(version string) string {
	return fmt.Sprintf("model_%s.json.sz", version)
}

// Path joins dir and the artifact file name for version.
func Path(dir, version string) string {
	return filepath.Join(dir, FileName(version))
}

// Save writes b to dir, named after its pipeline version.
func Save(dir string, b *Bundle) (string, error) {
	if b.Model == nil {
		return "", errors.NewModelError("artifact.Save", "bundle has no model", errors.ErrEmptyData)
	}
	if b.Metadata.PipelineVersion == "" {
		return "", errors.NewValidationError("pipeline_version", "must not be empty", "")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create model dir %s", dir)
	}
	path := Path(dir, b.Metadata.PipelineVersion)
	if err := model.SaveModel(b, path); err != nil {
		return "", err
	}
	log.GetLoggerWithName("artifact").Info("Saved model artifact",
		log.FilePathKey, path, log.ModelVersionKey, b.Metadata.PipelineVersion, log.FeaturesKey, len(b.FeatureNames))
	return path, nil
}

// Load reads the artifact for version from dir. A missing file is a
// NotFoundError.
func Load(dir, version string) (*Bundle, error) {
	path := Path(dir, version)
	var b Bundle
	if err := model.LoadModel(&b, path); err != nil {
		return nil, err
	}
	if b.Model == nil {
		return nil, errors.NewModelError("artifact.Load", "artifact has no model", errors.ErrEmptyData)
	}
	if len(b.FeatureNames) != b.Model.NumFeatures {
		return nil, errors.NewDimensionError("artifact.Load", b.Model.NumFeatures, len(b.FeatureNames), 1)
	}
	log.GetLoggerWithName("artifact").Info("Loaded model artifact",
		log.FilePathKey, path, log.ModelVersionKey, b.Metadata.PipelineVersion)
	return &b, nil
}

// ModTime reports when the artifact for version was last written.
func ModTime(dir, version string) (time.Time, error) {
	info, err := os.Stat(Path(dir, version))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, errors.NewNotFoundError("model artifact", Path(dir, version))
		}
		return time.Time{}, errors.Wrap(err, "stat model artifact")
	}
	return info.ModTime(), nil
}

// Regressor wraps the bundled model.
func (b *Bundle) Regressor() *gbt.Regressor {
	r := gbt.FromModel(b.Model)
	r.FeatureNames = b.FeatureNames
	return r
}
