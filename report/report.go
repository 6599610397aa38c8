// Package report writes the evaluation summary of a training run and its
// diagnostic plots.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
	"github.com/YuminosukeSato/gbforecast/tuning"
)

// Metadata describes the pipeline that produced the run.
type Metadata struct {
	Description     string `json:"description"`
	PipelineVersion string `json:"pipeline_version"`
	ModelType       string `json:"model_type"`
	Environment     string `json:"environment,omitempty"`
}

// Samples counts the rows used for fitting and evaluation.
type Samples struct {
	Train      int `json:"train"`
	Validation int `json:"validation"`
	Features   int `json:"features"`
}

// Report is the evaluation summary written after training.
type Report struct {
	RunID             string               `json:"run_id"`
	GeneratedAt       time.Time            `json:"generated_at"`
	Metadata          Metadata             `json:"metadata"`
	Params            gbt.Params           `json:"params"`
	Samples           Samples              `json:"samples"`
	TrainMetrics      map[string]float64   `json:"train_metrics"`
	ValidationMetrics map[string]float64   `json:"validation_metrics"`
	BestIteration     int                  `json:"best_iteration"`
	NumTrees          int                  `json:"num_trees"`
	History           map[string][]float64 `json:"history,omitempty"`
	FeatureImportance []gbt.FeatureScore   `json:"feature_importance,omitempty"`
	Tuning            *tuning.Result       `json:"tuning,omitempty"`
	Plots             []string             `json:"plots,omitempty"`
}

// FileName is the report's file name inside the output directory.
func (r *Report) FileName() string {
	if r.RunID == "" {
		return "evaluation_report.json"
	}
	return fmt.Sprintf("evaluation_report_%s.json", r.RunID)
}

// Write stores the report as indented JSON in dir and returns its path.
func (r *Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output dir %s", dir)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode report")
	}
	path := filepath.Join(dir, r.FileName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write report %s", path)
	}
	log.GetLoggerWithName("report").Info("Saved evaluation report", log.FilePathKey, path, log.RunIDKey, r.RunID)
	return path, nil
}

// Read loads a report written by Write.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("report", path)
		}
		return nil, errors.Wrapf(err, "read report %s", path)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "decode report %s", path)
	}
	return &r, nil
}
