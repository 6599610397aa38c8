// Package pipeline wires ingestion, cleaning, validation, preprocessing,
// feature engineering, training and inference into the commands the CLI and
// HTTP server run.
package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Stage names.
const (
	StageIngestion          = "ingestion"
	StageCleaning           = "cleaning"
	StageValidation         = "validation"
	StagePreprocessing      = "preprocessing"
	StageFeatureEngineering = "feature_engineering"
)

// StageFunc transforms one frame.
type StageFunc func(ctx context.Context, f *frame.Frame) (*frame.Frame, error)

// previewRows is how many rows each stage logs after it finishes.
const previewRows = 5

// RunStage runs fn as the named stage. Failures and panics are wrapped with the
// stage name and the head of the output is logged at debug level.
func RunStage(ctx context.Context, name string, f *frame.Frame, fn StageFunc) (out *frame.Frame, err error) {
	logger := log.GetLoggerWithName("pipeline").With(log.StageKey, name)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "stage %s", name)
	}
	defer func() {
		if err != nil {
			err = errors.Wrapf(err, "stage %s", name)
			logger.Error("Stage failed", err)
		}
	}()
	defer errors.Recover(&err, name)

	start := time.Now()
	out, err = fn(ctx, f)
	if err != nil {
		return nil, err
	}
	logger.Info("Stage completed",
		log.SamplesKey, out.Len(),
		log.ColumnsKey, len(out.Names()),
		log.DurationMsKey, time.Since(start).Milliseconds())
	if logger.Enabled(ctx, log.LevelDebug) {
		logger.Debug("Stage output preview", log.PreviewKey, out.Render(previewRows))
	}
	return out, nil
}
