package pipeline

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/YuminosukeSato/gbforecast/artifact"
	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/ingest"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Prediction is one predicted value at a timestamp.
type Prediction struct {
	Time  time.Time `json:"timestamp"`
	Value float64   `json:"prediction"`
}

// Predictor serves a loaded artifact. It is safe for concurrent use; each
// call builds its own data stages from the stored state.
type Predictor struct {
	cfg    *config.Config
	bundle *artifact.Bundle
	reg    *gbt.Regressor
	logger log.Logger
}

// NewPredictor wraps a loaded bundle.
func NewPredictor(cfg *config.Config, b *artifact.Bundle) *Predictor {
	return &Predictor{
		cfg:    cfg,
		bundle: b,
		reg:    b.Regressor(),
		logger: log.GetLoggerWithName("pipeline.inference"),
	}
}

// LoadPredictor loads the artifact of the configured pipeline version.
func LoadPredictor(cfg *config.Config) (*Predictor, error) {
	b, err := artifact.Load(cfg.Paths.Models, cfg.Metadata.PipelineVersion)
	if err != nil {
		return nil, err
	}
	return NewPredictor(cfg, b), nil
}

// Bundle returns the served artifact.
func (p *Predictor) Bundle() *artifact.Bundle { return p.bundle }

// ReadInput reads a single input file, typed by its extension.
func ReadInput(ctx context.Context, path string) (*frame.Frame, error) {
	ft := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return ingest.ReadFile(ctx, path, ft)
}

// PredictFile runs inference over the file at path.
func (p *Predictor) PredictFile(ctx context.Context, path string) ([]Prediction, error) {
	raw, err := ReadInput(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s", StageIngestion)
	}
	return p.PredictFrame(ctx, raw)
}

// PredictFrame runs the data stages over raw with the fitted state and
// predicts every surviving row. A model feature missing from the engineered
// frame is a SchemaError.
func (p *Predictor) PredictFrame(ctx context.Context, raw *frame.Frame) ([]Prediction, error) {
	start := time.Now()
	data, err := NewInferenceData(p.cfg, p.bundle)
	if err != nil {
		return nil, err
	}
	table, err := data.Process(ctx, raw)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, errors.NewValueError("PredictFrame", "no rows left to predict after the data stages")
	}
	X, err := table.Matrix(p.bundle.FeatureNames)
	if err != nil {
		return nil, err
	}
	values, err := p.reg.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(values))
	idx := table.Index()
	for i, v := range values {
		out[i] = Prediction{Value: v}
		if idx != nil {
			out[i].Time = idx[i]
		}
	}
	p.logger.Info("Inference completed",
		log.PredsKey, len(out), log.DurationMsKey, time.Since(start).Milliseconds(),
		log.ModelVersionKey, p.bundle.Metadata.PipelineVersion)
	return out, nil
}

// Forecast predicts horizon steps past the end of history. Each step appends
// a row at the next timestamp, recomputes features over the trailing window and
// feeds the prediction back as the target for later steps. Predictions are in
// model space, as from PredictFrame; the fed-back value is mapped to raw units
// first so the next step preprocesses it like observed history. Only the
// target and the time index of history are used.
func (p *Predictor) Forecast(ctx context.Context, history *frame.Frame, horizon int) ([]Prediction, error) {
	if horizon <= 0 {
		return nil, errors.NewValidationError("horizon", "must be positive", horizon)
	}
	opts := featureOptions(p.cfg)
	opts.DropNA = false
	data, err := newInferenceData(p.cfg, p.bundle, opts)
	if err != nil {
		return nil, err
	}
	cleaned, err := data.Clean(ctx, history)
	if err != nil {
		return nil, err
	}
	target, timeCol := p.bundle.Metadata.Target, p.bundle.Metadata.TimeColumn
	if target == "" {
		target = p.cfg.Data.Target
	}
	if timeCol == "" {
		timeCol = p.cfg.Data.TimeColumn
	}
	y, ok := cleaned.Float(target)
	if !ok || cleaned.Len() == 0 {
		return nil, errors.NewSchemaError("forecast", []string{target})
	}

	freq := p.bundle.Metadata.Frequency
	if freq == 0 {
		freq = InferFrequency(cleaned.Index())
	}
	if freq <= 0 {
		return nil, errors.NewValueError("Forecast", "cannot infer the series frequency from fewer than two timestamps")
	}

	window := data.eng.Lookback() + 1
	times := append([]time.Time(nil), cleaned.Index()...)
	values := append([]float64(nil), y...)
	out := make([]Prediction, 0, horizon)
	for step := 0; step < horizon; step++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "forecast cancelled")
		}
		next := times[len(times)-1].Add(freq)
		times = append(times, next)
		values = append(values, math.NaN())

		lo := max(0, len(times)-window)
		f := frame.New()
		if err := f.SetIndex(timeCol, times[lo:]); err != nil {
			return nil, err
		}
		if err := f.SetFloat(target, values[lo:]); err != nil {
			return nil, err
		}
		f, err = data.pre.Transform(f)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", StagePreprocessing)
		}
		f, err = data.eng.Transform(f)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", StageFeatureEngineering)
		}
		row := f.Tail(1)
		X, err := row.Matrix(p.bundle.FeatureNames)
		if err != nil {
			return nil, err
		}
		pred, err := p.reg.Predict(X)
		if err != nil {
			return nil, err
		}
		raw, err := data.pre.Inverse(target, pred)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", StagePreprocessing)
		}
		values[len(values)-1] = raw[0]
		out = append(out, Prediction{Time: next, Value: pred[0]})
	}
	p.logger.Info("Forecast completed", log.HorizonKey, horizon, log.ModelVersionKey, p.bundle.Metadata.PipelineVersion)
	return out, nil
}

// ForecastFile forecasts horizon steps past the end of the series in path.
func (p *Predictor) ForecastFile(ctx context.Context, path string, horizon int) ([]Prediction, error) {
	raw, err := ReadInput(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s", StageIngestion)
	}
	return p.Forecast(ctx, raw, horizon)
}
