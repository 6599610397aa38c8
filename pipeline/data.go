package pipeline

import (
	"context"
	"io"

	"github.com/YuminosukeSato/gbforecast/artifact"
	"github.com/YuminosukeSato/gbforecast/clean"
	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/features"
	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/ingest"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
	"github.com/YuminosukeSato/gbforecast/preprocessing"
	"github.com/YuminosukeSato/gbforecast/validate"
)

// Data runs the data stages. A Data built for training fits preprocessing and
// feature state on the first frame it sees; one built from an artifact only
// applies the stored state. A Data value is not safe for concurrent use.
type Data struct {
	cfg       *config.Config
	cleaner   *clean.Cleaner
	validator *validate.Validator
	pre       *preprocessing.Preprocessor
	eng       *features.Engineer
	fit       bool
	logger    log.Logger
}

// NewData creates the data stages for training.
func NewData(cfg *config.Config) (*Data, error) {
	eng, err := features.New(featureOptions(cfg))
	if err != nil {
		return nil, err
	}
	return &Data{
		cfg:       cfg,
		cleaner:   clean.New(cleanOptions(cfg)),
		validator: validate.New(validationSchema(cfg)),
		pre:       preprocessing.New(preprocessingPlan(cfg)),
		eng:       eng,
		fit:       true,
		logger:    log.GetLoggerWithName("pipeline.data"),
	}, nil
}

// NewInferenceData creates the data stages that reuse the fitted state of b.
func NewInferenceData(cfg *config.Config, b *artifact.Bundle) (*Data, error) {
	return newInferenceData(cfg, b, featureOptions(cfg))
}

func newInferenceData(cfg *config.Config, b *artifact.Bundle, opts features.Options) (*Data, error) {
	eng, err := features.NewFromState(opts, b.Features)
	if err != nil {
		return nil, err
	}
	return &Data{
		cfg:       cfg,
		cleaner:   clean.New(cleanOptions(cfg)),
		validator: validate.New(validationSchema(cfg)),
		pre:       preprocessing.NewFromState(preprocessingPlan(cfg), b.Preprocessing),
		eng:       eng,
		logger:    log.GetLoggerWithName("pipeline.data"),
	}, nil
}

// Preprocessing returns the preprocessing state fitted so far.
func (d *Data) Preprocessing() *preprocessing.State { return d.pre.State() }

// Features returns the feature engineering state fitted so far.
func (d *Data) Features() features.State { return d.eng.State() }

// Run reads the configured raw directory and returns the engineered table.
// In lazy mode every chunk passes through all stages before the results are
// concatenated.
func (d *Data) Run(ctx context.Context) (*frame.Frame, error) {
	src, err := ingest.Open(ctx, ingestOptions(d.cfg))
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s", StageIngestion)
	}
	defer src.Close()

	d.cleaner.Reset()
	d.eng.ResetStream()

	var parts []*frame.Frame
	for chunk := 0; ; chunk++ {
		next, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", StageIngestion)
		}
		if next.Len() == 0 {
			continue
		}
		raw, err := RunStage(ctx, StageIngestion, next, func(_ context.Context, f *frame.Frame) (*frame.Frame, error) {
			return f, nil
		})
		if err != nil {
			return nil, err
		}
		d.logger.Debug("Processing chunk", log.ChunkIndexKey, chunk, log.SamplesKey, raw.Len())
		out, err := d.process(ctx, raw, d.cfg.Data.Lazy)
		if err != nil {
			return nil, err
		}
		parts = append(parts, out)
	}
	table, err := frame.Concat(parts...)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, errors.NewValueError("pipeline", "no rows left after the data stages")
	}
	d.logger.Info("Data pipeline completed", log.SamplesKey, table.Len(), log.FeaturesKey, len(table.Names()))
	return table, nil
}

// Process runs cleaning through feature engineering over one in-memory frame.
func (d *Data) Process(ctx context.Context, raw *frame.Frame) (*frame.Frame, error) {
	d.cleaner.Reset()
	d.eng.ResetStream()
	return d.process(ctx, raw, false)
}

// Clean runs only the cleaning and validation stages.
func (d *Data) Clean(ctx context.Context, raw *frame.Frame) (*frame.Frame, error) {
	cleaned, err := RunStage(ctx, StageCleaning, raw, d.cleanStage)
	if err != nil {
		return nil, err
	}
	return RunStage(ctx, StageValidation, cleaned, d.validateStage)
}

func (d *Data) process(ctx context.Context, raw *frame.Frame, stream bool) (*frame.Frame, error) {
	f, err := d.Clean(ctx, raw)
	if err != nil {
		return nil, err
	}
	f, err = RunStage(ctx, StagePreprocessing, f, d.preprocessStage)
	if err != nil {
		return nil, err
	}
	return RunStage(ctx, StageFeatureEngineering, f, func(_ context.Context, f *frame.Frame) (*frame.Frame, error) {
		if d.fit && !d.eng.State().Fitted {
			if err := d.eng.Fit(f); err != nil {
				return nil, err
			}
		}
		if stream {
			return d.eng.TransformChunk(f)
		}
		return d.eng.Transform(f)
	})
}

func (d *Data) cleanStage(_ context.Context, f *frame.Frame) (*frame.Frame, error) {
	out, rep, err := d.cleaner.Clean(f)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Cleaning report",
		"duplicates", rep.Duplicates, "time_duplicates", rep.TimeDuplicates,
		"coerced", rep.Coerced, "outliers", rep.Outliers, "filled", rep.Filled)
	return out, nil
}

func (d *Data) validateStage(_ context.Context, f *frame.Frame) (*frame.Frame, error) {
	if err := d.validator.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (d *Data) preprocessStage(_ context.Context, f *frame.Frame) (*frame.Frame, error) {
	if d.fit && !d.pre.State().Fitted {
		return d.pre.FitTransform(f)
	}
	return d.pre.Transform(f)
}
