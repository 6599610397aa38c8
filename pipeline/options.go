package pipeline

import (
	"sort"
	"time"

	"github.com/YuminosukeSato/gbforecast/clean"
	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/features"
	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/ingest"
	"github.com/YuminosukeSato/gbforecast/preprocessing"
	"github.com/YuminosukeSato/gbforecast/validate"
)

// ParamsFromConfig maps the training section onto boosting parameters.
func ParamsFromConfig(t config.TrainingConfig) gbt.Params {
	return gbt.Params{
		NEstimators:     t.NEstimators,
		LearningRate:    t.LearningRate,
		NumLeaves:       t.NumLeaves,
		MaxDepth:        t.MaxDepth,
		MinChildSamples: t.MinChildSamples,
		MinChildWeight:  t.MinChildWeight,
		RegAlpha:        t.RegAlpha,
		RegLambda:       t.RegLambda,
		Gamma:           t.Gamma,
		Subsample:       t.Subsample,
		SubsampleFreq:   t.SubsampleFreq,
		ColsampleBytree: t.ColsampleBytree,
		MaxBin:          t.MaxBin,
		TreeMethod:      t.TreeMethod,
		Objective:       t.Objective,
		HuberDelta:      t.HuberDelta,
		RandomSeed:      t.RandomSeed,
		NJobs:           t.NJobs,
		Verbosity:       t.Verbosity,
		EarlyStopping:   t.EarlyStopping,
		EvalMetric:      t.EvalMetric,
		TimeLimit:       t.TimeLimit,
	}
}

func ingestOptions(cfg *config.Config) ingest.Options {
	return ingest.Options{
		Dir:       cfg.Paths.Raw,
		FileType:  cfg.Data.FileType,
		Lazy:      cfg.Data.Lazy,
		ChunkSize: cfg.Data.ChunkSize,
		MaxRows:   cfg.Data.MaxRows,
	}
}

func cleanOptions(cfg *config.Config) clean.Options {
	cols := make(map[string]clean.ColumnPlan, len(cfg.Cleaning.Columns))
	for name, c := range cfg.Cleaning.Columns {
		cols[name] = clean.ColumnPlan{MissingValue: c.MissingValue, OutlierDetection: c.OutlierDetection}
	}
	return clean.Options{
		TimeColumn:     cfg.Data.TimeColumn,
		RenameMap:      cfg.Data.RenameMap,
		DropDuplicates: cfg.Cleaning.DropDuplicates,
		Columns:        cols,
	}
}

func validationSchema(cfg *config.Config) validate.Schema {
	rules := make([]validate.Rule, len(cfg.Validation.Columns))
	for i, c := range cfg.Validation.Columns {
		rules[i] = validate.Rule{Name: c.Name, Kind: c.Kind, Nullable: c.Nullable, Min: c.Min, Max: c.Max}
	}
	return validate.Schema{
		Columns:     rules,
		Monotonic:   cfg.Validation.Monotonic,
		UniqueIndex: cfg.Validation.UniqueIndex,
	}
}

func preprocessingPlan(cfg *config.Config) map[string]preprocessing.ColumnPlan {
	plan := make(map[string]preprocessing.ColumnPlan, len(cfg.Preprocessing.Columns))
	for name, c := range cfg.Preprocessing.Columns {
		plan[name] = preprocessing.ColumnPlan{
			Scaling:           c.Scaling,
			Encoding:          c.Encoding,
			Transformation:    c.Transformation,
			FeatureExtraction: c.FeatureExtraction,
		}
	}
	return plan
}

func featureOptions(cfg *config.Config) features.Options {
	return features.Options{
		Target:         cfg.Data.Target,
		TimeColumn:     cfg.Data.TimeColumn,
		Lags:           cfg.Features.Lags,
		RollingWindows: cfg.Features.RollingWindows,
		HolidayCountry: cfg.Features.HolidayCountry,
		DropNA:         cfg.Features.DropNA,
		OutlierFlag:    cfg.Features.OutlierFlag,
	}
}

// FeatureColumns lists the model inputs of an engineered frame: every float
// column except the target, in frame order.
func FeatureColumns(f *frame.Frame, target string) []string {
	var out []string
	for _, name := range f.FloatNames() {
		if name != target {
			out = append(out, name)
		}
	}
	return out
}

// InferFrequency returns the median spacing of a sorted time index, or zero
// when fewer than two distinct timestamps exist.
func InferFrequency(idx []time.Time) time.Duration {
	var diffs []time.Duration
	for i := 1; i < len(idx); i++ {
		if d := idx[i].Sub(idx[i-1]); d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return 0
	}
	sort.Slice(diffs, func(a, b int) bool { return diffs[a] < diffs[b] })
	return diffs[len(diffs)/2]
}
