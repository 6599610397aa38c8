package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/artifact"
	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/ingest"
	"github.com/YuminosukeSato/gbforecast/metrics"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
	"github.com/YuminosukeSato/gbforecast/report"
	"github.com/YuminosukeSato/gbforecast/split"
	"github.com/YuminosukeSato/gbforecast/tracking"
	"github.com/YuminosukeSato/gbforecast/tuning"
)

// topFeatures is how many importances the report and logs keep.
const topFeatures = 20

// TrainResult lists what a training run produced.
type TrainResult struct {
	RunID             string
	Bundle            *artifact.Bundle
	ModelPath         string
	RemoteURI         string
	ReportPath        string
	ProcessedPath     string
	TrainMetrics      map[string]float64
	ValidationMetrics map[string]float64
	Tuning            *tuning.Result
}

// Train runs the training pipeline and records the run in the configured
// tracking store.
func Train(ctx context.Context, cfg *config.Config) (res *TrainResult, err error) {
	logger := log.GetLoggerWithName("pipeline.train")
	params := ParamsFromConfig(cfg.Training)

	store, err := tracking.Open(ctx, cfg.Logging.TrackingURI, cfg.Logging.EnableTracking)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	run := tracking.NewRun(cfg.Logging.AppName, params.GetParams())
	if serr := store.Start(ctx, run); serr != nil {
		logger.Warn("Failed to record run start", serr)
	}
	defer func() {
		if err != nil {
			run.Fail(err)
		}
		if ferr := store.Finish(context.WithoutCancel(ctx), run); ferr != nil {
			logger.Warn("Failed to record run result", ferr)
		}
	}()

	logger = logger.With(log.RunIDKey, run.ID)
	logger.Info("Training pipeline started", log.ConfigPathKey, cfg.File, log.ModelVersionKey, cfg.Metadata.PipelineVersion)

	res, err = train(ctx, cfg, params, run.ID, logger)
	if err != nil {
		return nil, err
	}
	run.Complete(res.ValidationMetrics, res.Bundle.Model.BestIteration, res.ModelPath)
	logger.Info("Training pipeline finished", "model", res.ModelPath)
	return res, nil
}

func train(ctx context.Context, cfg *config.Config, params gbt.Params, runID string, logger log.Logger) (*TrainResult, error) {
	data, err := NewData(cfg)
	if err != nil {
		return nil, err
	}
	table, err := data.Run(ctx)
	if err != nil {
		return nil, err
	}

	target := cfg.Data.Target
	names := FeatureColumns(table, target)
	if len(names) == 0 {
		return nil, errors.NewSchemaError("training", []string{"<feature columns>"})
	}
	trainF, validF, err := split.Frame(table, cfg.Data.SplitRatio, cfg.Data.Shuffle)
	if err != nil {
		return nil, err
	}
	Xtr, ytr, err := design(trainF, names, target)
	if err != nil {
		return nil, err
	}
	Xva, yva, err := design(validF, names, target)
	if err != nil {
		return nil, err
	}
	logger.Info("Split data chronologically",
		"train", trainF.Len(), "validation", validF.Len(), log.FeaturesKey, len(names))

	res := &TrainResult{RunID: runID}
	if cfg.Tuning.TuningEnabled {
		splitter := &split.TimeSeriesSplit{Splits: cfg.Data.CV, Gap: cfg.Data.CVGap}
		searcher := tuning.NewSearcher(params, tuning.SpaceFromConfig(cfg.Tuning.SearchSpace),
			cfg.Tuning.Strategy, cfg.Tuning.NIter, splitter)
		res.Tuning, err = searcher.Search(ctx, Xtr, ytr)
		if err != nil {
			return nil, errors.Wrap(err, "hyperparameter tuning")
		}
		params = res.Tuning.Best
	}

	reg := gbt.NewRegressor(params)
	reg.FeatureNames = names
	if err := reg.FitContext(ctx, Xtr, ytr, &gbt.EvalSet{X: Xva, Y: yva}); err != nil {
		return nil, errors.Wrap(err, "fit model")
	}
	model := reg.Model

	trainPred, err := model.Predict(Xtr)
	if err != nil {
		return nil, err
	}
	validPred, err := model.Predict(Xva)
	if err != nil {
		return nil, err
	}
	if res.TrainMetrics, err = metrics.Evaluate(ytr, trainPred); err != nil {
		return nil, err
	}
	if res.ValidationMetrics, err = metrics.Evaluate(yva, validPred); err != nil {
		return nil, err
	}
	for name, v := range res.ValidationMetrics {
		logger.Info("Validation metric", log.MetricNameKey, name, log.MetricValueKey, v)
	}

	importance, err := model.TopFeatures(gbt.ImportanceGain, topFeatures)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.LogFeatureImportance {
		for _, fs := range importance {
			logger.Info("Feature importance", log.ColumnKey, fs.Name, "importance", fs.Score)
		}
	}

	freq := cfg.Data.Frequency
	if freq == 0 {
		freq = InferFrequency(table.Index())
	}
	res.Bundle = &artifact.Bundle{
		Metadata: artifact.Metadata{
			PipelineVersion: cfg.Metadata.PipelineVersion,
			ModelType:       cfg.Metadata.ModelType,
			Description:     cfg.Metadata.Description,
			TrainedAt:       time.Now().UTC(),
			RunID:           runID,
			Target:          target,
			TimeColumn:      cfg.Data.TimeColumn,
			Frequency:       freq,
			Metrics:         res.ValidationMetrics,
		},
		Model:         model,
		FeatureNames:  names,
		Preprocessing: data.Preprocessing(),
		Features:      data.Features(),
	}
	if res.ModelPath, err = artifact.Save(cfg.Paths.Models, res.Bundle); err != nil {
		return nil, err
	}
	if cfg.Artifacts.S3.Bucket != "" {
		up, err := artifact.NewS3Uploader(ctx, cfg.Artifacts.S3)
		if err != nil {
			return nil, err
		}
		if res.RemoteURI, err = artifact.UploadFile(ctx, up, res.ModelPath); err != nil {
			return nil, err
		}
	}

	if cfg.Logging.SaveMetrics {
		rep := &report.Report{
			RunID:       runID,
			GeneratedAt: time.Now().UTC(),
			Metadata: report.Metadata{
				Description:     cfg.Metadata.Description,
				PipelineVersion: cfg.Metadata.PipelineVersion,
				ModelType:       cfg.Metadata.ModelType,
				Environment:     cfg.Environment.Mode,
			},
			Params:            params,
			Samples:           report.Samples{Train: trainF.Len(), Validation: validF.Len(), Features: len(names)},
			TrainMetrics:      res.TrainMetrics,
			ValidationMetrics: res.ValidationMetrics,
			BestIteration:     model.BestIteration,
			NumTrees:          len(model.Trees),
			History:           reg.History,
			FeatureImportance: importance,
			Tuning:            res.Tuning,
		}
		rep.Plots = writePlots(filepath.Join(cfg.Paths.Output, "plots", runID), validF.Index(), yva, validPred, importance, logger)
		if res.ReportPath, err = rep.Write(cfg.Paths.Output); err != nil {
			return nil, err
		}
	}

	if res.ProcessedPath, err = writeProcessed(cfg, table); err != nil {
		return nil, err
	}
	return res, nil
}

// design returns the feature matrix and target of f.
func design(f *frame.Frame, names []string, target string) (*mat.Dense, []float64, error) {
	X, err := f.Matrix(names)
	if err != nil {
		return nil, nil, err
	}
	y, ok := f.Float(target)
	if !ok {
		return nil, nil, errors.NewSchemaError("training", []string{target})
	}
	return X, y, nil
}

// writePlots saves the diagnostic charts. Plotting failures are logged, not
// returned.
func writePlots(dir string, times []time.Time, actual, predicted []float64, importance []gbt.FeatureScore, logger log.Logger) []string {
	var out []string
	predPath := filepath.Join(dir, "actual_vs_predicted.png")
	if err := report.PlotPredictions(predPath, times, actual, predicted); err != nil {
		logger.Warn("Failed to plot predictions", err)
	} else {
		out = append(out, predPath)
	}
	impPath := filepath.Join(dir, "feature_importance.png")
	if err := report.PlotImportance(impPath, importance); err != nil {
		logger.Warn("Failed to plot feature importance", err)
	} else {
		out = append(out, impPath)
	}
	return out
}

func writeProcessed(cfg *config.Config, table *frame.Frame) (string, error) {
	if err := os.MkdirAll(cfg.Paths.Processed, 0o755); err != nil {
		return "", errors.Wrapf(err, "create processed dir %s", cfg.Paths.Processed)
	}
	path := filepath.Join(cfg.Paths.Processed, "features_"+cfg.Metadata.PipelineVersion+".parquet")
	if err := ingest.WriteParquet(path, table); err != nil {
		return "", err
	}
	log.GetLoggerWithName("pipeline.train").Info("Saved processed feature table", log.FilePathKey, path, log.SamplesKey, table.Len())
	return path, nil
}
