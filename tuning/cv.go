// Package tuning scores hyperparameter candidates with time-series cross
// validation.
package tuning

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/metrics"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/split"
)

// CVResult stores per-fold cross-validation results.
type CVResult struct {
	Metric         string
	TrainScores    []float64
	TestScores     []float64
	FitTimes       []time.Duration
	BestIterations []int
	Models         []*gbt.Model
}

// GetMeanScore returns the mean test score.
func (cv *CVResult) GetMeanScore() float64 {
	if len(cv.TestScores) == 0 {
		return math.NaN()
	}
	return stat.Mean(cv.TestScores, nil)
}

// GetStdScore returns the sample standard deviation of the test scores.
func (cv *CVResult) GetStdScore() float64 {
	if len(cv.TestScores) <= 1 {
		return 0
	}
	return stat.StdDev(cv.TestScores, nil)
}

// CrossValidate trains one model per fold and scores it with params.EvalMetric.
// Folds run concurrently and a panic in one fold fails only that fold.
func CrossValidate(ctx context.Context, params gbt.Params, X *mat.Dense, y []float64, splitter split.Splitter) (*CVResult, error) {
	rows, _ := X.Dims()
	if rows != len(y) {
		return nil, errors.NewDimensionError("CrossValidate", rows, len(y), 0)
	}
	metricFn, _, err := metrics.Lookup(params.EvalMetric)
	if err != nil {
		return nil, err
	}
	folds, err := splitter.Split(rows)
	if err != nil {
		return nil, err
	}

	n := len(folds)
	result := &CVResult{
		Metric:         params.EvalMetric,
		TrainScores:    make([]float64, n),
		TestScores:     make([]float64, n),
		FitTimes:       make([]time.Duration, n),
		BestIterations: make([]int, n),
		Models:         make([]*gbt.Model, n),
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range folds {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = errors.SafeExecute(fmt.Sprintf("fold %d", idx), func() error {
				return fitFold(ctx, params, metricFn, X, y, folds[idx], idx, result)
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// fitFold trains and scores one fold. With early stopping the tail of the
// fold's training window is held out as the validation set so the test
// window is only ever scored.
func fitFold(ctx context.Context, params gbt.Params, metricFn metrics.Func, X *mat.Dense, y []float64, fold split.Fold, idx int, result *CVResult) error {
	fitIdx := fold.TrainIndices
	var valid *gbt.EvalSet
	if params.EarlyStopping > 0 {
		fitIdx, valid = holdoutTail(X, y, fold.TrainIndices)
	}
	trainX, trainY := takeRows(X, y, fitIdx)
	testX, testY := takeRows(X, y, fold.TestIndices)

	start := time.Now()
	m, err := gbt.NewTrainer(params).Train(ctx, trainX, trainY, valid)
	if err != nil {
		return errors.Wrapf(err, "fold %d training failed", idx)
	}
	result.FitTimes[idx] = time.Since(start)
	result.Models[idx] = m
	result.BestIterations[idx] = m.BestIteration

	trainPred, err := m.Predict(trainX)
	if err != nil {
		return errors.Wrapf(err, "fold %d train prediction failed", idx)
	}
	if result.TrainScores[idx], err = metricFn(trainY, trainPred); err != nil {
		return errors.Wrapf(err, "fold %d train score", idx)
	}
	testPred, err := m.Predict(testX)
	if err != nil {
		return errors.Wrapf(err, "fold %d test prediction failed", idx)
	}
	if result.TestScores[idx], err = metricFn(testY, testPred); err != nil {
		return errors.Wrapf(err, "fold %d test score", idx)
	}
	return nil
}

// validationFraction is the share of a training window held out for early
// stopping.
const validationFraction = 0.2

// holdoutTail splits the last validationFraction of train off as a validation
// set. Windows too short to leave a row on both sides train without one.
func holdoutTail(X *mat.Dense, y []float64, train []int) ([]int, *gbt.EvalSet) {
	nValid := int(math.Round(float64(len(train)) * validationFraction))
	if nValid < 1 || len(train)-nValid < 1 {
		return train, nil
	}
	cut := len(train) - nValid
	vX, vY := takeRows(X, y, train[cut:])
	return train[:cut], &gbt.EvalSet{X: vX, Y: vY}
}

func takeRows(X *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, cols := X.Dims()
	outX := mat.NewDense(len(idx), cols, nil)
	outY := make([]float64, len(idx))
	for i, r := range idx {
		outX.SetRow(i, X.RawRowView(r))
		outY[i] = y[r]
	}
	return outX, outY
}
