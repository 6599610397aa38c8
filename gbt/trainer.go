package gbt

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/core/parallel"
	"github.com/YuminosukeSato/gbforecast/metrics"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// EvalSet is a held-out set scored after every round.
type EvalSet struct {
	X mat.Matrix
	Y []float64
}

// Trainer runs the boosting loop.
type Trainer struct {
	params    Params
	callbacks []Callback
	logger    log.Logger
}

// NewTrainer creates a trainer. Params are validated by Train.
func NewTrainer(params Params) *Trainer {
	return &Trainer{params: params, logger: log.GetLoggerWithName("gbt.trainer")}
}

// WithCallbacks adds callbacks run after every round.
func (t *Trainer) WithCallbacks(callbacks ...Callback) *Trainer {
	t.callbacks = append(t.callbacks, callbacks...)
	return t
}

// Train fits an ensemble on X, y. With a validation set and early_stopping > 0
// training stops after that many rounds without improvement of eval_metric on
// the validation set, and the model keeps the trees up to the best round.
func (t *Trainer) Train(ctx context.Context, X mat.Matrix, y []float64, valid *EvalSet) (*Model, error) {
	p := t.params
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.NewModelError("Train", "empty data", errors.ErrEmptyData)
	}
	if len(y) != rows {
		return nil, errors.NewDimensionError("Train", rows, len(y), 0)
	}
	if err := errors.CheckNumericalStability("Train", y, 0); err != nil {
		return nil, err
	}
	if valid != nil {
		vr, vc := valid.X.Dims()
		if vc != cols {
			return nil, errors.NewDimensionError("Train.valid", cols, vc, 1)
		}
		if vr != len(valid.Y) {
			return nil, errors.NewDimensionError("Train.valid", vr, len(valid.Y), 0)
		}
		if vr == 0 {
			valid = nil
		}
	}
	metricFn, higherIsBetter, err := metrics.Lookup(p.EvalMetric)
	if err != nil {
		return nil, err
	}
	obj, err := NewObjective(p.Objective, p.HuberDelta)
	if err != nil {
		return nil, err
	}

	workers := parallel.Workers(p.NJobs)
	begin := time.Now()
	t.logger.Info("Training started",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"objective", obj.Name(),
		"tree_method", p.TreeMethod,
		"workers", workers)

	ds := newDataset(X, p.MaxBin, p.TreeMethod == TreeMethodExact, workers)
	rng := rand.New(rand.NewPCG(p.RandomSeed, p.RandomSeed^0x9e3779b97f4a7c15))

	initScore := obj.InitScore(y)
	if err := errors.CheckScalar("Train.init_score", initScore, 0); err != nil {
		return nil, err
	}
	trainPred := make([]float64, rows)
	for i := range trainPred {
		trainPred[i] = initScore
	}
	var validRows [][]float64
	var validPred []float64
	if valid != nil {
		vr, _ := valid.X.Dims()
		validRows = make([][]float64, vr)
		validPred = make([]float64, vr)
		for i := range validRows {
			validRows[i] = mat.Row(nil, i, valid.X)
			validPred[i] = initScore
		}
	}

	es := NewEarlyStopping(p.EarlyStopping, higherIsBetter)
	if es != nil && valid == nil {
		t.logger.Warn("Early stopping needs a validation set, disabled")
		es = nil
	}
	callbacks := append([]Callback(nil), t.callbacks...)
	if p.TimeLimit > 0 {
		callbacks = append(callbacks, TimeLimit(p.TimeLimit))
	}
	if p.Verbosity > 0 {
		callbacks = append(callbacks, LogEvaluation(t.logger, p.Verbosity))
	}

	model := &Model{
		InitScore:   initScore,
		NumFeatures: cols,
		Objective:   obj.Name(),
		Params:      p,
	}
	g := &grower{
		ds:      ds,
		p:       p,
		grad:    make([]float64, rows),
		hess:    make([]float64, rows),
		workers: workers,
	}
	allRows := make([]int, rows)
	for i := range allRows {
		allRows[i] = i
	}
	bag := allRows
	env := &CallbackEnv{BeginTime: begin}

	for iter := 0; iter < p.NEstimators; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "training cancelled at iteration %d", iter)
		}

		for i := 0; i < rows; i++ {
			g.grad[i] = obj.Gradient(trainPred[i], y[i])
			g.hess[i] = obj.Hessian(trainPred[i], y[i])
		}
		if p.Subsample < 1 {
			freq := max(p.SubsampleFreq, 1)
			if iter%freq == 0 {
				bag = sampleRows(rng, rows, p.Subsample)
			}
		}
		g.features = sampleFeatures(rng, cols, p.ColsampleBytree)

		tree := g.grow(bag)
		model.Trees = append(model.Trees, tree)
		for i := 0; i < rows; i++ {
			trainPred[i] += g.predictBinned(&tree, g.nodeBins, i)
		}
		for i, row := range validRows {
			validPred[i] += tree.Predict(row)
		}

		env.Iteration = iter
		env.EvalResults = map[string]float64{}
		if score, err := metricFn(y, trainPred); err == nil {
			if err := errors.CheckScalar("Train.train_"+p.EvalMetric, score, iter); err != nil {
				return nil, err
			}
			env.EvalResults["train_"+p.EvalMetric] = score
		}
		if valid != nil {
			score, err := metricFn(valid.Y, validPred)
			if err == nil {
				env.EvalResults["valid_"+p.EvalMetric] = score
				if es != nil && es.Update(iter, score) {
					t.logger.Info("Early stopping",
						log.IterationKey, iter,
						log.BestIterationKey, es.BestIteration,
						log.MetricNameKey, p.EvalMetric,
						log.MetricValueKey, es.BestScore)
					env.StopTraining = true
				}
			}
		}
		for _, cb := range callbacks {
			if err := cb(env); err != nil {
				return nil, errors.Wrapf(err, "callback error at iteration %d", iter)
			}
		}
		if env.StopTraining {
			break
		}
	}

	model.BestIteration = len(model.Trees)
	if es != nil && es.BestIteration+1 < len(model.Trees) {
		model.Trees = model.Trees[:es.BestIteration+1]
		model.BestIteration = es.BestIteration + 1
	}
	if len(model.Trees) == 1 && model.Trees[0].NumLeaves() == 1 {
		errors.Warn(errors.NewConvergenceWarning("gbt", 1, "no split improved the objective"))
	}
	t.logger.Info("Training completed",
		"trees", len(model.Trees),
		log.BestIterationKey, model.BestIteration,
		log.DurationMsKey, time.Since(begin).Milliseconds())
	return model, nil
}

// sampleRows draws each row independently with probability fraction and never
// returns an empty bag.
func sampleRows(rng *rand.Rand, rows int, fraction float64) []int {
	bag := make([]int, 0, int(math.Ceil(float64(rows)*fraction)))
	for i := 0; i < rows; i++ {
		if rng.Float64() < fraction {
			bag = append(bag, i)
		}
	}
	if len(bag) == 0 {
		bag = append(bag, rng.IntN(rows))
	}
	return bag
}

// sampleFeatures picks round(fraction*cols) features, at least one, in index
// order.
func sampleFeatures(rng *rand.Rand, cols int, fraction float64) []int {
	k := max(1, int(math.Round(fraction*float64(cols))))
	if k >= cols {
		out := make([]int, cols)
		for i := range out {
			out[i] = i
		}
		return out
	}
	perm := rng.Perm(cols)[:k]
	chosen := make([]bool, cols)
	for _, j := range perm {
		chosen[j] = true
	}
	out := make([]int, 0, k)
	for j, ok := range chosen {
		if ok {
			out = append(out, j)
		}
	}
	return out
}
