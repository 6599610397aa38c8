package gbt

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/metrics"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// stepData returns n rows where y jumps from 0 to 5 at x0 = 0.5 and x1 is an
// uninformative sawtooth.
func stepData(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := float64(i) / float64(n)
		X.Set(i, 0, x0)
		X.Set(i, 1, float64(i%7))
		if x0 >= 0.5 {
			y[i] = 5
		}
	}
	return X, y
}

func testParams() Params {
	p := DefaultParams()
	p.NEstimators = 60
	p.NumLeaves = 4
	p.MinChildSamples = 5
	p.NJobs = 2
	return p
}

func TestObjectives(t *testing.T) {
	tests := []struct {
		name     string
		pred     float64
		target   float64
		wantGrad float64
		wantHess float64
		wantLoss float64
	}{
		{ObjectiveL2, 3, 1, 2, 1, 2},
		{ObjectiveL1, 3, 1, 1, 1, 2},
		{ObjectiveL1, 1, 3, -1, 1, 2},
		{ObjectiveHuber, 1.5, 1, 0.5, 1, 0.125},
		{ObjectiveHuber, 4, 1, 1, 1, 2.5},
		{ObjectiveHuber, -2, 1, -1, 1, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := NewObjective(tt.name, 1)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantGrad, obj.Gradient(tt.pred, tt.target), 1e-12)
			assert.InDelta(t, tt.wantHess, obj.Hessian(tt.pred, tt.target), 1e-12)
			assert.InDelta(t, tt.wantLoss, obj.Loss(tt.pred, tt.target), 1e-12)
		})
	}

	l1, _ := NewObjective(ObjectiveL1, 0)
	assert.Equal(t, 2.0, l1.InitScore([]float64{1, 2, 100}))
	_, err := NewObjective("poisson", 0)
	assert.Error(t, err)
}

func TestBinMapper(t *testing.T) {
	t.Run("distinct values", func(t *testing.T) {
		m := newBinMapper([]float64{3, 1, 2, 2, math.NaN()}, 255, false)
		assert.Equal(t, []float64{1.5, 2.5, math.Inf(1)}, m.upper)
		assert.Equal(t, 0, m.bin(1))
		assert.Equal(t, 1, m.bin(2))
		assert.Equal(t, 2, m.bin(10))
		assert.Equal(t, 3, m.bin(math.NaN()))
		assert.Equal(t, 4, m.numBins())
	})

	t.Run("quantile bins", func(t *testing.T) {
		v := make([]float64, 1000)
		for i := range v {
			v[i] = float64(i)
		}
		m := newBinMapper(v, 10, false)
		assert.Len(t, m.upper, 10)
		exact := newBinMapper(v, 10, true)
		assert.Len(t, exact.upper, 1000)
	})

	t.Run("all missing", func(t *testing.T) {
		m := newBinMapper([]float64{math.NaN()}, 10, false)
		assert.Equal(t, 1, m.missingBin())
	})
}

func TestTrainFitsStep(t *testing.T) {
	for _, method := range []string{TreeMethodHist, TreeMethodExact} {
		t.Run(method, func(t *testing.T) {
			X, y := stepData(200)
			p := testParams()
			p.TreeMethod = method
			m, err := NewTrainer(p).Train(context.Background(), X, y, nil)
			require.NoError(t, err)
			assert.Len(t, m.Trees, p.NEstimators)

			pred, err := m.Predict(X)
			require.NoError(t, err)
			rmse, err := metrics.RMSE(y, pred)
			require.NoError(t, err)
			assert.Less(t, rmse, 0.1)

			imp, err := m.FeatureImportance(ImportanceGain)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
			assert.Greater(t, imp[0], imp[1])
		})
	}
}

func TestTrainRejectsOverflowingInitScore(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := []float64{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}
	_, err := NewTrainer(testParams()).Train(context.Background(), X, y, nil)
	require.Error(t, err)
	var ne *errors.NumericalInstabilityError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "Train.init_score", ne.Operation)
}

func TestObjectivesTrain(t *testing.T) {
	for _, obj := range []string{ObjectiveL2, ObjectiveL1, ObjectiveHuber} {
		t.Run(obj, func(t *testing.T) {
			X, y := stepData(200)
			p := testParams()
			p.Objective = obj
			p.NEstimators = 150
			m, err := NewTrainer(p).Train(context.Background(), X, y, nil)
			require.NoError(t, err)
			pred, err := m.PredictRow([]float64{0.9, 3})
			require.NoError(t, err)
			assert.InDelta(t, 5.0, pred, 0.5)
			pred, err = m.PredictRow([]float64{0.1, 3})
			require.NoError(t, err)
			assert.InDelta(t, 0.0, pred, 0.5)
		})
	}
}

func TestDeterministicWithSampling(t *testing.T) {
	X, y := stepData(300)
	p := testParams()
	p.Subsample = 0.7
	p.SubsampleFreq = 1
	p.ColsampleBytree = 0.5
	p.RandomSeed = 42

	m1, err := NewTrainer(p).Train(context.Background(), X, y, nil)
	require.NoError(t, err)
	m2, err := NewTrainer(p).Train(context.Background(), X, y, nil)
	require.NoError(t, err)
	p1, _ := m1.Predict(X)
	p2, _ := m2.Predict(X)
	assert.Equal(t, p1, p2)
}

func TestEarlyStopping(t *testing.T) {
	X, y := stepData(200)
	// the validation target is the opposite step, so every round hurts
	validY := make([]float64, len(y))
	for i, v := range y {
		validY[i] = 5 - v
	}
	p := testParams()
	p.EarlyStopping = 3
	history := map[string][]float64{}
	m, err := NewTrainer(p).WithCallbacks(RecordEvaluation(history)).
		Train(context.Background(), X, y, &EvalSet{X: X, Y: validY})
	require.NoError(t, err)

	assert.Equal(t, 1, m.BestIteration)
	assert.Len(t, m.Trees, 1)
	assert.Len(t, history["valid_rmse"], 4)
	assert.Len(t, history["train_rmse"], 4)
}

func TestMissingValuesLearnDirection(t *testing.T) {
	n := 100
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		if i%4 == 0 {
			X.Set(i, 0, math.NaN())
			y[i] = 10
			continue
		}
		X.Set(i, 0, float64(i))
	}
	p := testParams()
	p.NEstimators = 80
	m, err := NewTrainer(p).Train(context.Background(), X, y, nil)
	require.NoError(t, err)
	pred, err := m.PredictRow([]float64{math.NaN()})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, pred, 0.5)
	pred, err = m.PredictRow([]float64{50})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pred, 0.5)
}

func TestModelJSONRoundTrip(t *testing.T) {
	X, y := stepData(100)
	m, err := NewTrainer(testParams()).Train(context.Background(), X, y, nil)
	require.NoError(t, err)
	m.FeatureNames = []string{"x0", "x1"}

	var buf bytes.Buffer
	require.NoError(t, m.WriteJSON(&buf))
	back, err := ReadJSON(&buf)
	require.NoError(t, err)

	want, _ := m.Predict(X)
	got, err := back.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	top, err := back.TopFeatures(ImportanceSplit, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "x0", top[0].Name)
}

func TestStopConditions(t *testing.T) {
	X, y := stepData(100)

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewTrainer(testParams()).Train(ctx, X, y, nil)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("time limit", func(t *testing.T) {
		p := testParams()
		p.TimeLimit = time.Nanosecond
		m, err := NewTrainer(p).Train(context.Background(), X, y, nil)
		require.NoError(t, err)
		assert.Len(t, m.Trees, 1)
	})

	t.Run("callback stops", func(t *testing.T) {
		stop := func(env *CallbackEnv) error {
			env.StopTraining = env.Iteration == 4
			return nil
		}
		m, err := NewTrainer(testParams()).WithCallbacks(stop).Train(context.Background(), X, y, nil)
		require.NoError(t, err)
		assert.Len(t, m.Trees, 5)
	})
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"n_estimators", func(p *Params) { p.NEstimators = 0 }},
		{"learning_rate", func(p *Params) { p.LearningRate = 0 }},
		{"num_leaves", func(p *Params) { p.NumLeaves = 1 }},
		{"subsample", func(p *Params) { p.Subsample = 1.5 }},
		{"colsample_bytree", func(p *Params) { p.ColsampleBytree = 0 }},
		{"tree_method", func(p *Params) { p.TreeMethod = "gpu_hist" }},
		{"objective", func(p *Params) { p.Objective = "binary" }},
		{"reg_lambda", func(p *Params) { p.RegLambda = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			var ve *errors.ValidationError
			assert.True(t, errors.As(p.Validate(), &ve))
		})
	}
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	require.NoError(t, p.SetParams(map[string]float64{"max_depth": 6, "gamma": 0.1}))
	assert.Equal(t, 6, p.MaxDepth)
	assert.Error(t, p.SetParams(map[string]float64{"bogus": 1}))
}

func TestRegressor(t *testing.T) {
	X, y := stepData(100)
	r := NewRegressor(testParams())
	_, err := r.Predict(X)
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))

	r.FeatureNames = []string{"x0", "x1"}
	require.NoError(t, r.Fit(X, y))
	assert.Equal(t, 2, r.NumFeatures())
	assert.Equal(t, []string{"x0", "x1"}, r.Model.FeatureNames)
	assert.Len(t, r.History["train_rmse"], testParams().NEstimators)

	_, err = r.Predict(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	wrapped := FromModel(r.Model)
	got, err := wrapped.Predict(X)
	require.NoError(t, err)
	want, _ := r.Predict(X)
	assert.Equal(t, want, got)
}
