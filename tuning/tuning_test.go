package tuning

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
	"github.com/YuminosukeSato/gbforecast/split"
)

// weekly returns a series whose target depends only on the position in a
// seven-step cycle.
func weekly(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i%7))
		X.Set(i, 1, float64(i%3))
		y[i] = 2 * float64(i%7)
	}
	return X, y
}

func baseParams() gbt.Params {
	p := gbt.DefaultParams()
	p.NEstimators = 30
	p.NumLeaves = 8
	p.MinChildSamples = 3
	p.NJobs = 1
	return p
}

func TestSpaceFromConfig(t *testing.T) {
	space := SpaceFromConfig(config.SearchSpace{
		LearningRate: []float64{0.01, 0.1},
		MaxDepth:     []int{-1, 6, 10},
	})
	assert.Len(t, space, 2)
	assert.Equal(t, []float64{-1, 6, 10}, space["max_depth"])
	assert.Equal(t, 6, space.Size())
	assert.Equal(t, 1, Space{}.Size())

	keys := space.keys()
	assert.Equal(t, []string{"learning_rate", "max_depth"}, keys)
	assert.Equal(t, map[string]float64{"learning_rate": 0.01, "max_depth": -1}, space.point(keys, 0))
	assert.Equal(t, map[string]float64{"learning_rate": 0.01, "max_depth": 6}, space.point(keys, 1))
	assert.Equal(t, map[string]float64{"learning_rate": 0.1, "max_depth": 10}, space.point(keys, 5))
}

func TestCandidates(t *testing.T) {
	space := Space{"gamma": {0, 0.1, 0.3}, "reg_lambda": {1, 5}, "subsample": {0.8, 1}}
	splitter := split.NewTimeSeriesSplit(3, 0)

	tests := []struct {
		name     string
		strategy string
		nIter    int
		want     int
		wantErr  bool
	}{
		{"grid", StrategyGrid, 0, 12, false},
		{"random", StrategyRandom, 5, 5, false},
		{"random capped at grid size", StrategyRandom, 50, 12, false},
		{"random without n_iter", StrategyRandom, 0, 0, true},
		{"unknown strategy", "bayes", 5, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSearcher(baseParams(), space, tt.strategy, tt.nIter, splitter)
			got, err := s.Candidates()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			seen := map[[3]float64]bool{}
			for _, c := range got {
				k := [3]float64{c["gamma"], c["reg_lambda"], c["subsample"]}
				assert.False(t, seen[k], "duplicate candidate %v", c)
				seen[k] = true
			}
		})
	}
}

func TestRandomCandidatesDeterministic(t *testing.T) {
	space := Space{"gamma": {0, 0.1, 0.3}, "learning_rate": {0.01, 0.05, 0.1}}
	a, err := NewSearcher(baseParams(), space, StrategyRandom, 4, split.NewTimeSeriesSplit(2, 0)).Candidates()
	require.NoError(t, err)
	b, err := NewSearcher(baseParams(), space, StrategyRandom, 4, split.NewTimeSeriesSplit(2, 0)).Candidates()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCrossValidate(t *testing.T) {
	X, y := weekly(120)
	res, err := CrossValidate(context.Background(), baseParams(), X, y, split.NewTimeSeriesSplit(3, 0))
	require.NoError(t, err)
	assert.Len(t, res.TestScores, 3)
	assert.Len(t, res.Models, 3)
	assert.Less(t, res.GetMeanScore(), 1.0)
	assert.GreaterOrEqual(t, res.GetStdScore(), 0.0)

	_, err = CrossValidate(context.Background(), baseParams(), X, y[:10], split.NewTimeSeriesSplit(3, 0))
	assert.Error(t, err)
}

func TestCrossValidateEarlyStoppingIgnoresTestWindow(t *testing.T) {
	X, y := weekly(120)
	params := baseParams()
	params.EarlyStopping = 3
	splitter := split.NewTimeSeriesSplit(3, 0)

	first, err := CrossValidate(context.Background(), params, X, y, splitter)
	require.NoError(t, err)

	// The last fold tests on rows 90..119; no fold trains on them.
	shifted := append([]float64(nil), y...)
	for i := 90; i < 120; i++ {
		shifted[i] = 500 - y[i]
	}
	second, err := CrossValidate(context.Background(), params, X, shifted, splitter)
	require.NoError(t, err)

	for i := range first.Models {
		assert.Equal(t, first.BestIterations[i], second.BestIterations[i], "fold %d", i)
		assert.LessOrEqual(t, first.BestIterations[i], params.NEstimators)
		assert.InDelta(t, first.TrainScores[i], second.TrainScores[i], 1e-12)
	}
	a, err := first.Models[2].Predict(X)
	require.NoError(t, err)
	b, err := second.Models[2].Predict(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, a, b, 1e-12)
	assert.Greater(t, second.TestScores[2], first.TestScores[2])
}

func TestHoldoutTail(t *testing.T) {
	X, y := weekly(10)
	tests := []struct {
		name      string
		train     []int
		wantFit   int
		wantValid []float64
	}{
		{"ten rows", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 8, []float64{y[8], y[9]}},
		{"five rows", []int{0, 1, 2, 3, 4}, 4, []float64{y[4]}},
		{"two rows", []int{0, 1}, 2, nil},
		{"one row", []int{0}, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit, valid := holdoutTail(X, y, tt.train)
			assert.Len(t, fit, tt.wantFit)
			if tt.wantValid == nil {
				assert.Nil(t, valid)
				return
			}
			require.NotNil(t, valid)
			assert.Equal(t, tt.wantValid, valid.Y)
			rows, _ := valid.X.Dims()
			assert.Equal(t, len(tt.wantValid), rows)
		})
	}
}

func TestCVResultScores(t *testing.T) {
	empty := &CVResult{}
	assert.True(t, math.IsNaN(empty.GetMeanScore()))
	assert.Equal(t, 0.0, empty.GetStdScore())

	r := &CVResult{TestScores: []float64{1, 2, 3}}
	assert.InDelta(t, 2.0, r.GetMeanScore(), 1e-12)
	assert.InDelta(t, 1.0, r.GetStdScore(), 1e-12)
}

func TestSearchPicksBestLearningRate(t *testing.T) {
	log.UseTestProvider(t, log.LevelInfo)
	X, y := weekly(140)
	s := NewSearcher(baseParams(), Space{"learning_rate": {0.001, 0.3}}, StrategyGrid, 0, split.NewTimeSeriesSplit(3, 0))
	res, err := s.Search(context.Background(), X, y)
	require.NoError(t, err)
	assert.Len(t, res.Trials, 2)
	assert.Equal(t, 0.3, res.BestValues["learning_rate"])
	assert.Equal(t, 0.3, res.Best.LearningRate)
	assert.Equal(t, "rmse", res.Metric)
	assert.Less(t, res.Trials[1].MeanScore, res.Trials[0].MeanScore)
}

func TestSearchRecordsFailedCandidates(t *testing.T) {
	logger := log.UseTestProvider(t, log.LevelDebug)
	X, y := weekly(140)
	s := NewSearcher(baseParams(), Space{"subsample": {1, 2}}, StrategyGrid, 0, split.NewTimeSeriesSplit(3, 0))
	res, err := s.Search(context.Background(), X, y)
	require.NoError(t, err)
	require.Len(t, res.Trials, 2)
	assert.Empty(t, res.Trials[0].Error)
	assert.NotEmpty(t, res.Trials[1].Error)
	assert.Equal(t, 1.0, res.BestValues["subsample"])
	assert.True(t, logger.ContainsMessage("Candidate failed"))

	all := NewSearcher(baseParams(), Space{"subsample": {2}}, StrategyGrid, 0, split.NewTimeSeriesSplit(3, 0))
	_, err = all.Search(context.Background(), X, y)
	assert.Error(t, err)
}

func TestSearchCancelled(t *testing.T) {
	X, y := weekly(70)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSearcher(baseParams(), Space{"gamma": {0}}, StrategyGrid, 0, split.NewTimeSeriesSplit(2, 0))
	_, err := s.Search(ctx, X, y)
	assert.Error(t, err)
}
