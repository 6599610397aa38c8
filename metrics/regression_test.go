package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

func TestRegressionMetrics(t *testing.T) {
	yTrue := []float64{10, 20, 30}
	yPred := []float64{12, 18, 33}

	tests := []struct {
		name string
		fn   Func
		want float64
	}{
		{"mse", MSE, 17.0 / 3.0},
		{"rmse", RMSE, math.Sqrt(17.0 / 3.0)},
		{"mae", MAE, 7.0 / 3.0},
		{"r2", R2Score, 1 - 17.0/200.0},
		{"mape", MAPE, (0.2 + 0.1 + 0.1) / 3 * 100},
		{"smape", SMAPE, (4.0/22 + 4.0/38 + 6.0/63) / 3 * 100},
		{"max_error", MaxError, 3},
		// residuals -2, 2, -3 have mean -1 and variance 14/3
		{"explained_variance", ExplainedVarianceScore, 1 - (14.0/3.0)/(200.0/3.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(yTrue, yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)

			fn, _, err := Lookup(tt.name)
			require.NoError(t, err)
			viaName, err := fn(yTrue, yPred)
			require.NoError(t, err)
			assert.Equal(t, got, viaName)
		})
	}
}

func TestInputErrors(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yPred []float64
	}{
		{"empty", nil, nil},
		{"dimension mismatch", []float64{1, 2, 3}, []float64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range Names() {
				fn, _, err := Lookup(name)
				require.NoError(t, err)
				_, err = fn(tt.yTrue, tt.yPred)
				assert.Error(t, err, name)
			}
		})
	}

	_, err := MSE([]float64{1, 2}, []float64{1})
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestMAPESkipsZeroTargets(t *testing.T) {
	got, err := MAPE([]float64{0, 10}, []float64{5, 11})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got, 1e-12)
}

func TestSMAPEZeroPair(t *testing.T) {
	got, err := SMAPE([]float64{0, 10}, []float64{0, 30})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got, 1e-12)
}

func TestUndefinedMetricsWarn(t *testing.T) {
	logger := log.UseTestProvider(t, log.LevelDebug)

	_, err := MAPE([]float64{0, 0}, []float64{1, 2})
	assert.Error(t, err)
	_, err = R2Score([]float64{3, 3}, []float64{1, 2})
	assert.Error(t, err)
	assert.True(t, logger.ContainsMessage("all yTrue values are zero"))
	assert.True(t, logger.ContainsMessage("no variance in yTrue"))
}

func TestLookup(t *testing.T) {
	_, higher, err := Lookup("R2")
	require.NoError(t, err)
	assert.True(t, higher)
	_, higher, err = Lookup("rmse")
	require.NoError(t, err)
	assert.False(t, higher)
	_, _, err = Lookup("auc")
	assert.Error(t, err)
}

func TestEvaluateSkipsUndefined(t *testing.T) {
	scores, err := Evaluate([]float64{0, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.Contains(t, scores, "rmse")
	assert.NotContains(t, scores, "mape")
	assert.NotContains(t, scores, "r2")
}
