// Package metrics implements the regression scores used for evaluation, early
// stopping and tuning.
package metrics

import (
	"math"
	"sort"
	"strings"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func checkInputs(op string, yTrue, yPred []float64) error {
	n := len(yTrue)
	if n == 0 {
		return errors.NewValueError(op, "empty vector")
	}
	if len(yPred) != n {
		return errors.NewDimensionError(op, n, len(yPred), 0)
	}
	return nil
}

// MSE is the mean squared error.
func MSE(yTrue, yPred []float64) (float64, error) {
	if err := checkInputs("MSE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sum += diff * diff
	}
	return sum / float64(len(yTrue)), nil
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred []float64) (float64, error) {
	if err := checkInputs("MAE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue)), nil
}

// R2Score is the coefficient of determination.
func R2Score(yTrue, yPred []float64) (float64, error) {
	if err := checkInputs("R2Score", yTrue, yPred); err != nil {
		return 0, err
	}
	yMean := stat.Mean(yTrue, nil)
	var tss, rss float64
	for i := range yTrue {
		tss += (yTrue[i] - yMean) * (yTrue[i] - yMean)
		rss += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
	}
	if tss == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "no variance in yTrue", math.NaN()))
		return 0, errors.NewValueError("R2Score", "total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}

// MAPE is the mean absolute percentage error in percent. Rows with a zero
// target are skipped.
func MAPE(yTrue, yPred []float64) (float64, error) {
	if err := checkInputs("MAPE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	valid := 0
	for i := range yTrue {
		if yTrue[i] != 0 {
			sum += math.Abs(yTrue[i]-yPred[i]) / math.Abs(yTrue[i])
			valid++
		}
	}
	if valid == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("mape", "all yTrue values are zero", math.NaN()))
		return 0, errors.NewValueError("MAPE", "all yTrue values are zero")
	}
	return sum / float64(valid) * 100, nil
}

// SMAPE is the symmetric mean absolute percentage error in percent. Rows where
// both values are zero count as a perfect prediction.
func SMAPE(yTrue, yPred []float64) (float64, error) {
	if err := checkInputs("SMAPE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		sum += errors.SafeDivide(2*math.Abs(yPred[i]-yTrue[i]), math.Abs(yTrue[i])+math.Abs(yPred[i]))
	}
	return sum / float64(len(yTrue)) * 100, nil
}

// MaxError is the largest absolute residual.
func MaxError(yTrue, yPred []float64) (float64, error) {
	if err := checkInputs("MaxError", yTrue, yPred); err != nil {
		return 0, err
	}
	res := make([]float64, len(yTrue))
	floats.SubTo(res, yTrue, yPred)
	for i, r := range res {
		res[i] = math.Abs(r)
	}
	return floats.Max(res), nil
}

// ExplainedVarianceScore is 1 - Var(yTrue - yPred) / Var(yTrue).
func ExplainedVarianceScore(yTrue, yPred []float64) (float64, error) {
	if err := checkInputs("ExplainedVarianceScore", yTrue, yPred); err != nil {
		return 0, err
	}
	diff := make([]float64, len(yTrue))
	floats.SubTo(diff, yTrue, yPred)
	varTrue := stat.PopVariance(yTrue, nil)
	if varTrue == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("explained_variance", "no variance in yTrue", math.NaN()))
		return 0, errors.NewValueError("ExplainedVarianceScore", "no variance in yTrue")
	}
	return 1 - stat.PopVariance(diff, nil)/varTrue, nil
}

// Func is the signature shared by every metric.
type Func func(yTrue, yPred []float64) (float64, error)

type metric struct {
	fn             Func
	higherIsBetter bool
}

var registry = map[string]metric{
	"mse":                {MSE, false},
	"rmse":               {RMSE, false},
	"mae":                {MAE, false},
	"r2":                 {R2Score, true},
	"mape":               {MAPE, false},
	"smape":              {SMAPE, false},
	"max_error":          {MaxError, false},
	"explained_variance": {ExplainedVarianceScore, true},
}

// Lookup returns the metric registered under name (case-insensitive).
func Lookup(name string) (Func, bool, error) {
	m, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, false, errors.NewValidationError("eval_metric", "unknown metric", name)
	}
	return m.fn, m.higherIsBetter, nil
}

// Names lists the registered metrics.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Evaluate computes every registered metric. Metrics that are undefined for the
// input are left out.
func Evaluate(yTrue, yPred []float64) (map[string]float64, error) {
	if err := checkInputs("Evaluate", yTrue, yPred); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(registry))
	for name, m := range registry {
		v, err := m.fn(yTrue, yPred)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out, nil
}
