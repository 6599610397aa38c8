package gbt

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/core/model"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// Regressor wraps Trainer and Model behind the estimator interfaces.
type Regressor struct {
	model.StateManager

	Params       Params
	FeatureNames []string
	Model        *Model
	History      map[string][]float64

	callbacks []Callback
}

var (
	_ model.Regressor       = (*Regressor)(nil)
	_ model.ParameterGetter = (*Regressor)(nil)
)

// NewRegressor creates an unfitted regressor.
func NewRegressor(params Params) *Regressor {
	return &Regressor{Params: params}
}

// FromModel wraps an already trained model.
func FromModel(m *Model) *Regressor {
	r := &Regressor{Params: m.Params, FeatureNames: m.FeatureNames, Model: m}
	r.SetDimensions(m.NumFeatures, 0)
	r.SetFitted()
	return r
}

// WithCallbacks adds training callbacks.
func (r *Regressor) WithCallbacks(callbacks ...Callback) *Regressor {
	r.callbacks = append(r.callbacks, callbacks...)
	return r
}

// Fit trains without a validation set.
func (r *Regressor) Fit(X mat.Matrix, y []float64) error {
	return r.FitContext(context.Background(), X, y, nil)
}

// FitContext trains with an optional validation set used for early stopping.
// The evaluation history is kept in History.
func (r *Regressor) FitContext(ctx context.Context, X mat.Matrix, y []float64, valid *EvalSet) (err error) {
	defer errors.Recover(&err, "Regressor.Fit")

	r.Reset()
	r.History = map[string][]float64{}
	trainer := NewTrainer(r.Params).WithCallbacks(append(r.callbacks, RecordEvaluation(r.History))...)
	m, err := trainer.Train(ctx, X, y, valid)
	if err != nil {
		return err
	}
	rows, cols := X.Dims()
	if len(r.FeatureNames) == cols {
		m.FeatureNames = r.FeatureNames
	}
	r.Model = m
	r.SetDimensions(cols, rows)
	r.SetFitted()
	return nil
}

// Predict predicts every row of X.
func (r *Regressor) Predict(X mat.Matrix) ([]float64, error) {
	if err := r.RequireFitted("Regressor", "Predict"); err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	if err := r.CheckFeatures("Regressor.Predict", cols); err != nil {
		return nil, err
	}
	return r.Model.Predict(X)
}

// NumFeatures returns the number of features seen during Fit.
func (r *Regressor) NumFeatures() int {
	n, _ := r.GetDimensions()
	return n
}

// GetParams returns the hyperparameters.
func (r *Regressor) GetParams() map[string]interface{} {
	return r.Params.GetParams()
}

func (r *Regressor) String() string {
	if !r.IsFitted() {
		return fmt.Sprintf("Regressor(objective=%s, n_estimators=%d)", r.Params.Objective, r.Params.NEstimators)
	}
	return fmt.Sprintf("Regressor(objective=%s, trees=%d, features=%d)", r.Params.Objective, len(r.Model.Trees), r.NumFeatures())
}
