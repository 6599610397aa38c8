package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X mat.Matrix, y []float64) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) ([]float64, error)
}

// Regressor is a fitted-or-fittable regression model.
type Regressor interface {
	Fitter
	Predictor
	NumFeatures() int
}

// ParameterGetter exposes hyperparameters for reports and run tracking.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}
