// Package gbt implements histogram-based gradient-boosted regression trees
// grown leaf-wise, with validation-driven early stopping.
package gbt

import (
	"time"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// Tree construction methods.
const (
	TreeMethodHist  = "hist"
	TreeMethodExact = "exact"
)

// Params contains all training hyperparameters.
type Params struct {
	// Basic parameters
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	NumLeaves       int     `json:"num_leaves"`
	MaxDepth        int     `json:"max_depth"`
	MinChildSamples int     `json:"min_child_samples"`
	MinChildWeight  float64 `json:"min_child_weight"`

	// Regularization
	RegAlpha  float64 `json:"reg_alpha"`
	RegLambda float64 `json:"reg_lambda"`
	Gamma     float64 `json:"gamma"`

	// Sampling
	Subsample       float64 `json:"subsample"`
	SubsampleFreq   int     `json:"subsample_freq"`
	ColsampleBytree float64 `json:"colsample_bytree"`

	// Histogram parameters
	MaxBin     int    `json:"max_bin"`
	TreeMethod string `json:"tree_method"`

	// Objective
	Objective  string  `json:"objective"`
	HuberDelta float64 `json:"huber_delta"`

	// Other
	RandomSeed    uint64        `json:"random_seed"`
	NJobs         int           `json:"n_jobs"`
	Verbosity     int           `json:"verbosity"`
	EarlyStopping int           `json:"early_stopping"`
	EvalMetric    string        `json:"eval_metric"`
	TimeLimit     time.Duration `json:"time_limit,omitempty"`
}

// DefaultParams mirrors the defaults of common GBDT libraries.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		LearningRate:    0.1,
		NumLeaves:       31,
		MaxDepth:        -1,
		MinChildSamples: 20,
		MinChildWeight:  1e-3,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		MaxBin:          255,
		TreeMethod:      TreeMethodHist,
		Objective:       ObjectiveL2,
		HuberDelta:      1.0,
		EvalMetric:      "rmse",
		NJobs:           -1,
	}
}

// Validate reports the first invalid hyperparameter.
func (p Params) Validate() error {
	switch {
	case p.NEstimators <= 0:
		return errors.NewValidationError("n_estimators", "must be positive", p.NEstimators)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	case p.NumLeaves < 2:
		return errors.NewValidationError("num_leaves", "must be at least 2", p.NumLeaves)
	case p.MinChildSamples < 1:
		return errors.NewValidationError("min_child_samples", "must be at least 1", p.MinChildSamples)
	case p.MinChildWeight < 0:
		return errors.NewValidationError("min_child_weight", "must be non-negative", p.MinChildWeight)
	case p.RegAlpha < 0:
		return errors.NewValidationError("reg_alpha", "must be non-negative", p.RegAlpha)
	case p.RegLambda < 0:
		return errors.NewValidationError("reg_lambda", "must be non-negative", p.RegLambda)
	case p.Gamma < 0:
		return errors.NewValidationError("gamma", "must be non-negative", p.Gamma)
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColsampleBytree <= 0 || p.ColsampleBytree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", p.ColsampleBytree)
	case p.MaxBin < 2:
		return errors.NewValidationError("max_bin", "must be at least 2", p.MaxBin)
	case p.TreeMethod != TreeMethodHist && p.TreeMethod != TreeMethodExact:
		return errors.NewValidationError("tree_method", "must be hist or exact", p.TreeMethod)
	case p.EarlyStopping < 0:
		return errors.NewValidationError("early_stopping", "must be non-negative", p.EarlyStopping)
	}
	if _, err := NewObjective(p.Objective, p.HuberDelta); err != nil {
		return err
	}
	return nil
}

// GetParams returns the hyperparameters keyed by their config names.
func (p Params) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      p.NEstimators,
		"learning_rate":     p.LearningRate,
		"num_leaves":        p.NumLeaves,
		"max_depth":         p.MaxDepth,
		"min_child_samples": p.MinChildSamples,
		"min_child_weight":  p.MinChildWeight,
		"reg_alpha":         p.RegAlpha,
		"reg_lambda":        p.RegLambda,
		"gamma":             p.Gamma,
		"subsample":         p.Subsample,
		"subsample_freq":    p.SubsampleFreq,
		"colsample_bytree":  p.ColsampleBytree,
		"max_bin":           p.MaxBin,
		"tree_method":       p.TreeMethod,
		"objective":         p.Objective,
		"huber_delta":       p.HuberDelta,
		"random_seed":       p.RandomSeed,
		"early_stopping":    p.EarlyStopping,
		"eval_metric":       p.EvalMetric,
	}
}

// SetParams updates the named hyperparameters. Unknown names are an error.
func (p *Params) SetParams(values map[string]float64) error {
	for k, v := range values {
		switch k {
		case "learning_rate":
			p.LearningRate = v
		case "max_depth":
			p.MaxDepth = int(v)
		case "num_leaves":
			p.NumLeaves = int(v)
		case "min_child_samples":
			p.MinChildSamples = int(v)
		case "min_child_weight":
			p.MinChildWeight = v
		case "reg_alpha":
			p.RegAlpha = v
		case "reg_lambda":
			p.RegLambda = v
		case "gamma":
			p.Gamma = v
		case "subsample":
			p.Subsample = v
		case "colsample_bytree":
			p.ColsampleBytree = v
		case "n_estimators":
			p.NEstimators = int(v)
		default:
			return errors.NewValidationError(k, "unknown hyperparameter", v)
		}
	}
	return nil
}
