package gbt

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Objective names.
const (
	ObjectiveL2    = "regression"
	ObjectiveL1    = "regression_l1"
	ObjectiveHuber = "huber"
)

// Objective defines the loss being boosted.
type Objective interface {
	// Gradient is the first derivative of the loss with respect to the prediction.
	Gradient(prediction, target float64) float64

	// Hessian is the second derivative, or a positive stand-in where the loss
	// has none.
	Hessian(prediction, target float64) float64

	Loss(prediction, target float64) float64

	// InitScore is the constant prediction the ensemble starts from.
	InitScore(targets []float64) float64

	Name() string
}

// NewObjective returns the objective registered under name. "l2", "mse" and
// "l1", "mae" are accepted as aliases.
func NewObjective(name string, huberDelta float64) (Objective, error) {
	switch name {
	case ObjectiveL2, "l2", "mse", "":
		return l2Objective{}, nil
	case ObjectiveL1, "l1", "mae":
		return l1Objective{}, nil
	case ObjectiveHuber:
		if huberDelta <= 0 {
			huberDelta = 1.0
		}
		return huberObjective{delta: huberDelta}, nil
	}
	return nil, errors.NewValidationError("objective", "unsupported objective", name)
}

type l2Objective struct{}

func (l2Objective) Gradient(prediction, target float64) float64 { return prediction - target }
func (l2Objective) Hessian(_, _ float64) float64                 { return 1.0 }
func (l2Objective) Loss(prediction, target float64) float64 {
	diff := prediction - target
	return 0.5 * diff * diff
}
func (l2Objective) InitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	return stat.Mean(targets, nil)
}
func (l2Objective) Name() string { return ObjectiveL2 }

type l1Objective struct{}

func (l1Objective) Gradient(prediction, target float64) float64 {
	diff := prediction - target
	switch {
	case math.Abs(diff) < 1e-7:
		return 0
	case diff > 0:
		return 1
	default:
		return -1
	}
}

// Hessian is constant 1 as in LightGBM's L1 implementation.
func (l1Objective) Hessian(_, _ float64) float64 { return 1.0 }
func (l1Objective) Loss(prediction, target float64) float64 {
	return math.Abs(prediction - target)
}
func (l1Objective) InitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	return median(targets)
}
func (l1Objective) Name() string { return ObjectiveL1 }

type huberObjective struct {
	delta float64
}

func (o huberObjective) Gradient(prediction, target float64) float64 {
	return errors.ClipValue(prediction-target, -o.delta, o.delta)
}

// Hessian is constant 1 in both regions, as in LightGBM.
func (o huberObjective) Hessian(_, _ float64) float64 { return 1.0 }

func (o huberObjective) Loss(prediction, target float64) float64 {
	diff := math.Abs(prediction - target)
	if diff <= o.delta {
		return 0.5 * diff * diff
	}
	return o.delta * (diff - 0.5*o.delta)
}

func (o huberObjective) InitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	return stat.Mean(targets, nil)
}

func (o huberObjective) Name() string { return ObjectiveHuber }

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
