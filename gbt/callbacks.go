package gbt

import (
	"math"
	"sort"
	"time"

	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// CallbackEnv is passed to every callback after each boosting round.
type CallbackEnv struct {
	Iteration    int
	BeginTime    time.Time
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback runs after each boosting round. Setting env.StopTraining ends
// training; an error aborts it.
type Callback func(env *CallbackEnv) error

// LogEvaluation logs the evaluation results every period rounds.
func LogEvaluation(logger log.Logger, period int) Callback {
	if period <= 0 {
		period = 1
	}
	return func(env *CallbackEnv) error {
		if env.Iteration%period != 0 {
			return nil
		}
		names := make([]string, 0, len(env.EvalResults))
		for name := range env.EvalResults {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := []any{log.IterationKey, env.Iteration}
		for _, name := range names {
			fields = append(fields, name, env.EvalResults[name])
		}
		logger.Info("Boosting round", fields...)
		return nil
	}
}

// RecordEvaluation appends every evaluation result to history.
func RecordEvaluation(history map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		for name, value := range env.EvalResults {
			history[name] = append(history[name], value)
		}
		return nil
	}
}

// TimeLimit stops training once maxDuration has passed since BeginTime.
func TimeLimit(maxDuration time.Duration) Callback {
	return func(env *CallbackEnv) error {
		if time.Since(env.BeginTime) > maxDuration {
			env.StopTraining = true
		}
		return nil
	}
}

// EarlyStopping tracks the best validation score.
type EarlyStopping struct {
	Rounds          int
	BestScore       float64
	BestIteration   int
	RoundsNoImprove int
	Minimize        bool
}

// NewEarlyStopping creates a tracker; rounds <= 0 returns nil.
func NewEarlyStopping(rounds int, higherIsBetter bool) *EarlyStopping {
	if rounds <= 0 {
		return nil
	}
	best := math.Inf(1)
	if higherIsBetter {
		best = math.Inf(-1)
	}
	return &EarlyStopping{Rounds: rounds, BestScore: best, Minimize: !higherIsBetter}
}

// Update records the score of iteration and reports whether to stop.
func (es *EarlyStopping) Update(iteration int, score float64) bool {
	improved := score < es.BestScore
	if !es.Minimize {
		improved = score > es.BestScore
	}
	if improved {
		es.BestScore = score
		es.BestIteration = iteration
		es.RoundsNoImprove = 0
	} else {
		es.RoundsNoImprove++
	}
	return es.RoundsNoImprove >= es.Rounds
}
