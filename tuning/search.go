package tuning

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/metrics"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
	"github.com/YuminosukeSato/gbforecast/split"
)

// Search strategies.
const (
	StrategyGrid   = "grid"
	StrategyRandom = "random"
)

// Space maps a hyperparameter name to its candidate values.
type Space map[string][]float64

// SpaceFromConfig converts the configured search space, dropping empty lists.
func SpaceFromConfig(s config.SearchSpace) Space {
	space := Space{}
	add := func(name string, v []float64) {
		if len(v) > 0 {
			space[name] = v
		}
	}
	add("gamma", s.Gamma)
	add("reg_alpha", s.RegAlpha)
	add("reg_lambda", s.RegLambda)
	add("learning_rate", s.LearningRate)
	add("min_child_weight", s.MinChildWeight)
	add("subsample", s.Subsample)
	add("colsample_bytree", s.ColsampleBytree)
	if len(s.MaxDepth) > 0 {
		depths := make([]float64, len(s.MaxDepth))
		for i, d := range s.MaxDepth {
			depths[i] = float64(d)
		}
		space["max_depth"] = depths
	}
	return space
}

// Size is the number of points in the grid.
func (s Space) Size() int {
	if len(s) == 0 {
		return 1
	}
	n := 1
	for _, v := range s {
		n *= len(v)
	}
	return n
}

func (s Space) keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// point decodes grid position i. The last key varies fastest.
func (s Space) point(keys []string, i int) map[string]float64 {
	p := make(map[string]float64, len(keys))
	for k := len(keys) - 1; k >= 0; k-- {
		vals := s[keys[k]]
		p[keys[k]] = vals[i%len(vals)]
		i /= len(vals)
	}
	return p
}

// Trial is one scored candidate.
type Trial struct {
	Values    map[string]float64 `json:"values"`
	MeanScore float64            `json:"mean_score"`
	StdScore  float64            `json:"std_score"`
	Error     string             `json:"error,omitempty"`
}

// Result is the outcome of a search.
type Result struct {
	Metric     string             `json:"metric"`
	Best       gbt.Params         `json:"best_params"`
	BestValues map[string]float64 `json:"best_values"`
	BestScore  float64            `json:"best_score"`
	Trials     []Trial            `json:"trials"`
}

// Searcher runs grid or random search over Space around Base.
type Searcher struct {
	Base     gbt.Params
	Space    Space
	Strategy string
	NIter    int
	Splitter split.Splitter

	logger log.Logger
}

// NewSearcher creates a searcher.
func NewSearcher(base gbt.Params, space Space, strategy string, nIter int, splitter split.Splitter) *Searcher {
	return &Searcher{
		Base:     base,
		Space:    space,
		Strategy: strategy,
		NIter:    nIter,
		Splitter: splitter,
		logger:   log.GetLoggerWithName("tuning"),
	}
}

// Candidates lists the parameter points the strategy evaluates. Random search
// draws NIter distinct grid points with a generator seeded by Base.RandomSeed.
func (s *Searcher) Candidates() ([]map[string]float64, error) {
	keys := s.Space.keys()
	size := s.Space.Size()
	var order []int
	switch s.Strategy {
	case StrategyGrid, "":
		order = make([]int, size)
		for i := range order {
			order[i] = i
		}
	case StrategyRandom:
		if s.NIter <= 0 {
			return nil, errors.NewValidationError("n_iter", "must be positive", s.NIter)
		}
		n := s.NIter
		if n > size {
			s.logger.Warn("n_iter exceeds the search space, evaluating every point", "n_iter", n, "size", size)
			n = size
		}
		rng := rand.New(rand.NewPCG(s.Base.RandomSeed, s.Base.RandomSeed^0x5851f42d4c957f2d))
		seen := make(map[int]struct{}, n)
		for len(order) < n {
			i := rng.IntN(size)
			if _, dup := seen[i]; dup {
				continue
			}
			seen[i] = struct{}{}
			order = append(order, i)
		}
	default:
		return nil, errors.NewValidationError("strategy", "must be grid or random", s.Strategy)
	}

	out := make([]map[string]float64, len(order))
	for i, pos := range order {
		out[i] = s.Space.point(keys, pos)
	}
	return out, nil
}

// Search scores every candidate by mean cross-validated EvalMetric. Failed
// candidates are recorded and skipped; the search fails only when none
// succeeds.
func (s *Searcher) Search(ctx context.Context, X *mat.Dense, y []float64) (*Result, error) {
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("tuning")
	}
	_, higherIsBetter, err := metrics.Lookup(s.Base.EvalMetric)
	if err != nil {
		return nil, err
	}
	candidates, err := s.Candidates()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Starting hyperparameter search",
		"strategy", s.Strategy, "candidates", len(candidates), "folds", s.Splitter.NSplits())

	res := &Result{Metric: s.Base.EvalMetric, BestScore: math.NaN()}
	for i, values := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "hyperparameter search cancelled")
		}
		trial := Trial{Values: values, MeanScore: math.NaN()}
		params := s.Base
		if err := params.SetParams(values); err != nil {
			return nil, err
		}
		cv, err := CrossValidate(ctx, params, X, y, s.Splitter)
		if err != nil {
			trial.Error = err.Error()
			s.logger.Warn("Candidate failed", log.TrialKey, i, "values", values, "error", err)
			res.Trials = append(res.Trials, trial)
			continue
		}
		trial.MeanScore = cv.GetMeanScore()
		trial.StdScore = cv.GetStdScore()
		res.Trials = append(res.Trials, trial)
		s.logger.Info("Evaluated candidate", log.TrialKey, i, "values", values,
			log.MetricNameKey, res.Metric, log.MetricValueKey, trial.MeanScore, "std", trial.StdScore)

		if math.IsNaN(res.BestScore) || better(trial.MeanScore, res.BestScore, higherIsBetter) {
			res.BestScore = trial.MeanScore
			res.BestValues = values
			res.Best = params
		}
	}
	if res.BestValues == nil {
		return res, errors.NewModelError("Search", "every candidate failed", errors.ErrEmptyData)
	}
	s.logger.Info("Hyperparameter search finished", "best", res.BestValues, log.MetricValueKey, res.BestScore)
	return res, nil
}

func better(score, best float64, higherIsBetter bool) bool {
	if higherIsBetter {
		return score > best
	}
	return score < best
}
