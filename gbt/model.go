package gbt

import (
	"encoding/json"
	"io"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/core/parallel"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// Importance types.
const (
	ImportanceSplit = "split"
	ImportanceGain  = "gain"
)

// Model is a trained ensemble.
type Model struct {
	Trees         []Tree   `json:"trees"`
	InitScore     float64  `json:"init_score"`
	NumFeatures   int      `json:"num_features"`
	FeatureNames  []string `json:"feature_names,omitempty"`
	Objective     string   `json:"objective"`
	BestIteration int      `json:"best_iteration"`
	Params        Params   `json:"params"`
}

// PredictRow predicts one sample.
func (m *Model) PredictRow(row []float64) (float64, error) {
	if len(row) != m.NumFeatures {
		return 0, errors.NewDimensionError("Model.PredictRow", m.NumFeatures, len(row), 1)
	}
	return m.predictRow(row), nil
}

func (m *Model) predictRow(row []float64) float64 {
	pred := m.InitScore
	for i := range m.Trees {
		pred += m.Trees[i].Predict(row)
	}
	return pred
}

// Predict predicts every row of X, splitting rows across workers for large
// inputs.
func (m *Model) Predict(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("Model.Predict", m.NumFeatures, cols, 1)
	}
	out := make([]float64, rows)
	parallel.ParallelizeWithThreshold(rows, 1000, parallel.Workers(m.Params.NJobs), func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			out[i] = m.predictRow(row)
		}
	})
	return out, nil
}

// FeatureImportance returns split counts or total gain per feature, normalised
// to sum to one.
func (m *Model) FeatureImportance(kind string) ([]float64, error) {
	if kind != ImportanceSplit && kind != ImportanceGain {
		return nil, errors.NewValidationError("importance_type", "must be split or gain", kind)
	}
	importance := make([]float64, m.NumFeatures)
	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			if kind == ImportanceSplit {
				importance[node.Feature]++
			} else {
				importance[node.Feature] += node.Gain
			}
		}
	}
	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return importance, nil
}

// FeatureScore pairs a feature name with its importance.
type FeatureScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// TopFeatures returns up to n features sorted by descending importance.
func (m *Model) TopFeatures(kind string, n int) ([]FeatureScore, error) {
	imp, err := m.FeatureImportance(kind)
	if err != nil {
		return nil, err
	}
	out := make([]FeatureScore, len(imp))
	for i, s := range imp {
		name := ""
		if i < len(m.FeatureNames) {
			name = m.FeatureNames[i]
		}
		out[i] = FeatureScore{Name: name, Score: s}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}

// WriteJSON encodes the model as JSON.
func (m *Model) WriteJSON(w io.Writer) error {
	return errors.Wrap(json.NewEncoder(w).Encode(m), "encode model")
}

// ReadJSON decodes a model written by WriteJSON.
func ReadJSON(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decode model")
	}
	if len(m.Trees) == 0 && m.NumFeatures == 0 {
		return nil, errors.NewValueError("ReadJSON", "model has no trees")
	}
	return &m, nil
}
