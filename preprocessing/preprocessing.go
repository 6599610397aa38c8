// Package preprocessing applies the per-column preprocessing plan: datetime
// feature extraction, transformations, categorical encodings and scaling.
// Encoders and scalers are fitted once on training data and their state is
// carried into inference through State.
package preprocessing

import (
	"math"
	"sort"
	"time"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// ColumnPlan names the strategy of each step for one column. Empty strings skip
// the step.
type ColumnPlan struct {
	Scaling           string
	Encoding          string
	Transformation    string
	FeatureExtraction string
}

// State is the fitted, serialisable part of a Preprocessor.
type State struct {
	Fitted   bool                       `json:"fitted"`
	Labels   map[string][]string        `json:"labels,omitempty"`
	OneHot   map[string][]string        `json:"onehot,omitempty"`
	Standard map[string]*StandardScaler `json:"standard,omitempty"`
	MinMax   map[string]*MinMaxScaler   `json:"minmax,omitempty"`
}

func newState() *State {
	return &State{
		Labels:   map[string][]string{},
		OneHot:   map[string][]string{},
		Standard: map[string]*StandardScaler{},
		MinMax:   map[string]*MinMaxScaler{},
	}
}

// DatetimeParts are the suffixes produced by the datetime_features strategy.
var DatetimeParts = []string{"year", "month", "day", "hour", "minute", "second", "dayofweek"}

// Preprocessor runs a column plan over frames.
type Preprocessor struct {
	plan   map[string]ColumnPlan
	state  *State
	logger log.Logger
}

// New creates an unfitted Preprocessor.
func New(plan map[string]ColumnPlan) *Preprocessor {
	return &Preprocessor{plan: plan, state: newState(), logger: log.GetLoggerWithName("preprocessing")}
}

// NewFromState creates a Preprocessor that reuses previously fitted state.
func NewFromState(plan map[string]ColumnPlan, state *State) *Preprocessor {
	p := New(plan)
	if state != nil {
		p.state = state
	}
	return p
}

// State returns the fitted state.
func (p *Preprocessor) State() *State { return p.state }

// FitTransform fits encoders and scalers on f and returns the transformed copy.
func (p *Preprocessor) FitTransform(f *frame.Frame) (*frame.Frame, error) {
	p.state = newState()
	out, err := p.apply(f, true)
	if err != nil {
		return nil, err
	}
	p.state.Fitted = true
	return out, nil
}

// Transform applies the plan using the fitted state. Plans without stateful
// steps may be applied unfitted.
func (p *Preprocessor) Transform(f *frame.Frame) (*frame.Frame, error) {
	if !p.state.Fitted && p.stateful() {
		return nil, errors.NewNotFittedError("Preprocessor", "Transform")
	}
	return p.apply(f, false)
}

// Inverse maps values of col from model space back to raw units by undoing the
// column's scaling and then its log transform. Columns without a plan are
// returned unchanged.
func (p *Preprocessor) Inverse(col string, v []float64) ([]float64, error) {
	out := append([]float64(nil), v...)
	plan, ok := p.plan[col]
	if !ok {
		return out, nil
	}
	if plan.Encoding != "" {
		return nil, errors.NewValueError("Preprocessor.Inverse", "encoded column "+col+" cannot be inverted")
	}
	var err error
	switch plan.Scaling {
	case "standard":
		s, ok := p.state.Standard[col]
		if !ok {
			return nil, errors.NewNotFittedError("StandardScaler", col)
		}
		out, err = s.InverseTransform(out)
	case "minmax":
		m, ok := p.state.MinMax[col]
		if !ok {
			return nil, errors.NewNotFittedError("MinMaxScaler", col)
		}
		out, err = m.InverseTransform(out)
	}
	if err != nil {
		return nil, err
	}
	if plan.Transformation == "log" {
		for i, x := range out {
			out[i] = math.Exp(x)
		}
	}
	return out, nil
}

func (p *Preprocessor) stateful() bool {
	for _, c := range p.plan {
		if c.Encoding != "" || c.Scaling != "" {
			return true
		}
	}
	return false
}

// apply runs feature extraction, transformation, encoding then scaling for each
// planned column in name order.
func (p *Preprocessor) apply(f *frame.Frame, fit bool) (*frame.Frame, error) {
	if f.Len() == 0 {
		return f.Copy(), nil
	}
	out := f.Copy()
	cols := make([]string, 0, len(p.plan))
	for name := range p.plan {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	p.logger.Info("Starting preprocessing", log.SamplesKey, out.Len(), "fit", fit)
	for _, col := range cols {
		plan := p.plan[col]
		if err := p.step(out, col, "feature_extraction", plan.FeatureExtraction, map[string]stepFunc{
			"datetime_features": extractDatetime,
		}, fit); err != nil {
			return nil, err
		}
		if err := p.step(out, col, "transformation", plan.Transformation, map[string]stepFunc{
			"log":               logTransform,
			"datetime_features": extractDatetime,
		}, fit); err != nil {
			return nil, err
		}
		if err := p.step(out, col, "encoding", plan.Encoding, map[string]stepFunc{
			"label":  p.labelEncode,
			"onehot": p.oneHotEncode,
		}, fit); err != nil {
			return nil, err
		}
		if err := p.step(out, col, "scaling", plan.Scaling, map[string]stepFunc{
			"standard": p.standardScale,
			"minmax":   p.minMaxScale,
		}, fit); err != nil {
			return nil, err
		}
	}
	p.logger.Info("Completed preprocessing", log.ColumnsKey, out.Names())
	return out, nil
}

type stepFunc func(f *frame.Frame, col string, fit bool) error

func (p *Preprocessor) step(f *frame.Frame, col, step, key string, strategies map[string]stepFunc, fit bool) error {
	if key == "" {
		return nil
	}
	fn, ok := strategies[key]
	if !ok {
		p.logger.Warn("No strategy function found, skipping", "step", step, "strategy", key, log.ColumnKey, col)
		return nil
	}
	if !f.Has(col) && !(f.HasIndex() && f.IndexName() == col) {
		p.logger.Warn("Planned column not present, skipping", "step", step, log.ColumnKey, col)
		return nil
	}
	p.logger.Debug("Applying strategy", "step", step, "strategy", key, log.ColumnKey, col)
	return fn(f, col, fit)
}

// extractDatetime adds calendar parts of the index (or of a text column) with
// dayofweek counted from Monday = 0.
func extractDatetime(f *frame.Frame, col string, _ bool) error {
	var ts []time.Time
	if f.HasIndex() && f.IndexName() == col {
		ts = f.Index()
	} else if raw, ok := f.Text(col); ok {
		ts = make([]time.Time, len(raw))
		for i, s := range raw {
			ts[i], _ = frame.ParseTime(s)
		}
	} else {
		return errors.NewValidationError(col, "datetime_features needs a time index or text column", f.Kind(col).String())
	}

	parts := make([][]float64, len(DatetimeParts))
	for k := range parts {
		parts[k] = make([]float64, len(ts))
	}
	for i, t := range ts {
		if t.IsZero() {
			for k := range parts {
				parts[k][i] = math.NaN()
			}
			continue
		}
		parts[0][i] = float64(t.Year())
		parts[1][i] = float64(t.Month())
		parts[2][i] = float64(t.Day())
		parts[3][i] = float64(t.Hour())
		parts[4][i] = float64(t.Minute())
		parts[5][i] = float64(t.Second())
		parts[6][i] = float64((int(t.Weekday()) + 6) % 7)
	}
	for k, suffix := range DatetimeParts {
		if err := f.SetFloat(col+"_"+suffix, parts[k]); err != nil {
			return err
		}
	}
	return nil
}

// logTransform maps x > 0 to ln x and everything else to missing.
func logTransform(f *frame.Frame, col string, _ bool) error {
	v, ok := f.Float(col)
	if !ok {
		return errors.NewValidationError(col, "log transform needs a float column", f.Kind(col).String())
	}
	out := make([]float64, len(v))
	for i, x := range v {
		if x > 0 {
			out[i] = math.Log(x)
		} else {
			out[i] = math.NaN()
		}
	}
	return f.SetFloat(col, out)
}

// categories returns the column as strings; float columns are formatted.
func categories(f *frame.Frame, col string) []string {
	if v, ok := f.Text(col); ok {
		return v
	}
	v, _ := f.Float(col)
	out := make([]string, len(v))
	for i, x := range v {
		if !math.IsNaN(x) {
			out[i] = frame.FormatFloat(x)
		}
	}
	return out
}

func vocabulary(values []string) []string {
	set := map[string]struct{}{}
	for _, s := range values {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	vocab := make([]string, 0, len(set))
	for s := range set {
		vocab = append(vocab, s)
	}
	sort.Strings(vocab)
	return vocab
}

// labelEncode replaces the column by sorted category codes. Missing and unseen
// values get -1.
func (p *Preprocessor) labelEncode(f *frame.Frame, col string, fit bool) error {
	values := categories(f, col)
	if fit {
		p.state.Labels[col] = vocabulary(values)
	}
	vocab, ok := p.state.Labels[col]
	if !ok {
		return errors.NewNotFittedError("LabelEncoder", col)
	}
	codes := make(map[string]int, len(vocab))
	for i, s := range vocab {
		codes[s] = i
	}
	out := make([]float64, len(values))
	for i, s := range values {
		c, ok := codes[s]
		if !ok {
			c = -1
		}
		out[i] = float64(c)
	}
	return f.SetFloat(col, out)
}

// oneHotEncode adds one indicator column per fitted category and drops the
// source column.
func (p *Preprocessor) oneHotEncode(f *frame.Frame, col string, fit bool) error {
	values := categories(f, col)
	if fit {
		p.state.OneHot[col] = vocabulary(values)
	}
	vocab, ok := p.state.OneHot[col]
	if !ok {
		return errors.NewNotFittedError("OneHotEncoder", col)
	}
	f.Drop(col)
	for _, cat := range vocab {
		ind := make([]float64, len(values))
		for i, s := range values {
			if s == cat {
				ind[i] = 1
			}
		}
		if err := f.SetFloat(col+"_"+cat, ind); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preprocessor) standardScale(f *frame.Frame, col string, fit bool) error {
	v, ok := f.Float(col)
	if !ok {
		return errors.NewValidationError(col, "scaling needs a float column", f.Kind(col).String())
	}
	if fit {
		s := NewStandardScaler()
		if err := s.Fit(v); err != nil {
			return err
		}
		p.state.Standard[col] = s
	}
	s, ok := p.state.Standard[col]
	if !ok {
		return errors.NewNotFittedError("StandardScaler", col)
	}
	out, err := s.Transform(v)
	if err != nil {
		return err
	}
	return f.SetFloat(col, out)
}

func (p *Preprocessor) minMaxScale(f *frame.Frame, col string, fit bool) error {
	v, ok := f.Float(col)
	if !ok {
		return errors.NewValidationError(col, "scaling needs a float column", f.Kind(col).String())
	}
	if fit {
		m := NewMinMaxScaler()
		if err := m.Fit(v); err != nil {
			return err
		}
		p.state.MinMax[col] = m
	}
	m, ok := p.state.MinMax[col]
	if !ok {
		return errors.NewNotFittedError("MinMaxScaler", col)
	}
	out, err := m.Transform(v)
	if err != nil {
		return err
	}
	return f.SetFloat(col, out)
}
