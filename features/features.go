// Package features derives the model inputs from a preprocessed, time-indexed
// frame: calendar flags, lags, rolling statistics, cyclical encodings,
// time-of-day flags and an outlier flag on the target.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gbforecast/clean"
	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Options configures an Engineer.
type Options struct {
	Target         string
	TimeColumn     string
	Lags           []int
	RollingWindows []int
	HolidayCountry string
	DropNA         bool
	OutlierFlag    bool
}

// State is the fitted part of an Engineer.
type State struct {
	Fitted       bool    `json:"fitted"`
	OutlierLower float64 `json:"outlier_lower"`
	OutlierUpper float64 `json:"outlier_upper"`
}

// Engineer adds features to frames. For streams it keeps the tail of the
// previous chunk so lags and rolling windows continue across chunks.
type Engineer struct {
	opts     Options
	state    State
	holidays *HolidayCalendar
	tail     *frame.Frame
	logger   log.Logger
}

// New creates an unfitted Engineer.
func New(opts Options) (*Engineer, error) {
	for _, k := range opts.Lags {
		if k <= 0 {
			return nil, errors.NewValidationError("lags", "must be positive", k)
		}
	}
	for _, w := range opts.RollingWindows {
		if w < 2 {
			return nil, errors.NewValidationError("rolling_windows", "must be at least 2", w)
		}
	}
	h, err := NewHolidayCalendar(opts.HolidayCountry)
	if err != nil {
		return nil, err
	}
	return &Engineer{opts: opts, holidays: h, logger: log.GetLoggerWithName("features")}, nil
}

// NewFromState creates an Engineer with previously fitted state.
func NewFromState(opts Options, state State) (*Engineer, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	e.state = state
	return e, nil
}

// State returns the fitted state.
func (e *Engineer) State() State { return e.state }

// Lookback is the number of past rows a row's lag and rolling features need.
func (e *Engineer) Lookback() int {
	n := 0
	for _, k := range e.opts.Lags {
		n = max(n, k)
	}
	for _, w := range e.opts.RollingWindows {
		n = max(n, w)
	}
	return n
}

// RequiredColumns lists the columns Transform expects.
func (e *Engineer) RequiredColumns() []string {
	t := e.opts.TimeColumn
	return []string{e.opts.Target, t + "_year", t + "_month", t + "_day", t + "_hour", t + "_dayofweek"}
}

// Fit records the IQR outlier bounds of the target.
func (e *Engineer) Fit(f *frame.Frame) error {
	if err := e.check(f); err != nil {
		return err
	}
	y, _ := f.Float(e.opts.Target)
	lower, upper := clean.IQRBounds(y)
	if math.IsNaN(lower) {
		return errors.NewValueError("features.Fit", "target has no observed values")
	}
	e.state = State{Fitted: true, OutlierLower: lower, OutlierUpper: upper}
	e.logger.Debug("Fitted outlier bounds", "lower", lower, "upper", upper)
	return nil
}

// Transform adds every feature to a copy of f. Lags and rolling windows only see
// rows of f.
func (e *Engineer) Transform(f *frame.Frame) (*frame.Frame, error) {
	if err := e.check(f); err != nil {
		return nil, err
	}
	out := f.Copy()
	if err := e.addAll(out); err != nil {
		return nil, err
	}
	if e.opts.DropNA {
		before := out.Len()
		out = out.DropNaN()
		e.logger.Debug("Dropped rows with missing features", "dropped", before-out.Len())
	}
	e.logger.Info("Feature engineering completed", log.SamplesKey, out.Len(), log.FeaturesKey, len(out.Names()))
	return out, nil
}

// TransformChunk transforms the next chunk of a stream. Rows of the previous
// chunk's tail feed the lags of this chunk but are not returned again.
func (e *Engineer) TransformChunk(f *frame.Frame) (*frame.Frame, error) {
	if f.Len() == 0 {
		return f.Copy(), nil
	}
	if err := e.check(f); err != nil {
		return nil, err
	}
	combined := f
	carried := 0
	if e.tail != nil && e.tail.Len() > 0 {
		c, err := frame.Concat(e.tail, f)
		if err != nil {
			return nil, errors.Wrap(err, "features: chunk schema differs from previous chunk")
		}
		combined, carried = c, e.tail.Len()
	}
	if lb := e.Lookback(); lb > 0 {
		e.tail = combined.Tail(min(lb, combined.Len()))
	}

	out := combined.Copy()
	if err := e.addAll(out); err != nil {
		return nil, err
	}
	out = out.Slice(carried, out.Len())
	if e.opts.DropNA {
		out = out.DropNaN()
	}
	e.logger.Debug("Transformed chunk", log.SamplesKey, out.Len(), "carried", carried)
	return out, nil
}

// ResetStream forgets the tail kept by TransformChunk.
func (e *Engineer) ResetStream() { e.tail = nil }

func (e *Engineer) check(f *frame.Frame) error {
	var missing []string
	if !f.HasIndex() {
		missing = append(missing, e.opts.TimeColumn)
	}
	for _, c := range e.RequiredColumns() {
		if _, ok := f.Float(c); !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return errors.NewSchemaError("feature_engineering", missing)
	}
	return nil
}

func (e *Engineer) addAll(f *frame.Frame) error {
	t := e.opts.TimeColumn
	hour, _ := f.Float(t + "_hour")
	dow, _ := f.Float(t + "_dayofweek")
	month, _ := f.Float(t + "_month")
	day, _ := f.Float(t + "_day")
	y, _ := f.Float(e.opts.Target)
	n := f.Len()

	set := func(name string, v []float64) error {
		return f.SetFloat(name, v)
	}
	flag := func(pred func(i int) bool) []float64 {
		out := make([]float64, n)
		for i := range out {
			if pred(i) {
				out[i] = 1
			}
		}
		return out
	}

	weekend := flag(func(i int) bool { return dow[i] == 5 || dow[i] == 6 })
	idx := f.Index()
	holiday := flag(func(i int) bool { return !idx[i].IsZero() && e.holidays.IsHoliday(idx[i]) })
	cols := []struct {
		name string
		v    []float64
	}{
		{"is_weekend", weekend},
		{"is_holiday", holiday},
		{"is_new_year_eve", flag(func(i int) bool { return month[i] == 12 && day[i] == 31 })},
	}
	for _, c := range cols {
		if err := set(c.name, c.v); err != nil {
			return err
		}
	}

	for _, k := range e.opts.Lags {
		if err := set(fmt.Sprintf("lag_%d", k), Lag(y, k)); err != nil {
			return err
		}
	}
	for _, w := range e.opts.RollingWindows {
		mean, std := Rolling(y, w)
		if err := set(fmt.Sprintf("rolling_mean_%d", w), mean); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("rolling_std_%d", w), std); err != nil {
			return err
		}
	}

	for _, c := range []struct {
		name   string
		v      []float64
		period float64
	}{
		{t + "_hour", hour, 24},
		{t + "_dayofweek", dow, 7},
		{t + "_month", month, 12},
	} {
		sin := make([]float64, n)
		cos := make([]float64, n)
		for i, x := range c.v {
			sin[i] = math.Sin(2 * math.Pi * x / c.period)
			cos[i] = math.Cos(2 * math.Pi * x / c.period)
		}
		if err := set(c.name+"_sin", sin); err != nil {
			return err
		}
		if err := set(c.name+"_cos", cos); err != nil {
			return err
		}
	}

	hourHoliday := make([]float64, n)
	hourWeekend := make([]float64, n)
	for i := range hour {
		hourHoliday[i] = hour[i] * holiday[i]
		hourWeekend[i] = hour[i] * weekend[i]
	}
	tod := []struct {
		name   string
		lo, hi float64
	}{
		{"is_night", 0, 6},
		{"is_morning", 6, 12},
		{"is_noon", 12, 18},
		{"is_evening", 18, 24},
	}
	if err := set("hour_is_holiday", hourHoliday); err != nil {
		return err
	}
	if err := set("hour_is_weekend", hourWeekend); err != nil {
		return err
	}
	for _, b := range tod {
		if err := set(b.name, flag(func(i int) bool { return hour[i] >= b.lo && hour[i] < b.hi })); err != nil {
			return err
		}
	}

	if e.opts.OutlierFlag {
		lower, upper := e.state.OutlierLower, e.state.OutlierUpper
		if !e.state.Fitted {
			lower, upper = clean.IQRBounds(y)
		}
		if err := set("is_outlier", flag(func(i int) bool { return y[i] < lower || y[i] > upper })); err != nil {
			return err
		}
	}
	return nil
}

// Lag shifts v down by k positions; the first k values are missing.
func Lag(v []float64, k int) []float64 {
	out := make([]float64, len(v))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
			continue
		}
		out[i] = v[i-k]
	}
	return out
}

// Rolling returns the mean and sample standard deviation of the w values before
// each position. Windows that are incomplete or contain a missing value yield
// missing.
func Rolling(v []float64, w int) (mean, std []float64) {
	mean = make([]float64, len(v))
	std = make([]float64, len(v))
	for i := range v {
		if i < w {
			mean[i], std[i] = math.NaN(), math.NaN()
			continue
		}
		window := v[i-w : i]
		if hasNaN(window) {
			mean[i], std[i] = math.NaN(), math.NaN()
			continue
		}
		mean[i], std[i] = stat.MeanStdDev(window, nil)
	}
	return mean, std
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
