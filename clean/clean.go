// Package clean turns raw frames into a time-indexed, deduplicated series with
// outliers masked and missing values filled.
package clean

import (
	"math"
	"sort"
	"time"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// ColumnPlan names the strategies for one column. Empty strings skip the step.
type ColumnPlan struct {
	MissingValue     string
	OutlierDetection string
}

// Options configures a Cleaner.
type Options struct {
	TimeColumn     string
	RenameMap      map[string]string
	DropDuplicates bool
	Columns        map[string]ColumnPlan
}

// Report counts what a Clean call changed.
type Report struct {
	Coerced         int
	Duplicates      int
	TimeDuplicates  int
	SeenDuplicates  int
	MissingTime     int
	Outliers        map[string]int
	Filled          map[string]int
	SkippedStrategy []string
}

// Cleaner applies the cleaning steps. It remembers timestamps across calls so
// that consecutive chunks of one stream are deduplicated against each other.
type Cleaner struct {
	opts   Options
	seen   map[int64]struct{}
	logger log.Logger
}

// New creates a Cleaner.
func New(opts Options) *Cleaner {
	return &Cleaner{
		opts:   opts,
		seen:   make(map[int64]struct{}),
		logger: log.GetLoggerWithName("clean"),
	}
}

// Reset forgets timestamps seen by earlier calls.
func (c *Cleaner) Reset() {
	c.seen = make(map[int64]struct{})
}

// Clean runs rename, datetime conversion, sort, deduplication and the column
// plan over f. f itself is not modified.
func (c *Cleaner) Clean(f *frame.Frame) (*frame.Frame, Report, error) {
	rep := Report{Outliers: map[string]int{}, Filled: map[string]int{}}
	if f.Len() == 0 && len(f.Names()) == 0 {
		return f, rep, nil
	}
	out := f.Copy()

	if len(c.opts.RenameMap) > 0 {
		out.Rename(c.opts.RenameMap)
		c.logger.Debug("Renamed columns", log.ColumnsKey, out.Names())
	}

	var err error
	out, err = c.convertTime(out, &rep)
	if err != nil {
		return nil, rep, err
	}
	out = out.SortByIndex()

	if c.opts.DropDuplicates {
		before := out.Len()
		out = dropDuplicates(out)
		rep.Duplicates = before - out.Len()
		c.logger.Info("Dropped duplicate rows", "dropped", rep.Duplicates)
	}

	if out.HasIndex() {
		before := out.Len()
		out = dropTimeDuplicates(out)
		rep.TimeDuplicates = before - out.Len()
		if rep.TimeDuplicates > 0 {
			c.logger.Warn("Removed rows with duplicate timestamps", "dropped", rep.TimeDuplicates)
		}

		before = out.Len()
		idx := out.Index()
		out = out.Filter(func(row int) bool {
			_, dup := c.seen[idx[row].UnixNano()]
			return !dup
		})
		rep.SeenDuplicates = before - out.Len()
		if rep.SeenDuplicates > 0 {
			c.logger.Warn("Removed rows already seen in an earlier chunk", "dropped", rep.SeenDuplicates)
		}
		for _, t := range out.Index() {
			c.seen[t.UnixNano()] = struct{}{}
		}
	}

	c.applyPlan(out, &rep)
	return out, rep, nil
}

// convertTime moves the time column into the index. Unparseable values are
// counted, reported as a warning and their rows dropped.
func (c *Cleaner) convertTime(f *frame.Frame, rep *Report) (*frame.Frame, error) {
	col := c.opts.TimeColumn
	if col == "" || f.HasIndex() {
		return f, nil
	}
	raw := make([]string, f.Len())
	switch f.Kind(col) {
	case frame.KindText:
		v, _ := f.Text(col)
		copy(raw, v)
	case frame.KindFloat:
		// numeric columns are taken as unix seconds
		v, _ := f.Float(col)
		idx := make([]time.Time, len(v))
		for i, x := range v {
			if !math.IsNaN(x) {
				idx[i] = time.Unix(int64(x), 0).UTC()
			}
		}
		f.Drop(col)
		if err := f.SetIndex(col, idx); err != nil {
			return nil, err
		}
		return c.dropMissingTime(f, rep), nil
	default:
		c.logger.Error("Datetime column not found", log.ColumnKey, col, log.ColumnsKey, f.Names())
		return f, nil
	}

	idx := make([]time.Time, len(raw))
	nonNull, coerced := 0, 0
	for i, s := range raw {
		if frame.IsMissingToken(s) {
			continue
		}
		nonNull++
		t, ok := frame.ParseTime(s)
		if !ok {
			coerced++
			continue
		}
		idx[i] = t
	}
	if coerced > 0 {
		rep.Coerced = coerced
		errors.Warn(errors.NewDataConversionWarning(col, "text", "datetime", coerced, "unparseable timestamp"))
	} else {
		c.logger.Debug("Converted column to datetime", log.ColumnKey, col, log.SamplesKey, nonNull)
	}
	f.Drop(col)
	if err := f.SetIndex(col, idx); err != nil {
		return nil, err
	}
	return c.dropMissingTime(f, rep), nil
}

func (c *Cleaner) dropMissingTime(f *frame.Frame, rep *Report) *frame.Frame {
	before := f.Len()
	out := f.Filter(func(row int) bool { return !f.Index()[row].IsZero() })
	rep.MissingTime = before - out.Len()
	return out
}

func dropDuplicates(f *frame.Frame) *frame.Frame {
	seen := make(map[string]struct{}, f.Len())
	return f.Filter(func(row int) bool {
		k := f.RowKey(row)
		if _, ok := seen[k]; ok {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

func dropTimeDuplicates(f *frame.Frame) *frame.Frame {
	seen := make(map[int64]struct{}, f.Len())
	idx := f.Index()
	return f.Filter(func(row int) bool {
		k := idx[row].UnixNano()
		if _, ok := seen[k]; ok {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

// applyPlan runs every outlier strategy before any missing-value strategy, so
// masked outliers are filled in the same pass.
func (c *Cleaner) applyPlan(f *frame.Frame, rep *Report) {
	cols := make([]string, 0, len(c.opts.Columns))
	for name := range c.opts.Columns {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	for _, name := range cols {
		key := c.opts.Columns[name].OutlierDetection
		if key == "" || name == c.opts.TimeColumn {
			continue
		}
		fn, ok := outlierStrategies[key]
		if !ok {
			c.skip(rep, "outlier_detection", key, name)
			continue
		}
		v, ok := f.Float(name)
		if !ok {
			c.skip(rep, "outlier_detection", key, name)
			continue
		}
		rep.Outliers[name] = fn(v)
		c.logger.Debug("Masked outliers", log.ColumnKey, name, "strategy", key, "count", rep.Outliers[name])
	}

	for _, name := range cols {
		key := c.opts.Columns[name].MissingValue
		if key == "" || name == c.opts.TimeColumn {
			continue
		}
		switch f.Kind(name) {
		case frame.KindFloat:
			fn, ok := missingValueStrategies[key]
			if !ok {
				c.skip(rep, "missing_value", key, name)
				continue
			}
			v, _ := f.Float(name)
			rep.Filled[name] = fn(v)
		case frame.KindText:
			v, _ := f.Text(name)
			switch key {
			case "mode":
				rep.Filled[name] = textMode(v)
			case "ffill":
				rep.Filled[name] = fillText(v, false)
			case "bfill":
				rep.Filled[name] = fillText(v, true)
			default:
				c.skip(rep, "missing_value", key, name)
				continue
			}
		default:
			c.skip(rep, "missing_value", key, name)
			continue
		}
		c.logger.Debug("Filled missing values", log.ColumnKey, name, "strategy", key, "count", rep.Filled[name])
	}
}

func (c *Cleaner) skip(rep *Report, step, key, column string) {
	c.logger.Warn("No applicable strategy, skipping", "step", step, "strategy", key, log.ColumnKey, column)
	rep.SkippedStrategy = append(rep.SkippedStrategy, step+":"+key+":"+column)
}

func fillText(v []string, backward bool) int {
	n := 0
	last := ""
	for k := 0; k < len(v); k++ {
		i := k
		if backward {
			i = len(v) - 1 - k
		}
		if v[i] == "" {
			if last != "" {
				v[i] = last
				n++
			}
			continue
		}
		last = v[i]
	}
	return n
}
