package frame

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

var missingTokens = map[string]bool{
	"":      true,
	"na":    true,
	"nan":   true,
	"null":  true,
	"none":  true,
	"<nil>": true,
}

// IsMissingToken reports whether a raw cell denotes a missing value.
func IsMissingToken(s string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(s))]
}

// InferColumn types a raw column: float when every non-missing cell parses as a
// number, text otherwise. Missing cells become NaN or "".
func InferColumn(raw []string) (floats []float64, texts []string, kind Kind) {
	floats = make([]float64, len(raw))
	for i, s := range raw {
		if IsMissingToken(s) {
			floats[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			texts = make([]string, len(raw))
			for j, t := range raw {
				if !IsMissingToken(t) {
					texts[j] = t
				}
			}
			return nil, texts, KindText
		}
		floats[i] = v
	}
	return floats, nil, KindFloat
}

// FromRecords builds a frame from a header and string rows. Short rows are padded
// with missing values.
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	f := New()
	f.n = len(rows)
	for j, name := range header {
		raw := make([]string, len(rows))
		for i, r := range rows {
			if j < len(r) {
				raw[i] = r[j]
			}
		}
		if err := f.setInferred(name, raw); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Frame) setInferred(name string, raw []string) error {
	if f.Has(name) {
		return errors.NewValidationError(name, "duplicate column name", name)
	}
	floats, texts, kind := InferColumn(raw)
	if kind == KindFloat {
		return f.SetFloat(name, floats)
	}
	return f.SetText(name, texts)
}

// FromDataFrame converts a gota DataFrame, re-typing every column with
// InferColumn so that files of different formats agree on kinds.
func FromDataFrame(df dataframe.DataFrame) (*Frame, error) {
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "dataframe")
	}
	f := New()
	f.n = df.Nrow()
	for _, name := range df.Names() {
		s := df.Col(name)
		raw := s.Records()
		nan := s.IsNaN()
		for i := range raw {
			if nan[i] {
				raw[i] = ""
			}
		}
		if err := f.setInferred(name, raw); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ToDataFrame converts the frame, index included as a string column, to gota.
func (f *Frame) ToDataFrame() dataframe.DataFrame {
	var cols []series.Series
	if f.index != nil {
		idx := make([]string, f.n)
		for i, t := range f.index {
			if !t.IsZero() {
				idx[i] = t.Format("2006-01-02 15:04:05")
			}
		}
		cols = append(cols, series.New(idx, series.String, f.indexName))
	}
	for _, name := range f.names {
		if v, ok := f.floats[name]; ok {
			cols = append(cols, series.New(v, series.Float, name))
		} else {
			cols = append(cols, series.New(f.texts[name], series.String, name))
		}
	}
	return dataframe.New(cols...)
}

// Describe returns summary statistics of the float columns (count, mean, std,
// min, quartiles, max).
func (f *Frame) Describe() string {
	names := f.FloatNames()
	if f.n == 0 || len(names) == 0 {
		return "(no numeric columns)"
	}
	cols := make([]series.Series, 0, len(names))
	for _, name := range names {
		cols = append(cols, series.New(f.floats[name], series.Float, name))
	}
	return dataframe.New(cols...).Describe().String()
}

// FromColumns builds a frame from raw string columns, typing each with
// InferColumn.
func FromColumns(names []string, raw [][]string) (*Frame, error) {
	if len(names) != len(raw) {
		return nil, errors.NewDimensionError("FromColumns", len(names), len(raw), 1)
	}
	f := New()
	for j, name := range names {
		if j > 0 && len(raw[j]) != f.n {
			return nil, errors.NewDimensionError("FromColumns", f.n, len(raw[j]), 0)
		}
		f.n = len(raw[j])
		if err := f.setInferred(name, raw[j]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FormatFloat renders x the way it would appear in a CSV cell; NaN renders
// as the empty string.
func FormatFloat(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// FromMaps builds a frame from JSON-style records. Columns are ordered by
// first appearance; keys absent from a record are missing in that row.
func FromMaps(records []map[string]any) (*Frame, error) {
	var names []string
	seen := map[string]bool{}
	for _, r := range records {
		keys := make([]string, 0, len(r))
		for k := range r {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			names = append(names, k)
		}
	}
	raw := make([][]string, len(names))
	for j, name := range names {
		col := make([]string, len(records))
		for i, r := range records {
			col[i] = cell(r[name])
		}
		raw[j] = col
	}
	if len(names) == 0 {
		return New(), nil
	}
	return FromColumns(names, raw)
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return FormatFloat(x)
	case float32:
		return FormatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
