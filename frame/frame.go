// Package frame implements the column-oriented table that flows between pipeline
// stages: an optional time index, float columns where NaN marks a missing value,
// and text columns where "" marks a missing value.
package frame

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// Kind is the storage kind of a column.
type Kind int

const (
	// KindMissing is returned for columns that do not exist.
	KindMissing Kind = iota
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	default:
		return "missing"
	}
}

// Frame is a table of equally long columns.
type Frame struct {
	n         int
	names     []string
	floats    map[string][]float64
	texts     map[string][]string
	index     []time.Time
	indexName string
}

// New returns an empty frame with no rows.
func New() *Frame {
	return &Frame{
		floats: make(map[string][]float64),
		texts:  make(map[string][]string),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.n }

// Names returns the column names in insertion order. The index is not a column.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether name is a column.
func (f *Frame) Has(name string) bool { return f.Kind(name) != KindMissing }

// Kind returns the storage kind of name.
func (f *Frame) Kind(name string) Kind {
	if _, ok := f.floats[name]; ok {
		return KindFloat
	}
	if _, ok := f.texts[name]; ok {
		return KindText
	}
	return KindMissing
}

// Float returns the backing slice of a float column.
func (f *Frame) Float(name string) ([]float64, bool) {
	v, ok := f.floats[name]
	return v, ok
}

// Text returns the backing slice of a text column.
func (f *Frame) Text(name string) ([]string, bool) {
	v, ok := f.texts[name]
	return v, ok
}

func (f *Frame) checkLen(op string, n int) error {
	if len(f.names) == 0 && f.index == nil && f.n == 0 {
		f.n = n
		return nil
	}
	if n != f.n {
		return errors.NewDimensionError(op, f.n, n, 0)
	}
	return nil
}

// SetFloat adds or replaces a float column. A text column of the same name is
// replaced.
func (f *Frame) SetFloat(name string, values []float64) error {
	if err := f.checkLen("SetFloat", len(values)); err != nil {
		return errors.Wrapf(err, "column %q", name)
	}
	if _, ok := f.texts[name]; ok {
		delete(f.texts, name)
	} else if _, ok := f.floats[name]; !ok {
		f.names = append(f.names, name)
	}
	f.floats[name] = values
	return nil
}

// SetText adds or replaces a text column.
func (f *Frame) SetText(name string, values []string) error {
	if err := f.checkLen("SetText", len(values)); err != nil {
		return errors.Wrapf(err, "column %q", name)
	}
	if _, ok := f.floats[name]; ok {
		delete(f.floats, name)
	} else if _, ok := f.texts[name]; !ok {
		f.names = append(f.names, name)
	}
	f.texts[name] = values
	return nil
}

// Drop removes columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
		delete(f.floats, n)
		delete(f.texts, n)
	}
	kept := f.names[:0]
	for _, n := range f.names {
		if !drop[n] {
			kept = append(kept, n)
		}
	}
	f.names = kept
}

// Rename renames columns according to mapping. Names absent from the frame are
// ignored; a rename onto an existing column replaces it.
func (f *Frame) Rename(mapping map[string]string) {
	for from, to := range mapping {
		if from == to || !f.Has(from) {
			continue
		}
		if f.Has(to) {
			f.Drop(to)
		}
		if v, ok := f.floats[from]; ok {
			delete(f.floats, from)
			f.floats[to] = v
		}
		if v, ok := f.texts[from]; ok {
			delete(f.texts, from)
			f.texts[to] = v
		}
		for i, n := range f.names {
			if n == from {
				f.names[i] = to
			}
		}
	}
	if to, ok := mapping[f.indexName]; ok && f.index != nil {
		f.indexName = to
	}
}

// HasIndex reports whether a time index is set.
func (f *Frame) HasIndex() bool { return f.index != nil }

// Index returns the time index. Zero times mark missing timestamps.
func (f *Frame) Index() []time.Time { return f.index }

// IndexName is the name of the column the index was built from.
func (f *Frame) IndexName() string { return f.indexName }

// SetIndex installs idx as the time index.
func (f *Frame) SetIndex(name string, idx []time.Time) error {
	if err := f.checkLen("SetIndex", len(idx)); err != nil {
		return err
	}
	f.index = idx
	f.indexName = name
	return nil
}

// Take returns a new frame holding the given rows in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{
		n:         len(rows),
		names:     f.Names(),
		floats:    make(map[string][]float64, len(f.floats)),
		texts:     make(map[string][]string, len(f.texts)),
		indexName: f.indexName,
	}
	for name, col := range f.floats {
		v := make([]float64, len(rows))
		for i, r := range rows {
			v[i] = col[r]
		}
		out.floats[name] = v
	}
	for name, col := range f.texts {
		v := make([]string, len(rows))
		for i, r := range rows {
			v[i] = col[r]
		}
		out.texts[name] = v
	}
	if f.index != nil {
		idx := make([]time.Time, len(rows))
		for i, r := range rows {
			idx[i] = f.index[r]
		}
		out.index = idx
	}
	return out
}

// Slice returns rows [start, end) as a new frame.
func (f *Frame) Slice(start, end int) *Frame {
	if start < 0 {
		start = 0
	}
	if end > f.n {
		end = f.n
	}
	if start > end {
		start = end
	}
	rows := make([]int, end-start)
	for i := range rows {
		rows[i] = start + i
	}
	return f.Take(rows)
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame { return f.Slice(0, n) }

// Tail returns the last n rows.
func (f *Frame) Tail(n int) *Frame { return f.Slice(f.n-n, f.n) }

// Copy returns a deep copy.
func (f *Frame) Copy() *Frame { return f.Slice(0, f.n) }

// Filter keeps the rows for which keep returns true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	rows := make([]int, 0, f.n)
	for i := 0; i < f.n; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return f.Take(rows)
}

// SortByIndex returns the frame stably sorted by its time index. Missing
// timestamps sort first.
func (f *Frame) SortByIndex() *Frame {
	if f.index == nil {
		return f
	}
	rows := make([]int, f.n)
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return f.index[rows[a]].Before(f.index[rows[b]])
	})
	return f.Take(rows)
}

// RowKey renders one row, index included, for duplicate detection.
func (f *Frame) RowKey(row int) string {
	var b strings.Builder
	if f.index != nil {
		b.WriteString(f.index[row].Format(time.RFC3339Nano))
	}
	for _, n := range f.names {
		b.WriteByte('\x1f')
		if v, ok := f.floats[n]; ok {
			if math.IsNaN(v[row]) {
				b.WriteString("NaN")
			} else {
				fmt.Fprintf(&b, "%v", v[row])
			}
		} else {
			b.WriteString(f.texts[n][row])
		}
	}
	return b.String()
}

// DropNaN removes rows with a missing value in any of cols, or in any column when
// cols is empty. A missing timestamp also drops the row.
func (f *Frame) DropNaN(cols ...string) *Frame {
	if len(cols) == 0 {
		cols = f.names
	}
	return f.Filter(func(row int) bool {
		if f.index != nil && f.index[row].IsZero() {
			return false
		}
		for _, c := range cols {
			if v, ok := f.floats[c]; ok && math.IsNaN(v[row]) {
				return false
			}
			if v, ok := f.texts[c]; ok && v[row] == "" {
				return false
			}
		}
		return true
	})
}

// Concat appends frames row-wise. Columns are matched by name; all frames must
// share the same column set and kinds. Empty frames are skipped.
func Concat(frames ...*Frame) (*Frame, error) {
	var nonEmpty []*Frame
	for _, fr := range frames {
		if fr != nil && (fr.n > 0 || len(fr.names) > 0) {
			nonEmpty = append(nonEmpty, fr)
		}
	}
	if len(nonEmpty) == 0 {
		return New(), nil
	}
	first := nonEmpty[0]
	out := New()
	out.indexName = first.indexName
	total := 0
	for _, fr := range nonEmpty {
		total += fr.n
	}
	out.n = total
	for _, name := range first.names {
		switch first.Kind(name) {
		case KindFloat:
			col := make([]float64, 0, total)
			for _, fr := range nonEmpty {
				v, ok := fr.floats[name]
				if !ok {
					return nil, errors.NewSchemaError("concat", []string{name})
				}
				col = append(col, v...)
			}
			out.floats[name] = col
		case KindText:
			col := make([]string, 0, total)
			for _, fr := range nonEmpty {
				v, ok := fr.texts[name]
				if !ok {
					return nil, errors.NewSchemaError("concat", []string{name})
				}
				col = append(col, v...)
			}
			out.texts[name] = col
		}
		out.names = append(out.names, name)
	}
	if first.index != nil {
		idx := make([]time.Time, 0, total)
		for _, fr := range nonEmpty {
			if fr.index == nil {
				return nil, errors.NewValueError("Concat", "frames disagree on having a time index")
			}
			idx = append(idx, fr.index...)
		}
		out.index = idx
	}
	return out, nil
}

// Matrix returns the named float columns as a rows×len(cols) dense matrix.
func (f *Frame) Matrix(cols []string) (*mat.Dense, error) {
	var missing []string
	for _, c := range cols {
		if _, ok := f.floats[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewSchemaError("matrix", missing)
	}
	if f.n == 0 || len(cols) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "matrix")
	}
	data := make([]float64, f.n*len(cols))
	for j, c := range cols {
		col := f.floats[c]
		for i := 0; i < f.n; i++ {
			data[i*len(cols)+j] = col[i]
		}
	}
	return mat.NewDense(f.n, len(cols), data), nil
}

// FloatNames returns the float column names in order.
func (f *Frame) FloatNames() []string {
	var out []string
	for _, n := range f.names {
		if _, ok := f.floats[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// String renders up to the first 5 rows.
func (f *Frame) String() string {
	return f.Render(5)
}

// Render renders up to max rows as an aligned text table.
func (f *Frame) Render(max int) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 2, 2, ' ', 0)
	var header []string
	if f.index != nil {
		header = append(header, f.indexName)
	}
	header = append(header, f.names...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	rows := f.n
	if max >= 0 && rows > max {
		rows = max
	}
	for i := 0; i < rows; i++ {
		var cells []string
		if f.index != nil {
			if f.index[i].IsZero() {
				cells = append(cells, "NaT")
			} else {
				cells = append(cells, f.index[i].Format("2006-01-02 15:04:05"))
			}
		}
		for _, n := range f.names {
			if v, ok := f.floats[n]; ok {
				cells = append(cells, fmt.Sprintf("%.4g", v[i]))
			} else {
				cells = append(cells, f.texts[n][i])
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(&b, "[%d rows x %d columns]", f.n, len(f.names))
	return b.String()
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006",
}

// ParseTime parses the timestamp formats found in the raw exports. Times without
// a zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsMissingToken(s) {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
