package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/YuminosukeSato/gbforecast/clean"
	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/ingest"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// Summary describes the cleaned dataset.
type Summary struct {
	Rows      int
	Columns   []string
	Start     time.Time
	End       time.Time
	Frequency time.Duration
	Gaps      int
	Missing   map[string]int
	Stats     string
	Preview   string
}

// Inspect ingests and cleans the raw data and summarises the result.
func Inspect(ctx context.Context, cfg *config.Config) (*Summary, error) {
	src, err := ingest.Open(ctx, ingestOptions(cfg))
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s", StageIngestion)
	}
	defer src.Close()

	cleaner := clean.New(cleanOptions(cfg))
	var parts []*frame.Frame
	for {
		raw, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", StageIngestion)
		}
		out, err := RunStage(ctx, StageCleaning, raw, func(_ context.Context, f *frame.Frame) (*frame.Frame, error) {
			out, _, err := cleaner.Clean(f)
			return out, err
		})
		if err != nil {
			return nil, err
		}
		parts = append(parts, out)
	}
	f, err := frame.Concat(parts...)
	if err != nil {
		return nil, err
	}
	return Summarize(f), nil
}

// Summarize computes a Summary of f.
func Summarize(f *frame.Frame) *Summary {
	s := &Summary{
		Rows:    f.Len(),
		Columns: f.Names(),
		Missing: map[string]int{},
		Stats:   f.Describe(),
		Preview: f.Render(previewRows),
	}
	for _, name := range f.Names() {
		n := 0
		if v, ok := f.Float(name); ok {
			for _, x := range v {
				if math.IsNaN(x) {
					n++
				}
			}
		} else if v, ok := f.Text(name); ok {
			for _, x := range v {
				if x == "" {
					n++
				}
			}
		}
		s.Missing[name] = n
	}
	if idx := f.Index(); len(idx) > 0 {
		s.Start, s.End = idx[0], idx[len(idx)-1]
		s.Frequency = InferFrequency(idx)
		if s.Frequency > 0 {
			for i := 1; i < len(idx); i++ {
				if idx[i].Sub(idx[i-1]) > s.Frequency {
					s.Gaps++
				}
			}
		}
	}
	return s
}

// String renders the summary for the terminal.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows: %d\ncolumns: %s\n", s.Rows, strings.Join(s.Columns, ", "))
	if !s.Start.IsZero() {
		fmt.Fprintf(&b, "range: %s .. %s\nfrequency: %s\ngaps: %d\n",
			s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339), s.Frequency, s.Gaps)
	}
	b.WriteString("missing values:\n")
	for _, name := range s.Columns {
		fmt.Fprintf(&b, "  %s: %d\n", name, s.Missing[name])
	}
	b.WriteString("\n")
	b.WriteString(s.Stats)
	b.WriteString("\n\n")
	b.WriteString(s.Preview)
	b.WriteString("\n")
	return b.String()
}
