// Package split divides time-ordered samples into training and evaluation
// sets without looking ahead.
package split

import (
	"math"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Fold holds the row positions of one train/test split.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// Splitter generates folds for n time-ordered samples.
type Splitter interface {
	Split(n int) ([]Fold, error)
	NSplits() int
}

// Holdout returns the first ratio of n rows for training and the rest for
// testing. Rows are never shuffled; shuffle only triggers a warning.
func Holdout(n int, ratio float64, shuffle bool) (Fold, error) {
	if ratio <= 0 || ratio >= 1 {
		return Fold{}, errors.NewValidationError("split_ratio", "must be in (0, 1)", ratio)
	}
	if shuffle {
		log.GetLoggerWithName("split").Warn("shuffle is ignored for time series, splitting chronologically")
	}
	cut := int(math.Round(float64(n) * ratio))
	if cut < 1 || cut >= n {
		return Fold{}, errors.NewValueError("Holdout", "too few rows for the requested split ratio")
	}
	return Fold{TrainIndices: positions(0, cut), TestIndices: positions(cut, n)}, nil
}

// Frame splits f chronologically by ratio.
func Frame(f *frame.Frame, ratio float64, shuffle bool) (train, test *frame.Frame, err error) {
	fold, err := Holdout(f.Len(), ratio, shuffle)
	if err != nil {
		return nil, nil, err
	}
	return f.Take(fold.TrainIndices), f.Take(fold.TestIndices), nil
}

// TimeSeriesSplit yields expanding-window folds: each test window follows its
// training window, separated by Gap rows.
type TimeSeriesSplit struct {
	Splits int
	Gap    int
	// MaxTrainSize caps the training window when positive.
	MaxTrainSize int
	// TestSize defaults to n / (Splits + 1).
	TestSize int
}

// NewTimeSeriesSplit creates a splitter with nSplits folds.
func NewTimeSeriesSplit(nSplits, gap int) *TimeSeriesSplit {
	return &TimeSeriesSplit{Splits: nSplits, Gap: gap}
}

// NSplits returns the number of folds.
func (s *TimeSeriesSplit) NSplits() int { return s.Splits }

// Split generates the folds.
func (s *TimeSeriesSplit) Split(n int) ([]Fold, error) {
	if s.Splits < 2 {
		return nil, errors.NewValidationError("cv", "must be at least 2", s.Splits)
	}
	if s.Gap < 0 {
		return nil, errors.NewValidationError("cv_gap", "must be non-negative", s.Gap)
	}
	testSize := s.TestSize
	if testSize <= 0 {
		testSize = n / (s.Splits + 1)
	}
	if testSize < 1 || s.Splits+1 > n {
		return nil, errors.NewValueError("TimeSeriesSplit", "too many splits for the number of samples")
	}
	firstTest := n - s.Splits*testSize
	if firstTest-s.Gap < 1 {
		return nil, errors.NewValueError("TimeSeriesSplit", "gap leaves no training rows in the first fold")
	}

	folds := make([]Fold, s.Splits)
	for i := range folds {
		testStart := firstTest + i*testSize
		trainEnd := testStart - s.Gap
		trainStart := 0
		if s.MaxTrainSize > 0 && trainEnd > s.MaxTrainSize {
			trainStart = trainEnd - s.MaxTrainSize
		}
		folds[i] = Fold{
			TrainIndices: positions(trainStart, trainEnd),
			TestIndices:  positions(testStart, testStart+testSize),
		}
	}
	return folds, nil
}

func positions(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
