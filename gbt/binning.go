package gbt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/core/parallel"
)

// binMapper maps raw feature values onto histogram bins. Bin i holds values
// x <= upper[i]; the last upper bound is +Inf. Missing values go to the extra
// bin at index len(upper).
type binMapper struct {
	upper []float64
}

func (b *binMapper) numBins() int { return len(b.upper) + 1 }

func (b *binMapper) missingBin() int { return len(b.upper) }

func (b *binMapper) bin(x float64) int {
	if math.IsNaN(x) {
		return b.missingBin()
	}
	return sort.SearchFloat64s(b.upper, x)
}

// newBinMapper builds bounds from the non-missing values of one feature. With
// exact set or few distinct values every distinct value gets its own bin;
// otherwise bins hold roughly equal numbers of rows.
func newBinMapper(values []float64, maxBin int, exact bool) *binMapper {
	sorted := make([]float64, 0, len(values))
	for _, x := range values {
		if !math.IsNaN(x) {
			sorted = append(sorted, x)
		}
	}
	if len(sorted) == 0 {
		return &binMapper{upper: []float64{math.Inf(1)}}
	}
	sort.Float64s(sorted)

	distinct := []float64{sorted[0]}
	counts := []int{1}
	for _, x := range sorted[1:] {
		if x == distinct[len(distinct)-1] {
			counts[len(counts)-1]++
			continue
		}
		distinct = append(distinct, x)
		counts = append(counts, 1)
	}

	var upper []float64
	if exact || len(distinct) <= maxBin {
		upper = make([]float64, 0, len(distinct))
		for i := 0; i+1 < len(distinct); i++ {
			upper = append(upper, (distinct[i]+distinct[i+1])/2)
		}
	} else {
		perBin := float64(len(sorted)) / float64(maxBin)
		acc := 0
		for i := 0; i+1 < len(distinct) && len(upper) < maxBin-1; i++ {
			acc += counts[i]
			if float64(acc) >= perBin*float64(len(upper)+1) {
				upper = append(upper, (distinct[i]+distinct[i+1])/2)
			}
		}
	}
	upper = append(upper, math.Inf(1))
	return &binMapper{upper: upper}
}

// dataset is the binned, column-major training matrix.
type dataset struct {
	rows    int
	mappers []*binMapper
	bins    [][]uint32
}

func newDataset(X mat.Matrix, maxBin int, exact bool, workers int) *dataset {
	rows, cols := X.Dims()
	ds := &dataset{rows: rows, mappers: make([]*binMapper, cols), bins: make([][]uint32, cols)}
	parallel.ParallelizeN(cols, workers, func(start, end int) {
		col := make([]float64, rows)
		for j := start; j < end; j++ {
			for i := 0; i < rows; i++ {
				col[i] = X.At(i, j)
			}
			m := newBinMapper(col, maxBin, exact)
			b := make([]uint32, rows)
			for i, x := range col {
				b[i] = uint32(m.bin(x))
			}
			ds.mappers[j] = m
			ds.bins[j] = b
		}
	})
	return ds
}
