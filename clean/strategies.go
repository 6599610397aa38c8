package clean

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// fillFunc replaces NaNs in place and returns how many were filled.
type fillFunc func(v []float64) int

// outlierFunc masks outliers with NaN in place and returns how many were masked.
type outlierFunc func(v []float64) int

var missingValueStrategies = map[string]fillFunc{
	"mean":        fillConstant(func(x []float64) float64 { return stat.Mean(x, nil) }),
	"median":      fillConstant(func(x []float64) float64 { return Quantile(x, 0.5) }),
	"mode":        fillConstant(mode),
	"ffill":       forwardFill,
	"bfill":       backwardFill,
	"interpolate": interpolate,
}

var outlierStrategies = map[string]outlierFunc{
	"iqr":    maskIQR,
	"zscore": maskZScore,
}

// present returns the non-NaN values of v.
func present(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

func fillConstant(stat func([]float64) float64) fillFunc {
	return func(v []float64) int {
		p := present(v)
		if len(p) == 0 || len(p) == len(v) {
			return 0
		}
		c := stat(p)
		n := 0
		for i, x := range v {
			if math.IsNaN(x) {
				v[i] = c
				n++
			}
		}
		return n
	}
}

// mode returns the most frequent value; ties go to the smallest.
func mode(p []float64) float64 {
	counts := make(map[float64]int, len(p))
	for _, x := range p {
		counts[x]++
	}
	best, bestN := math.NaN(), 0
	for x, n := range counts {
		if n > bestN || (n == bestN && x < best) {
			best, bestN = x, n
		}
	}
	return best
}

func forwardFill(v []float64) int {
	n := 0
	last := math.NaN()
	for i, x := range v {
		if math.IsNaN(x) {
			if !math.IsNaN(last) {
				v[i] = last
				n++
			}
			continue
		}
		last = x
	}
	return n
}

func backwardFill(v []float64) int {
	n := 0
	next := math.NaN()
	for i := len(v) - 1; i >= 0; i-- {
		if math.IsNaN(v[i]) {
			if !math.IsNaN(next) {
				v[i] = next
				n++
			}
			continue
		}
		next = v[i]
	}
	return n
}

// interpolate fills interior gaps linearly by position. Leading gaps stay
// missing, trailing gaps take the last observed value.
func interpolate(v []float64) int {
	n := 0
	prev := -1
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (x - v[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				v[j] = v[prev] + step*float64(j-prev)
				n++
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(v); j++ {
			v[j] = v[prev]
			n++
		}
	}
	return n
}

// Quantile is the linear-interpolation quantile (numpy's default) of the
// non-missing values of v.
func Quantile(v []float64, q float64) float64 {
	p := present(v)
	if len(p) == 0 {
		return math.NaN()
	}
	sort.Float64s(p)
	pos := q * float64(len(p)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return p[lo]
	}
	return p[lo] + (p[hi]-p[lo])*(pos-float64(lo))
}

// IQRBounds returns Q1-1.5*IQR and Q3+1.5*IQR.
func IQRBounds(v []float64) (lower, upper float64) {
	q1 := Quantile(v, 0.25)
	q3 := Quantile(v, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

func maskIQR(v []float64) int {
	lower, upper := IQRBounds(v)
	if math.IsNaN(lower) {
		return 0
	}
	n := 0
	for i, x := range v {
		if !math.IsNaN(x) && (x < lower || x > upper) {
			v[i] = math.NaN()
			n++
		}
	}
	return n
}

func maskZScore(v []float64) int {
	p := present(v)
	if len(p) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(p, nil)
	n := 0
	for i, x := range v {
		if !math.IsNaN(x) && math.Abs(x-mean) > 3*std {
			v[i] = math.NaN()
			n++
		}
	}
	return n
}

// textMode fills "" with the most frequent text value; ties go to the
// lexicographically smallest.
func textMode(v []string) int {
	counts := make(map[string]int)
	for _, s := range v {
		if s != "" {
			counts[s]++
		}
	}
	best, bestN := "", 0
	for s, n := range counts {
		if n > bestN || (n == bestN && s < best) {
			best, bestN = s, n
		}
	}
	if best == "" {
		return 0
	}
	n := 0
	for i, s := range v {
		if s == "" {
			v[i] = best
			n++
		}
	}
	return n
}
