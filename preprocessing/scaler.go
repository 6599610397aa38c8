package preprocessing

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/gbforecast/core/model"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardises one column to zero mean and unit variance.
// Missing values are ignored when fitting and pass through unchanged.
type StandardScaler struct {
	model.StateManager

	// Mean of the fitted column.
	Mean float64 `json:"mean"`

	// Scale is the population standard deviation, or 1 for constant columns.
	Scale float64 `json:"scale"`
}

// NewStandardScaler returns an unfitted StandardScaler.
//
// Example:
//
//	s := preprocessing.NewStandardScaler()
//	if err := s.Fit(train); err != nil {
//		return err
//	}
//	scaled, err := s.Transform(values)
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit computes the mean and standard deviation of v.
func (s *StandardScaler) Fit(v []float64) error {
	p := present(v)
	if len(p) == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	s.Mean = stat.Mean(p, nil)
	s.Scale = math.Sqrt(stat.PopVariance(p, nil))
	if math.Abs(s.Scale) < 1e-8 {
		s.Scale = 1.0
	}
	s.SetDimensions(1, len(p))
	s.SetFitted()
	return nil
}

// Transform returns (v - mean) / scale.
func (s *StandardScaler) Transform(v []float64) ([]float64, error) {
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - s.Mean) / s.Scale
	}
	return out, nil
}

// InverseTransform maps scaled values back to the original units.
func (s *StandardScaler) InverseTransform(v []float64) ([]float64, error) {
	if err := s.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x*s.Scale + s.Mean
	}
	return out, nil
}

func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return "StandardScaler()"
	}
	return fmt.Sprintf("StandardScaler(mean=%g, scale=%g)", s.Mean, s.Scale)
}

// MinMaxScaler maps one column linearly onto FeatureRange.
type MinMaxScaler struct {
	model.StateManager

	DataMin      float64    `json:"data_min"`
	DataMax      float64    `json:"data_max"`
	Scale        float64    `json:"scale"`
	FeatureRange [2]float64 `json:"feature_range"`
}

// NewMinMaxScaler returns an unfitted scaler onto [0, 1].
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{FeatureRange: [2]float64{0, 1}}
}

// Fit records the minimum and maximum of v.
func (m *MinMaxScaler) Fit(v []float64) error {
	p := present(v)
	if len(p) == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	lo, hi := p[0], p[0]
	for _, x := range p[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	m.DataMin, m.DataMax = lo, hi
	m.Scale = hi - lo
	if math.Abs(m.Scale) < 1e-8 {
		m.Scale = 1.0
	}
	m.SetDimensions(1, len(p))
	m.SetFitted()
	return nil
}

// Transform scales v. Values outside the fitted range map outside FeatureRange.
func (m *MinMaxScaler) Transform(v []float64) ([]float64, error) {
	if err := m.RequireFitted("MinMaxScaler", "Transform"); err != nil {
		return nil, err
	}
	width := m.FeatureRange[1] - m.FeatureRange[0]
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x-m.DataMin)/m.Scale*width + m.FeatureRange[0]
	}
	return out, nil
}

// InverseTransform maps scaled values back to the original units.
func (m *MinMaxScaler) InverseTransform(v []float64) ([]float64, error) {
	if err := m.RequireFitted("MinMaxScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	width := m.FeatureRange[1] - m.FeatureRange[0]
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x-m.FeatureRange[0])/width*m.Scale + m.DataMin
	}
	return out, nil
}

func (m *MinMaxScaler) String() string {
	if !m.IsFitted() {
		return fmt.Sprintf("MinMaxScaler(feature_range=%v)", m.FeatureRange)
	}
	return fmt.Sprintf("MinMaxScaler(feature_range=%v, data_min=%g, data_max=%g)", m.FeatureRange, m.DataMin, m.DataMax)
}

func present(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}
