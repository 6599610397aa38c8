package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/preprocessing"
)

// hourlyFrame builds n hourly rows from start with the datetime parts already
// extracted, the way preprocessing leaves them.
func hourlyFrame(t *testing.T, start time.Time, y []float64) *frame.Frame {
	t.Helper()
	idx := make([]time.Time, len(y))
	for i := range idx {
		idx[i] = start.Add(time.Duration(i) * time.Hour)
	}
	f := frame.New()
	require.NoError(t, f.SetIndex("datetime", idx))
	require.NoError(t, f.SetFloat("aep_mw", y))
	p := preprocessing.New(map[string]preprocessing.ColumnPlan{"datetime": {FeatureExtraction: "datetime_features"}})
	out, err := p.Transform(f)
	require.NoError(t, err)
	return out
}

func seq(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i + 1)
	}
	return v
}

func opts() Options {
	return Options{
		Target:         "aep_mw",
		TimeColumn:     "datetime",
		Lags:           []int{2},
		RollingWindows: []int{3},
		HolidayCountry: "US",
		OutlierFlag:    true,
	}
}

func TestLagAndRolling(t *testing.T) {
	v := []float64{1, 2, 3, 4, 5}
	lag := Lag(v, 2)
	assert.True(t, math.IsNaN(lag[0]))
	assert.True(t, math.IsNaN(lag[1]))
	assert.Equal(t, []float64{1, 2, 3}, lag[2:])

	mean, std := Rolling(v, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(mean[i]))
		assert.True(t, math.IsNaN(std[i]))
	}
	assert.Equal(t, []float64{2, 3}, mean[3:])
	assert.InDeltaSlice(t, []float64{1, 1}, std[3:], 1e-12)

	mean, _ = Rolling([]float64{1, math.NaN(), 3, 4, 5}, 2)
	assert.True(t, math.IsNaN(mean[2]))
	assert.True(t, math.IsNaN(mean[3]))
	assert.Equal(t, 3.5, mean[4])
}

func TestTransformFlags(t *testing.T) {
	// 2017-12-31 20:00 UTC (Sunday) through 2018-01-01 03:00 (Monday, New Year)
	start := time.Date(2017, 12, 31, 20, 0, 0, 0, time.UTC)
	f := hourlyFrame(t, start, seq(8))
	e, err := New(opts())
	require.NoError(t, err)
	out, err := e.Transform(f)
	require.NoError(t, err)

	col := func(name string) []float64 {
		v, ok := out.Float(name)
		require.True(t, ok, name)
		return v
	}
	assert.Equal(t, []float64{1, 1, 1, 1, 0, 0, 0, 0}, col("is_weekend"))
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 1, 1, 1}, col("is_holiday"))
	assert.Equal(t, []float64{1, 1, 1, 1, 0, 0, 0, 0}, col("is_new_year_eve"))
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 1, 2, 3}, col("hour_is_holiday"))
	assert.Equal(t, []float64{20, 21, 22, 23, 0, 0, 0, 0}, col("hour_is_weekend"))
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 1, 1, 1}, col("is_night"))
	assert.Equal(t, []float64{1, 1, 1, 1, 0, 0, 0, 0}, col("is_evening"))
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 0}, col("is_morning"))
	assert.InDelta(t, math.Sin(2*math.Pi*20/24), col("datetime_hour_sin")[0], 1e-12)
	assert.InDelta(t, math.Cos(2*math.Pi*6/7), col("datetime_dayofweek_cos")[0], 1e-12)
	assert.InDelta(t, math.Sin(2*math.Pi*12/12), col("datetime_month_sin")[0], 1e-12)
	assert.True(t, out.Has("lag_2"))
	assert.True(t, out.Has("rolling_mean_3"))
	assert.True(t, out.Has("rolling_std_3"))
	assert.Equal(t, make([]float64, 8), col("is_outlier"))
}

func TestObservedHoliday(t *testing.T) {
	// Independence Day 2021 fell on a Sunday and was observed on Monday July 5.
	f := hourlyFrame(t, time.Date(2021, 7, 5, 12, 0, 0, 0, time.UTC), seq(1))
	e, err := New(opts())
	require.NoError(t, err)
	out, err := e.Transform(f)
	require.NoError(t, err)
	v, _ := out.Float("is_holiday")
	assert.Equal(t, []float64{1}, v)
}

func TestDropNA(t *testing.T) {
	o := opts()
	o.DropNA = true
	e, err := New(o)
	require.NoError(t, err)
	out, err := e.Transform(hourlyFrame(t, time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC), seq(10)))
	require.NoError(t, err)
	assert.Equal(t, 10-e.Lookback(), out.Len())
	lag, _ := out.Float("lag_2")
	assert.Equal(t, 2.0, lag[0])
}

func TestMissingColumns(t *testing.T) {
	f := frame.New()
	require.NoError(t, f.SetFloat("aep_mw", []float64{1}))
	e, err := New(opts())
	require.NoError(t, err)
	_, err = e.Transform(f)
	var se *errors.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Missing, "datetime_hour")
	assert.Contains(t, se.Missing, "datetime")
}

func TestFittedOutlierBounds(t *testing.T) {
	train := hourlyFrame(t, time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC), []float64{10, 11, 12, 13, 14})
	e, err := New(opts())
	require.NoError(t, err)
	require.NoError(t, e.Fit(train))
	assert.True(t, e.State().Fitted)

	// on its own this frame has no outliers; against training bounds 100 is one
	test := hourlyFrame(t, time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC), []float64{100, 100, 12})
	out, err := e.Transform(test)
	require.NoError(t, err)
	v, _ := out.Float("is_outlier")
	assert.Equal(t, []float64{1, 1, 0}, v)

	e2, err := NewFromState(opts(), e.State())
	require.NoError(t, err)
	out, err = e2.Transform(test)
	require.NoError(t, err)
	v, _ = out.Float("is_outlier")
	assert.Equal(t, []float64{1, 1, 0}, v)
}

func TestStreamingMatchesBatch(t *testing.T) {
	o := opts()
	o.DropNA = true
	o.OutlierFlag = false
	full := hourlyFrame(t, time.Date(2018, 5, 1, 0, 0, 0, 0, time.UTC), seq(12))

	batchEng, err := New(o)
	require.NoError(t, err)
	batch, err := batchEng.Transform(full)
	require.NoError(t, err)

	streamEng, err := New(o)
	require.NoError(t, err)
	var parts []*frame.Frame
	for _, r := range [][2]int{{0, 5}, {5, 7}, {7, 12}} {
		out, err := streamEng.TransformChunk(full.Slice(r[0], r[1]))
		require.NoError(t, err)
		parts = append(parts, out)
	}
	streamed, err := frame.Concat(parts...)
	require.NoError(t, err)

	require.Equal(t, batch.Len(), streamed.Len())
	assert.Equal(t, batch.Index(), streamed.Index())
	for _, name := range []string{"lag_2", "rolling_mean_3", "rolling_std_3"} {
		want, _ := batch.Float(name)
		got, _ := streamed.Float(name)
		assert.InDeltaSlice(t, want, got, 1e-12, name)
	}
}

func TestOptionValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"zero lag", func(o *Options) { o.Lags = []int{0} }},
		{"window of one", func(o *Options) { o.RollingWindows = []int{1} }},
		{"unknown country", func(o *Options) { o.HolidayCountry = "XX" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := opts()
			tt.modify(&o)
			_, err := New(o)
			assert.Error(t, err)
		})
	}
}
