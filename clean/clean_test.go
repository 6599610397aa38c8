package clean

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

func rawFrame(t *testing.T, rows [][]string) *frame.Frame {
	t.Helper()
	f, err := frame.FromRecords([]string{"Datetime", "AEP_MW"}, rows)
	require.NoError(t, err)
	return f
}

func defaultOptions() Options {
	return Options{
		TimeColumn:     "datetime",
		RenameMap:      map[string]string{"Datetime": "datetime", "AEP_MW": "aep_mw"},
		DropDuplicates: true,
		Columns: map[string]ColumnPlan{
			"aep_mw":   {MissingValue: "mean", OutlierDetection: "iqr"},
			"datetime": {},
		},
	}
}

func TestCleanPipelineOrder(t *testing.T) {
	logger := log.UseTestProvider(t, log.LevelDebug)
	f := rawFrame(t, [][]string{
		{"2018-01-01 02:00:00", "12"},
		{"2018-01-01 00:00:00", "10"},
		{"2018-01-01 01:00:00", ""},
		{"2018-01-01 00:00:00", "10"}, // exact duplicate
		{"2018-01-01 02:00:00", "13"}, // duplicate timestamp, later row dropped
		{"not a date", "11"},
		{"2018-01-01 03:00:00", "11"},
	})

	out, rep, err := New(defaultOptions()).Clean(f)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Coerced)
	assert.Equal(t, 1, rep.MissingTime)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, 1, rep.TimeDuplicates)
	assert.True(t, logger.ContainsMessage("coerced"))

	require.Equal(t, 4, out.Len())
	assert.Equal(t, "datetime", out.IndexName())
	assert.False(t, out.Has("datetime"))
	for i := 1; i < out.Len(); i++ {
		assert.True(t, out.Index()[i-1].Before(out.Index()[i]))
	}
	y, ok := out.Float("aep_mw")
	require.True(t, ok)
	assert.Equal(t, 10.0, y[0])
	assert.Equal(t, 11.0, y[1]) // mean of 10, 12, 11
	assert.Equal(t, 12.0, y[2])
	assert.Equal(t, 1, rep.Filled["aep_mw"])

	// input untouched
	orig, _ := f.Text("Datetime")
	assert.Equal(t, "2018-01-01 02:00:00", orig[0])
}

func TestCleanAcrossChunks(t *testing.T) {
	c := New(defaultOptions())
	first := rawFrame(t, [][]string{{"2018-01-01 00:00:00", "1"}, {"2018-01-01 01:00:00", "2"}})
	second := rawFrame(t, [][]string{{"2018-01-01 01:00:00", "2"}, {"2018-01-01 02:00:00", "3"}})

	_, _, err := c.Clean(first)
	require.NoError(t, err)
	out, rep, err := c.Clean(second)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SeenDuplicates)
	assert.Equal(t, 1, out.Len())

	c.Reset()
	out, _, err = c.Clean(second)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestOutliersMaskedThenFilled(t *testing.T) {
	rows := [][]string{}
	values := []string{"10", "11", "12", "11", "10", "12", "11", "1000"}
	for i, v := range values {
		rows = append(rows, []string{"2018-01-01 0" + string(rune('0'+i)) + ":00:00", v})
	}
	opts := defaultOptions()
	opts.Columns["aep_mw"] = ColumnPlan{MissingValue: "ffill", OutlierDetection: "iqr"}
	out, rep, err := New(opts).Clean(rawFrame(t, rows))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Outliers["aep_mw"])
	y, _ := out.Float("aep_mw")
	assert.Equal(t, 11.0, y[7])
}

func TestUnknownStrategySkipped(t *testing.T) {
	opts := defaultOptions()
	opts.Columns["aep_mw"] = ColumnPlan{MissingValue: "magic", OutlierDetection: "lof"}
	_, rep, err := New(opts).Clean(rawFrame(t, [][]string{{"2018-01-01 00:00:00", "1"}}))
	require.NoError(t, err)
	assert.Len(t, rep.SkippedStrategy, 2)
}

func TestMissingValueStrategies(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"mean", []float64{1, nan, 3}, []float64{1, 2, 3}},
		{"median", []float64{1, nan, 3, 10}, []float64{1, 3, 3, 10}},
		{"mode", []float64{2, 2, nan, 5}, []float64{2, 2, 2, 5}},
		{"ffill", []float64{nan, 1, nan, nan}, []float64{nan, 1, 1, 1}},
		{"bfill", []float64{nan, 1, nan, 4}, []float64{1, 1, 4, 4}},
		{"interpolate", []float64{nan, 1, nan, nan, 4, nan}, []float64{nan, 1, 2, 3, 4, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := append([]float64(nil), tt.in...)
			missingValueStrategies[tt.name](v)
			for i := range v {
				if math.IsNaN(tt.want[i]) {
					assert.True(t, math.IsNaN(v[i]), "index %d", i)
					continue
				}
				assert.InDelta(t, tt.want[i], v[i], 1e-12, "index %d", i)
			}
		})
	}
}

func TestQuantileAndZScore(t *testing.T) {
	v := []float64{1, 2, 3, 4, math.NaN()}
	assert.InDelta(t, 1.75, Quantile(v, 0.25), 1e-12)
	assert.InDelta(t, 2.5, Quantile(v, 0.5), 1e-12)
	lo, hi := IQRBounds([]float64{1, 2, 3, 4})
	assert.InDelta(t, -0.5, lo, 1e-12)
	assert.InDelta(t, 5.5, hi, 1e-12)

	data := make([]float64, 30)
	for i := range data {
		data[i] = float64(i % 3)
	}
	data[29] = 100
	assert.Equal(t, 1, maskZScore(data))
	assert.True(t, math.IsNaN(data[29]))
}

func TestTextColumnFill(t *testing.T) {
	f, err := frame.FromRecords([]string{"Datetime", "region"}, [][]string{
		{"2018-01-01 00:00:00", "east"},
		{"2018-01-01 01:00:00", ""},
		{"2018-01-01 02:00:00", "west"},
	})
	require.NoError(t, err)
	opts := defaultOptions()
	opts.Columns = map[string]ColumnPlan{"region": {MissingValue: "ffill"}}
	out, _, err := New(opts).Clean(f)
	require.NoError(t, err)
	r, _ := out.Text("region")
	assert.Equal(t, []string{"east", "east", "west"}, r)
}
