package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "gbforecast: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "gbforecast: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースがテストファイルを含む
			formatted := fmt.Sprintf("%+v", err)
			assert.True(t, strings.Contains(formatted, "errors_test.go"))

			var modelErr *ModelError
			require.True(t, As(err, &modelErr))
			assert.Equal(t, tt.op, modelErr.Op)
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 12, 1)
	assert.Equal(t, "gbforecast: Predict: dimension mismatch on axis 1 (features). Expected 10, got 12", err.Error())

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 12, dimErr.Got)
}

func TestSchemaError(t *testing.T) {
	err := NewSchemaError("features", []string{"aep_mw", "datetime_hour"})
	assert.Contains(t, err.Error(), "features")
	assert.Contains(t, err.Error(), "datetime_hour")

	var schemaErr *SchemaError
	require.True(t, As(err, &schemaErr))
	assert.Len(t, schemaErr.Missing, 2)
}

func TestNotFoundErrorWrapped(t *testing.T) {
	base := NewNotFoundError("raw data", "/tmp/none")
	wrapped := Wrap(base, "ingestion")

	var nf *NotFoundError
	require.True(t, As(wrapped, &nf))
	assert.Equal(t, "/tmp/none", nf.Path)
	assert.True(t, strings.HasPrefix(wrapped.Error(), "ingestion: "))
}

func TestSentinels(t *testing.T) {
	err := Wrapf(ErrNotImplemented, "lazy loading of %s", "parquet")
	assert.True(t, Is(err, ErrNotImplemented))
	assert.False(t, Is(err, ErrEmptyData))
}

func TestWarnRouting(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("mape", "all targets are zero", 0))
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "mape")
}

func TestWarnFallbackHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })

	Warn(NewDataConversionWarning("datetime", "text", "datetime", 3, "unparseable timestamp"))
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "3 value(s) coerced")
}

func TestCheckNumericalStability(t *testing.T) {
	assert.NoError(t, CheckNumericalStability("gradients", []float64{1, 2, 3}, 0))

	err := CheckNumericalStability("gradients", []float64{1, math.NaN(), math.Inf(1)}, 7)
	require.Error(t, err)
	var ni *NumericalInstabilityError
	require.True(t, As(err, &ni))
	assert.Equal(t, 7, ni.Iteration)
	assert.Len(t, ni.Values, 2)

	assert.Error(t, CheckScalar("leaf", math.Inf(-1), 1))
}

func TestSafeDivideAndClip(t *testing.T) {
	assert.Equal(t, 0.0, SafeDivide(1, 0))
	assert.Equal(t, 2.0, SafeDivide(4, 2))
	assert.Equal(t, 1.0, ClipValue(5, -1, 1))
	assert.Equal(t, -1.0, ClipValue(-5, -1, 1))
}
