package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name        string
		existingErr error
		panicValue  interface{}
		wantPanic   bool
	}{
		{name: "no panic", wantPanic: false},
		{name: "panic with string", panicValue: "boom", wantPanic: true},
		{name: "panic with error", panicValue: fmt.Errorf("inner"), wantPanic: true},
		{name: "panic with existing error", existingErr: fmt.Errorf("first"), panicValue: "boom", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := func() (err error) {
				defer Recover(&err, "stage")
				err = tt.existingErr
				if tt.panicValue != nil {
					panic(tt.panicValue)
				}
				return err
			}

			err := run()
			if !tt.wantPanic {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "panic in stage")
			if tt.existingErr != nil {
				assert.ErrorIs(t, err, tt.existingErr)
				return
			}
			var pe *PanicError
			require.True(t, As(err, &pe))
			assert.Equal(t, "stage", pe.Operation)
			assert.NotEmpty(t, pe.StackTrace)
			assert.Contains(t, pe.String(), "Stack trace")
		})
	}
}

func TestSafeExecute(t *testing.T) {
	assert.NoError(t, SafeExecute("ok", func() error { return nil }))

	want := fmt.Errorf("plain failure")
	assert.Equal(t, want, SafeExecute("fail", func() error { return want }))

	err := SafeExecute("index", func() error {
		var s []int
		_ = s[3]
		return nil
	})
	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Equal(t, "index", pe.Operation)
}
