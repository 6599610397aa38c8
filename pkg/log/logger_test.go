package log

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"WARNING", LevelWarn, false},
		{"critical", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTestLoggerCapturesFields(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	child := logger.With(StageKey, "cleaning")
	child.Info("Stage finished", SamplesKey, 42)
	child.Error("Stage failed", errors.New("boom"), ColumnKey, "aep_mw")

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "cleaning", entries[0][StageKey])
	assert.Equal(t, 42.0, entries[0][SamplesKey])
	assert.Equal(t, "boom", entries[1]["error"])
	assert.True(t, logger.ContainsField(ColumnKey, "aep_mw"))
}

func TestTestLoggerLevelFiltering(t *testing.T) {
	p, buf := NewTestLoggerProvider(LevelWarn)
	l := p.GetLoggerWithName("gbt")
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	p.SetLevel(LevelDebug)
	assert.True(t, l.Enabled(context.Background(), LevelDebug))
}

func TestZerologProviderFileAndConsoleLevels(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "app.log")
	var console bytes.Buffer

	p, err := NewZerologProvider(Options{
		AppName:      "gbforecast",
		Level:        LevelDebug,
		Console:      true,
		ConsoleLevel: LevelWarn,
		ConsoleOut:   &console,
		File:         &FileOptions{Filename: logPath, Level: LevelDebug, MaxBytes: 1024, BackupCount: 2},
	})
	require.NoError(t, err)

	l := p.GetLoggerWithName("pipeline")
	l.Debug("debug line", SamplesKey, 3)
	l.Warn("warn line")
	l.Error("error line", errors.NewValueError("Fit", "no rows"))
	require.NoError(t, p.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "debug", first["level"])
	assert.Equal(t, "pipeline", first[ComponentKey])
	assert.Equal(t, "gbforecast", first["app"])

	var last map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Contains(t, last["error"], "no rows")
	assert.Contains(t, last, StacktraceKey)

	assert.NotContains(t, console.String(), "debug line")
	assert.Contains(t, console.String(), "warn line")
}

func TestSetProviderRoutesWarnings(t *testing.T) {
	logger := UseTestProvider(t, LevelDebug)
	errors.Warn(errors.NewUndefinedMetricWarning("mape", "all targets are zero", 0))
	assert.True(t, logger.ContainsMessage("mape"))
	assert.True(t, logger.ContainsField(ComponentKey, "warnings"))
}
