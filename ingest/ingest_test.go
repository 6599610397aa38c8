package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

func writeCSV(t *testing.T, dir, name string, start, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Datetime,AEP_MW\n")
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := start; i < start+n; i++ {
		fmt.Fprintf(&b, "%s,%d\n", base.Add(time.Duration(i)*time.Hour).Format("2006-01-02 15:04:05"), 1000+i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

func TestLoadEagerCSV(t *testing.T) {
	log.UseTestProvider(t, log.LevelDebug)
	dir := t.TempDir()
	writeCSV(t, dir, "b.csv", 3, 2)
	writeCSV(t, dir, "a.csv", 0, 3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	f, err := Load(context.Background(), Options{Dir: dir, FileType: "csv"})
	require.NoError(t, err)
	assert.Equal(t, 5, f.Len())
	assert.Equal(t, frame.KindText, f.Kind("Datetime"))
	y, ok := f.Float("AEP_MW")
	require.True(t, ok)
	// files are read in name order
	assert.Equal(t, []float64{1000, 1001, 1002, 1003, 1004}, y)
}

func TestLoadMaxRows(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", 0, 10)
	writeCSV(t, dir, "b.csv", 10, 10)
	f, err := Load(context.Background(), Options{Dir: dir, FileType: "csv", MaxRows: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, f.Len())
}

func TestLoadNoFiles(t *testing.T) {
	_, err := Load(context.Background(), Options{Dir: t.TempDir(), FileType: "csv"})
	var nf *errors.NotFoundError
	require.True(t, errors.As(err, &nf))

	_, err = Load(context.Background(), Options{Dir: filepath.Join(t.TempDir(), "absent"), FileType: "csv"})
	require.True(t, errors.As(err, &nf))
}

func TestLoadSkipsBrokenFile(t *testing.T) {
	logger := log.UseTestProvider(t, log.LevelDebug)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"),
		[]byte(`[{"Datetime":"2018-01-01 00:00:00","AEP_MW":12.5},{"Datetime":"2018-01-01 01:00:00","AEP_MW":null}]`), 0o644))

	f, err := Load(context.Background(), Options{Dir: dir, FileType: "json"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	y, ok := f.Float("AEP_MW")
	require.True(t, ok)
	assert.Equal(t, 12.5, y[0])
	assert.True(t, logger.ContainsMessage("Failed to read file"))
}

func TestAutoDetection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeXLSX(filepath.Join(dir, "data.xlsx"),
		[]string{"Datetime", "AEP_MW"},
		[][]string{{"2018-01-01 00:00:00", "1"}, {"2018-01-01 01:00:00", "2"}}))

	files, ft, err := Files(dir, "auto")
	require.NoError(t, err)
	assert.Equal(t, "xlsx", ft)
	assert.Len(t, files, 1)

	f, err := Load(context.Background(), Options{Dir: dir, FileType: "auto"})
	require.NoError(t, err)
	y, ok := f.Float("AEP_MW")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, y)
}

func TestParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := frame.New()
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, src.SetIndex("datetime", []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}))
	require.NoError(t, src.SetFloat("aep_mw", []float64{1.5, math.NaN(), 3}))
	require.NoError(t, src.SetText("region", []string{"east", "", "west"}))

	path := filepath.Join(dir, "processed.parquet")
	require.NoError(t, WriteParquet(path, src))

	got, err := ReadParquet(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
	ts, ok := got.Text("datetime")
	require.True(t, ok)
	assert.Equal(t, "2018-01-01 01:00:00", ts[1])
	y, ok := got.Float("aep_mw")
	require.True(t, ok)
	assert.Equal(t, 1.5, y[0])
	assert.True(t, math.IsNaN(y[1]))
	region, ok := got.Text("region")
	require.True(t, ok)
	assert.Equal(t, []string{"east", "", "west"}, region)
}

func TestLazyChunks(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", 0, 5)
	writeCSV(t, dir, "b.csv", 5, 3)

	src, err := Open(context.Background(), Options{Dir: dir, FileType: "csv", Lazy: true, ChunkSize: 2})
	require.NoError(t, err)
	defer src.Close()

	var sizes []int
	total := 0
	for {
		f, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, f.Len())
		total += f.Len()
		assert.True(t, f.Has("AEP_MW"))
	}
	assert.Equal(t, []int{2, 2, 1, 2, 1}, sizes)
	assert.Equal(t, 8, total)
}

func TestLazyMaxRows(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", 0, 10)
	src, err := Open(context.Background(), Options{Dir: dir, FileType: "csv", Lazy: true, ChunkSize: 4, MaxRows: 6})
	require.NoError(t, err)

	f1, err := src.Next(context.Background())
	require.NoError(t, err)
	f2, err := src.Next(context.Background())
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 4, f1.Len())
	assert.Equal(t, 2, f2.Len())
}

func TestLazyUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("[]"), 0o644))
	_, err := Open(context.Background(), Options{Dir: dir, FileType: "json", Lazy: true, ChunkSize: 10})
	assert.True(t, errors.Is(err, errors.ErrNotImplemented))
}

func TestEagerSourceYieldsOnce(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", 0, 3)
	src, err := Open(context.Background(), Options{Dir: dir, FileType: "csv"})
	require.NoError(t, err)
	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())
	_, err = src.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}
