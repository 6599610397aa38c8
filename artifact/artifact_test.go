package artifact

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/features"
	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/preprocessing"
)

func trainedBundle(t *testing.T) (*Bundle, *mat.Dense) {
	t.Helper()
	X := mat.NewDense(40, 2, nil)
	y := make([]float64, 40)
	for i := 0; i < 40; i++ {
		X.Set(i, 0, float64(i%5))
		X.Set(i, 1, float64(i))
		y[i] = 3 * float64(i%5)
	}
	p := gbt.DefaultParams()
	p.NEstimators = 20
	p.NumLeaves = 6
	p.MinChildSamples = 2
	p.NJobs = 1
	m, err := gbt.NewTrainer(p).Train(context.Background(), X, y, nil)
	require.NoError(t, err)
	m.FeatureNames = []string{"cycle", "step"}

	pre := preprocessing.New(map[string]preprocessing.ColumnPlan{"step": {Scaling: "standard"}})
	return &Bundle{
		Metadata: Metadata{
			PipelineVersion: "1.2.3",
			ModelType:       "gbt",
			TrainedAt:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			RunID:           "run-1",
			Target:          "aep_mw",
			TimeColumn:      "datetime",
			Frequency:       time.Hour,
		},
		Model:         m,
		FeatureNames:  m.FeatureNames,
		Preprocessing: pre.State(),
		Features:      features.State{Fitted: true, OutlierLower: -1, OutlierUpper: 20},
	}, X
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	b, X := trainedBundle(t)

	path, err := Save(dir, b)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model_1.2.3.json.sz"), path)

	got, err := Load(dir, "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, b.Metadata.RunID, got.Metadata.RunID)
	assert.Equal(t, time.Hour, got.Metadata.Frequency)
	assert.Equal(t, b.FeatureNames, got.FeatureNames)
	assert.Equal(t, b.Features, got.Features)

	want, err := b.Model.Predict(X)
	require.NoError(t, err)
	pred, err := got.Regressor().Predict(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, pred, 1e-12)

	mt, err := ModTime(dir, "1.2.3")
	require.NoError(t, err)
	assert.False(t, mt.IsZero())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir(), "9.9.9")
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = ModTime(t.TempDir(), "9.9.9")
	assert.True(t, errors.As(err, &nf))
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir, "1"), []byte("not snappy"), 0o644))
	_, err := Load(dir, "1")
	assert.Error(t, err)
}

func TestSaveRejectsIncompleteBundle(t *testing.T) {
	_, err := Save(t.TempDir(), &Bundle{Metadata: Metadata{PipelineVersion: "1"}})
	assert.Error(t, err)

	b, _ := trainedBundle(t)
	b.Metadata.PipelineVersion = ""
	_, err = Save(t.TempDir(), b)
	assert.Error(t, err)
}

type fakeS3 struct {
	mu     sync.Mutex
	method string
	path   string
	body   []byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method = r.Method
	f.path = r.URL.Path
	f.body, _ = io.ReadAll(r.Body)
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func TestS3Upload(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	up, err := NewS3Uploader(context.Background(), config.S3Config{
		Bucket:          "models-bucket",
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Prefix:          "gbforecast",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	p := filepath.Join(dir, "model_1.json.sz")
	require.NoError(t, os.WriteFile(p, []byte("payload"), 0o644))

	uri, err := UploadFile(context.Background(), up, p)
	require.NoError(t, err)
	assert.Equal(t, "s3://models-bucket/gbforecast/model_1.json.sz", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, http.MethodPut, fake.method)
	assert.Equal(t, "/models-bucket/gbforecast/model_1.json.sz", fake.path)
	assert.True(t, bytes.Contains(fake.body, []byte("payload")))
}

func TestS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), config.S3Config{})
	assert.Error(t, err)
}
