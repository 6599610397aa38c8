// Package tracking records training runs in a file, PostgreSQL or MySQL store.
package tracking

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Status of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Run is one tracked training run.
type Run struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
	Status        Status             `json:"status"`
	Params        map[string]any     `json:"params,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	BestIteration int                `json:"best_iteration"`
	ModelPath     string             `json:"model_path,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// NewRun creates a running run with a fresh id.
func NewRun(name string, params map[string]any) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
		Params:    params,
	}
}

// Complete marks the run finished.
func (r *Run) Complete(metrics map[string]float64, bestIteration int, modelPath string) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Status = StatusFinished
	r.Metrics = metrics
	r.BestIteration = bestIteration
	r.ModelPath = modelPath
}

// Fail marks the run failed with err.
func (r *Run) Fail(err error) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// Store persists runs. Start is called once when a run begins and Finish
// once when it ends.
type Store interface {
	Start(ctx context.Context, run *Run) error
	Finish(ctx context.Context, run *Run) error
	Close() error
}

// Open returns the store for uri. Disabled tracking or an empty uri yields a
// store that records nothing.
func Open(ctx context.Context, uri string, enabled bool) (Store, error) {
	logger := log.GetLoggerWithName("tracking")
	if !enabled || uri == "" {
		logger.Debug("Run tracking disabled")
		return NopStore{}, nil
	}
	if p, ok := strings.CutPrefix(uri, "file://"); ok {
		return NewFileStore(p)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.NewValidationError("tracking_uri", "not a valid URI", uri)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, uri)
	case "mysql":
		dsn, err := mysqlDSN(u)
		if err != nil {
			return nil, err
		}
		return NewMySQLStore(ctx, dsn)
	default:
		return nil, errors.NewValidationError("tracking_uri", "unsupported scheme, want file, postgres or mysql", u.Scheme)
	}
}

// NopStore discards runs.
type NopStore struct{}

func (NopStore) Start(context.Context, *Run) error  { return nil }
func (NopStore) Finish(context.Context, *Run) error { return nil }
func (NopStore) Close() error                       { return nil }
