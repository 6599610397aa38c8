package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// FileStore appends one JSON line per run event. The last line of a run id
// holds its current state.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates the parent directory of path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.NewValidationError("tracking_uri", "file path is empty", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create tracking dir for %s", path)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Start(_ context.Context, run *Run) error  { return s.append(run) }
func (s *FileStore) Finish(_ context.Context, run *Run) error { return s.append(run) }
func (s *FileStore) Close() error                             { return nil }

func (s *FileStore) append(run *Run) error {
	line, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "encode run")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", s.path)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrapf(err, "append run to %s", s.path)
	}
	return nil
}

// ReadRuns returns the latest state of every run in path, in order of first
// appearance.
func ReadRuns(path string) ([]Run, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("tracking file", path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var runs []Run
	pos := map[string]int{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Run
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, errors.Wrapf(err, "decode run in %s", path)
		}
		if i, ok := pos[r.ID]; ok {
			runs[i] = r
			continue
		}
		pos[r.ID] = len(runs)
		runs = append(runs, r)
	}
	return runs, errors.Wrap(sc.Err(), "scan tracking file")
}
