// Package ingest reads the raw input files into frames, either all at once or as
// a stream of bounded chunks.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Supported file types, in auto-detection order.
var detectionOrder = []string{"csv", "json", "xlsx", "parquet"}

// Options configures a read of the raw directory.
type Options struct {
	Dir       string
	FileType  string
	Lazy      bool
	ChunkSize int
	MaxRows   int
}

// Files lists the *.<fileType> files in dir sorted by name. "auto" picks the
// first type of the detection order that has any file. The resolved type is
// returned.
func Files(dir, fileType string) ([]string, string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fileType, errors.NewNotFoundError("raw data directory", dir)
	}
	candidates := []string{strings.ToLower(fileType)}
	if fileType == "" || strings.EqualFold(fileType, "auto") {
		candidates = detectionOrder
	}
	for _, ft := range candidates {
		matches, err := filepath.Glob(filepath.Join(dir, "*."+ft))
		if err != nil {
			return nil, ft, errors.Wrapf(err, "list %s files", ft)
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches, ft, nil
		}
	}
	return nil, fileType, errors.NewNotFoundError("*."+fileType+" files", dir)
}

// Load reads every matching file eagerly and concatenates the result. Files that
// fail to parse are logged and skipped.
func Load(ctx context.Context, opts Options) (*frame.Frame, error) {
	logger := log.GetLoggerWithName("ingest")
	files, ft, err := Files(opts.Dir, opts.FileType)
	if err != nil {
		return nil, err
	}
	logger.Info("Found input files", log.FileTypeKey, ft, "count", len(files))

	var parts []*frame.Frame
	total := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "ingestion cancelled")
		}
		start := time.Now()
		f, err := ReadFile(ctx, path, ft)
		if err != nil {
			logger.Error("Failed to read file, skipping", err, log.FilePathKey, path)
			continue
		}
		logger.Info("Read file",
			log.FilePathKey, path,
			log.SamplesKey, f.Len(),
			log.ColumnsKey, f.Names(),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		parts = append(parts, f)
		total += f.Len()
		if opts.MaxRows > 0 && total >= opts.MaxRows {
			break
		}
	}

	out, err := frame.Concat(parts...)
	if err != nil {
		return nil, errors.Wrap(err, "concatenate input files")
	}
	if opts.MaxRows > 0 && out.Len() > opts.MaxRows {
		out = out.Head(opts.MaxRows)
	}
	return out, nil
}

// ReadFile reads one file of the given type.
func ReadFile(ctx context.Context, path, fileType string) (*frame.Frame, error) {
	switch fileType {
	case "csv":
		return readGota(path, func(f *os.File) dataframe.DataFrame {
			return dataframe.ReadCSV(f, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
		})
	case "json":
		return readGota(path, func(f *os.File) dataframe.DataFrame {
			return dataframe.ReadJSON(f, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
		})
	case "parquet":
		return ReadParquet(ctx, path)
	case "xlsx":
		return ReadXLSX(path)
	default:
		return nil, errors.NewValidationError("data.file_type", "unsupported file type", fileType)
	}
}

func readGota(path string, read func(*os.File) dataframe.DataFrame) (*frame.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	df := read(f)
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "parse %s", path)
	}
	return frame.FromDataFrame(df)
}
