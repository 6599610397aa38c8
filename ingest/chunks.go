package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Source yields frames until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (*frame.Frame, error)
	Close() error
}

// Open returns a Source for opts. Eager mode yields the whole dataset as a
// single frame; lazy mode streams csv files in chunks of at most ChunkSize rows.
func Open(ctx context.Context, opts Options) (Source, error) {
	if !opts.Lazy {
		f, err := Load(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &frameSource{f: f}, nil
	}
	files, ft, err := Files(opts.Dir, opts.FileType)
	if err != nil {
		return nil, err
	}
	if ft != "csv" {
		return nil, errors.Wrapf(errors.ErrNotImplemented, "lazy loading of %s files", ft)
	}
	if opts.ChunkSize <= 0 {
		return nil, errors.NewValidationError("data.chunk_size", "must be > 0 for lazy loading", opts.ChunkSize)
	}
	return &csvChunker{files: files, chunkSize: opts.ChunkSize, maxRows: opts.MaxRows, logger: log.GetLoggerWithName("ingest")}, nil
}

type frameSource struct {
	f    *frame.Frame
	done bool
}

func (s *frameSource) Next(ctx context.Context) (*frame.Frame, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.f, nil
}

func (s *frameSource) Close() error { return nil }

// csvChunker walks the files in order. A chunk never spans two files.
type csvChunker struct {
	files     []string
	chunkSize int
	maxRows   int
	logger    log.Logger

	next   int
	file   *os.File
	reader *csv.Reader
	header []string
	read   int
	chunk  int
}

func (c *csvChunker) openNext() error {
	path := c.files[c.next]
	c.next++
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = false
	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			c.logger.Warn("Skipping empty file", log.FilePathKey, path)
			return nil
		}
		return errors.Wrapf(err, "read header of %s", path)
	}
	c.file, c.reader, c.header = f, r, header
	c.logger.Debug("Streaming file", log.FilePathKey, path, log.BatchSizeKey, c.chunkSize)
	return nil
}

func (c *csvChunker) closeCurrent() {
	if c.file != nil {
		c.file.Close()
	}
	c.file, c.reader, c.header = nil, nil, nil
}

// Next returns the next non-empty chunk.
func (c *csvChunker) Next(ctx context.Context) (*frame.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "ingestion cancelled")
		}
		if c.maxRows > 0 && c.read >= c.maxRows {
			c.closeCurrent()
			return nil, io.EOF
		}
		if c.reader == nil {
			if c.next >= len(c.files) {
				return nil, io.EOF
			}
			if err := c.openNext(); err != nil {
				return nil, err
			}
			continue
		}

		limit := c.chunkSize
		if c.maxRows > 0 && c.maxRows-c.read < limit {
			limit = c.maxRows - c.read
		}
		header := c.header
		rows := make([][]string, 0, limit)
		for len(rows) < limit {
			rec, err := c.reader.Read()
			if err == io.EOF {
				c.closeCurrent()
				break
			}
			if err != nil {
				c.closeCurrent()
				return nil, errors.Wrap(err, "read csv record")
			}
			rows = append(rows, rec)
		}
		if len(rows) == 0 {
			continue
		}
		f, err := frame.FromRecords(header, rows)
		if err != nil {
			return nil, err
		}
		c.read += len(rows)
		c.logger.Debug("Read chunk", log.ChunkIndexKey, c.chunk, log.SamplesKey, len(rows))
		c.chunk++
		return f, nil
	}
}

func (c *csvChunker) Close() error {
	c.closeCurrent()
	return nil
}
