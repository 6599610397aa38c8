package ingest

import (
	"bytes"
	"context"
	"math"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

const timeLayout = "2006-01-02 15:04:05"

// ReadParquet reads a parquet file. Numeric columns stay numeric, timestamps are
// rendered so the cleaning stage parses them like any other input.
func ReadParquet(ctx context.Context, path string) (*frame.Frame, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, "open parquet %s", path)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrapf(err, "parquet reader %s", path)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "read parquet table %s", path)
	}
	defer tbl.Release()

	names := make([]string, 0, tbl.NumCols())
	raw := make([][]string, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		cells := make([]string, 0, col.Len())
		for _, chunk := range col.Data().Chunks() {
			cells = appendCells(cells, chunk)
		}
		names = append(names, col.Name())
		raw = append(raw, cells)
	}
	return frame.FromColumns(names, raw)
}

func appendCells(dst []string, arr arrow.Array) []string {
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			dst = append(dst, "")
			continue
		}
		switch a := arr.(type) {
		case *array.Float64:
			dst = append(dst, strconv.FormatFloat(a.Value(i), 'g', -1, 64))
		case *array.Float32:
			dst = append(dst, strconv.FormatFloat(float64(a.Value(i)), 'g', -1, 32))
		case *array.Int64:
			dst = append(dst, strconv.FormatInt(a.Value(i), 10))
		case *array.Int32:
			dst = append(dst, strconv.FormatInt(int64(a.Value(i)), 10))
		case *array.String:
			dst = append(dst, a.Value(i))
		case *array.Timestamp:
			unit := a.DataType().(*arrow.TimestampType).Unit
			dst = append(dst, a.Value(i).ToTime(unit).UTC().Format(timeLayout))
		case *array.Date32:
			dst = append(dst, a.Value(i).ToTime().UTC().Format(timeLayout))
		default:
			dst = append(dst, arr.ValueStr(i))
		}
	}
	return dst
}

// WriteParquet writes f to path with the time index as a millisecond timestamp
// column followed by every float column. Text columns are written as strings.
func WriteParquet(path string, f *frame.Frame) error {
	var fields []arrow.Field
	if f.HasIndex() {
		fields = append(fields, arrow.Field{Name: f.IndexName(), Type: arrow.FixedWidthTypes.Timestamp_ms, Nullable: true})
	}
	for _, name := range f.Names() {
		switch f.Kind(name) {
		case frame.KindFloat:
			fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
		case frame.KindText:
			fields = append(fields, arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true})
		}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	col := 0
	if f.HasIndex() {
		tb := b.Field(col).(*array.TimestampBuilder)
		for _, t := range f.Index() {
			if t.IsZero() {
				tb.AppendNull()
				continue
			}
			tb.Append(arrow.Timestamp(t.UnixMilli()))
		}
		col++
	}
	for _, name := range f.Names() {
		switch f.Kind(name) {
		case frame.KindFloat:
			fb := b.Field(col).(*array.Float64Builder)
			v, _ := f.Float(name)
			for _, x := range v {
				if math.IsNaN(x) {
					fb.AppendNull()
					continue
				}
				fb.Append(x)
			}
		case frame.KindText:
			sb := b.Field(col).(*array.StringBuilder)
			v, _ := f.Text(name)
			for _, s := range v {
				if s == "" {
					sb.AppendNull()
					continue
				}
				sb.Append(s)
			}
		}
		col++
	}

	rec := b.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	if err := pqarrow.WriteTable(tbl, &buf, 64*1024, props, pqarrow.DefaultWriterProps()); err != nil {
		return errors.Wrapf(err, "encode parquet %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
