package ingest

import (
	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// ReadXLSX reads the first sheet of a workbook. The first row is the header.
func ReadXLSX(path string) (*frame.Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open workbook %s", path)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return frame.New(), nil
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q of %s", sheets[0], path)
	}
	if len(rows) == 0 {
		return frame.New(), nil
	}
	return frame.FromRecords(rows[0], rows[1:])
}
