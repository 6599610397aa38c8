package ingest

import (
	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// writeXLSX writes header and rows to a new single-sheet workbook.
func writeXLSX(path string, header []string, rows [][]string) error {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)
	all := append([][]string{header}, rows...)
	for i, r := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.WithStack(err)
		}
		values := make([]interface{}, len(r))
		for j, v := range r {
			values[j] = v
		}
		if err := wb.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.Wrapf(err, "write row %d", i)
		}
	}
	return errors.Wrapf(wb.SaveAs(path), "save workbook %s", path)
}
