package table

import (
	"errors"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

func readXLSX(path string) (Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, pfx.Err(err)
	}
	return Grid(rows), nil
}

// readXLS reads legacy Excel 97-2003 workbooks.
func readXLS(path string) (Grid, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, pfx.Err(err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrEmpty
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmpty
	}

	var g Grid
	for rowID := 0; rowID <= int(sheet.MaxRow); rowID++ {
		row := sheet.Row(rowID)
		if row == nil {
			g = append(g, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for colID := row.FirstCol(); colID < row.LastCol(); colID++ {
			cells[colID] = row.Col(colID)
		}
		g = append(g, cells)
	}
	return g, nil
}

// writeXLSX stores the grid in the first sheet of a new workbook. Cells
// that parse as numbers are stored as numbers so they stay usable in
// formulas. The file at path is created exclusively; an existing file is
// never replaced.
func writeXLSX(path string, g Grid) error {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)

	for r, row := range g {
		values := make([]interface{}, len(row))
		for c, s := range row {
			values[c] = cellValue(s)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return pfx.Err(err)
		}
		if err := wb.SetSheetRow(sheet, cell, &values); err != nil {
			return pfx.Err(err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return &ExistsError{Path: path}
		}
		return pfx.Err(err)
	}
	if err := wb.Write(f); err != nil {
		f.Close()
		os.Remove(path)
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return pfx.Err(err)
	}
	return nil
}

func cellValue(s string) interface{} {
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	if v, err := strconv.ParseFloat(t, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
		return v
	}
	return s
}
