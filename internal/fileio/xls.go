package fileio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	xls "github.com/extrame/xls"
)

// Charsets tried in order when opening a workbook.
var xlsCharsets = []string{"windows-1252", "utf-8", "iso-8859-1"}

// xlsProbeCols bounds the column scan; LastCol is wrong on some exports.
const xlsProbeCols = 256

func readXLS(r io.Reader, headerRow int) ([][]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	wb, err := openWorkbook(b)
	if err != nil {
		return nil, err
	}
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		if rows := sheetRows(sheet, headerRow); len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

func openWorkbook(b []byte) (*xls.WorkBook, error) {
	var errs []error
	for _, cs := range xlsCharsets {
		wb, err := xls.OpenReader(bytes.NewReader(b), cs)
		if err == nil && wb != nil {
			return wb, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", cs, err))
	}
	return nil, fmt.Errorf("xls: open workbook: %w", errors.Join(errs...))
}

// sheetRows reads every row padded to the table width and drops trailing
// blank rows.
func sheetRows(sheet *xls.WorkSheet, headerRow int) [][]string {
	last := int(sheet.MaxRow)
	width := tableWidth(sheet, last)
	if width == 0 {
		return nil
	}
	rows := make([][]string, 0, last+1)
	lastFilled := -1
	for i := 0; i <= last; i++ {
		cols := make([]string, width)
		filled := false
		if row := sheet.Row(i); row != nil {
			for j := range cols {
				cols[j] = normalizeCell(row.Col(j))
				filled = filled || cols[j] != ""
			}
		}
		if filled {
			lastFilled = i
		}
		rows = append(rows, cols)
	}
	if lastFilled < headerRow-1 {
		return nil
	}
	return rows[:lastFilled+1]
}

func tableWidth(sheet *xls.WorkSheet, last int) int {
	width := 0
	for i := 0; i <= last; i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		for j := width; j < xlsProbeCols; j++ {
			if normalizeCell(row.Col(j)) != "" {
				width = j + 1
			}
		}
	}
	return width
}
