package fileio

import (
	"fmt"
	"io"

	excelize "github.com/xuri/excelize/v2"
)

// readXLSX returns the rows of the first sheet holding data, cells trimmed.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("xlsx sheet %q: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			for j := range row {
				row[j] = normalizeCell(row[j])
			}
		}
		return rows, nil
	}
	return nil, nil
}
