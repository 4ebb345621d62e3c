// Package fileio reads registry exports (csv, xls, xlsx) into header keyed rows.
package fileio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for extensions no reader handles.
var ErrUnsupported = errors.New("unsupported file type")

// Sheet keeps the header order next to the rows, lookups by alias need it.
type Sheet struct {
	Headers []string
	Rows    []map[string]string
}

// ReadSheet picks the reader by extension. headerRow is 1-based.
func ReadSheet(r io.Reader, filename string, headerRow int) (Sheet, error) {
	if headerRow <= 0 {
		headerRow = 1
	}
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx":
		rows, err = readXLSX(r)
	case ".xls":
		rows, err = readXLS(r, headerRow)
	case ".csv", ".txt":
		rows, err = readCSV(r)
	default:
		return Sheet{}, fmt.Errorf("%w: %s", ErrUnsupported, filename)
	}
	if err != nil {
		return Sheet{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(rows) == 0 {
		return Sheet{}, nil
	}
	h := pickHeader(rows, headerRow)
	return Sheet{Headers: h, Rows: rowsToMaps(rows, h, headerRow)}, nil
}

// pickHeader takes the header row, names blank cells "Column N" and
// suffixes repeated names so no column is lost.
func pickHeader(rows [][]string, headerRow int) []string {
	idx := headerRow - 1
	if idx >= len(rows) {
		idx = 0
	}
	h := rows[idx]
	out := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, v := range h {
		v = strings.TrimSpace(strings.TrimPrefix(v, "\uFEFF"))
		if v == "" {
			v = fmt.Sprintf("Column %d", i+1)
		}
		seen[v]++
		if n := seen[v]; n > 1 {
			v = fmt.Sprintf("%s (%d)", v, n)
		}
		out[i] = v
	}
	return out
}

// rowsToMaps converts rows after the header into maps, dropping blank rows.
func rowsToMaps(rows [][]string, headers []string, headerRow int) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for r := headerRow; r < len(rows); r++ {
		rec := rows[r]
		m := make(map[string]string, len(headers))
		empty := true
		for c, name := range headers {
			var v string
			if c < len(rec) {
				v = strings.TrimSpace(rec[c])
			}
			if v != "" {
				empty = false
			}
			m[name] = v
		}
		if !empty {
			out = append(out, m)
		}
	}
	return out
}

func normalizeCell(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
}
