// Package fileio reads budget and catalog spreadsheets into header-keyed rows.
package fileio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ReadAnyMaps picks a parser by extension and returns the rows as
// map[header]value. headerRow is 1-based; 0 detects it.
func ReadAnyMaps(r io.Reader, filename string, headerRow int) ([]map[string]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx", ".xlsm":
		return readXLSX(r, headerRow)
	case ".xls":
		return readXLS(r, headerRow)
	case ".csv", ".txt":
		return readCSV(r, headerRow)
	default:
		return nil, fmt.Errorf("unsupported file: %s", filename)
	}
}

const headerProbeRows = 20

// DetectHeaderRow returns the 1-based row holding "Código" and "Nat" within the
// first rows of a budget export, or 1 when there is none.
func DetectHeaderRow(rows [][]string) int {
	for i := 0; i < len(rows) && i < headerProbeRows; i++ {
		var code, nat bool
		for _, c := range rows[i] {
			switch strings.ToLower(strings.TrimSpace(c)) {
			case "codigo", "código":
				code = true
			case "nat", "naturaleza":
				nat = true
			}
		}
		if code && nat {
			return i + 1
		}
	}
	return 1
}

func resolveHeaderRow(rows [][]string, headerRow int) int {
	if headerRow > 0 {
		return headerRow
	}
	return DetectHeaderRow(rows)
}

// pickHeader takes the header row, naming blank cells "Column N".
// Duplicate names get a numeric suffix so no column is lost.
func pickHeader(rows [][]string, headerRow int) []string {
	idx := headerRow - 1
	if idx < 0 || idx >= len(rows) {
		idx = 0
	}
	h := rows[idx]
	seen := make(map[string]int, len(h))
	out := make([]string, len(h))
	for i, v := range h {
		v = strings.TrimSpace(v)
		if v == "" {
			v = fmt.Sprintf("Column %d", i+1)
		}
		if n := seen[v]; n > 0 {
			seen[v] = n + 1
			v = fmt.Sprintf("%s %d", v, n+1)
		} else {
			seen[v] = 1
		}
		out[i] = v
	}
	return out
}

// rowsToMaps converts rows to maps by header, skipping fully blank rows.
func rowsToMaps(rows [][]string, headers []string, headerRow int) []map[string]string {
	start := max(headerRow, 1)
	var out []map[string]string
	for r := start; r < len(rows); r++ {
		rec := rows[r]
		m := make(map[string]string, len(headers))
		empty := true
		for c := range headers {
			var v string
			if c < len(rec) {
				v = rec[c]
			}
			if strings.TrimSpace(v) != "" {
				empty = false
			}
			m[headers[c]] = v
		}
		if !empty {
			out = append(out, m)
		}
	}
	return out
}
