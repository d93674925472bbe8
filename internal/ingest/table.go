package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ReadCSV reads a CSV stream into a Table. The first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	t := &Table{Header: header}
	lineNum := 1
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}
		t.Rows = append(t.Rows, record)
	}
	return t, nil
}

// ReadExcel reads the first sheet of an .xlsx or .xls workbook.
func ReadExcel(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	case ".xls":
		return readXLS(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func tableFromGrid(name string, grid [][]string) (*Table, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyTable
	}
	return &Table{Name: name, Header: grid[0], Rows: grid[1:]}, nil
}
