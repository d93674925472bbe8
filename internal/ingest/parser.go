package ingest

import (
	"errors"
	"strings"

	"energy_forecast/internal/model"
)

var (
	ErrNoDatetimeColumn  = errors.New("no datetime column found")
	ErrNoValueColumn     = errors.New("no numeric value column found")
	ErrNoRows            = errors.New("no usable rows")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoUsableFiles     = errors.New("no valid data files found")
	ErrEmptyTable        = errors.New("empty table")
)

// TableParser converts an already-read table into readings. Matches reports
// whether the parser understands the table's header.
type TableParser interface {
	Schema() string
	Matches(header []string) bool
	ParseTable(t *Table) ([]model.Reading, error)
}

// Table is the raw grid read from one file or sheet.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Cell returns the trimmed cell at row i, column j, or "" when the row is short.
func (t *Table) Cell(i, j int) string {
	row := t.Rows[i]
	if j >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[j])
}

// Normalize trims header names and drops columns whose cells are all empty.
func (t *Table) Normalize() {
	for i := range t.Header {
		t.Header[i] = strings.TrimSpace(strings.TrimPrefix(t.Header[i], "\ufeff"))
	}

	keep := make([]int, 0, len(t.Header))
	for j := range t.Header {
		for i := range t.Rows {
			if t.Cell(i, j) != "" {
				keep = append(keep, j)
				break
			}
		}
	}
	if len(keep) == len(t.Header) {
		return
	}

	header := make([]string, len(keep))
	for k, j := range keep {
		header[k] = t.Header[j]
	}
	rows := make([][]string, len(t.Rows))
	for i := range t.Rows {
		row := make([]string, len(keep))
		for k, j := range keep {
			row[k] = t.Cell(i, j)
		}
		rows[i] = row
	}
	t.Header = header
	t.Rows = rows
}

// headerHasPrefix reports whether header starts with the expected column names.
func headerHasPrefix(header []string, expected []string) bool {
	if len(header) < len(expected) {
		return false
	}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return false
		}
	}
	return true
}
