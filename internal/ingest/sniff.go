package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"energy_forecast/internal/model"
)

const SchemaGeneric = "generic"

// DetectThreshold is the share of rows that must parse for a column to be
// picked as the datetime or value column.
const DetectThreshold = 0.9

var thousands = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// GenericParser handles arbitrary tabular exports by sniffing which column
// holds timestamps and which holds numeric values.
type GenericParser struct{}

func (p *GenericParser) Schema() string { return SchemaGeneric }

// Matches always returns true; GenericParser is the fallback.
func (p *GenericParser) Matches(header []string) bool { return true }

func (p *GenericParser) ParseTable(t *Table) ([]model.Reading, error) {
	if len(t.Rows) == 0 {
		return nil, ErrEmptyTable
	}

	tsCol, ok := DetectDatetimeColumn(t)
	if !ok {
		return nil, ErrNoDatetimeColumn
	}
	valCol, ok := DetectValueColumn(t, tsCol)
	if !ok {
		return nil, ErrNoValueColumn
	}

	var readings []model.Reading
	for i := range t.Rows {
		ts, ok := ParseTimestamp(t.Cell(i, tsCol))
		if !ok {
			continue
		}
		v, ok := ParseNumber(t.Cell(i, valCol))
		if !ok {
			continue
		}
		readings = append(readings, model.Reading{
			Timestamp: ts,
			SourceID:  t.Header[valCol],
			Value:     v,
			Min:       v,
			Max:       v,
		})
	}
	return readings, nil
}

// DetectDatetimeColumn returns the first column, in header order, where more
// than DetectThreshold of the rows parse as timestamps.
func DetectDatetimeColumn(t *Table) (int, bool) {
	for j := range t.Header {
		if columnShare(t, j, func(s string) bool {
			_, ok := ParseTimestamp(s)
			return ok
		}) > DetectThreshold {
			return j, true
		}
	}
	return -1, false
}

// DetectValueColumn returns the first column other than skip where more than
// DetectThreshold of the rows parse as numbers.
func DetectValueColumn(t *Table, skip int) (int, bool) {
	for j := range t.Header {
		if j == skip {
			continue
		}
		if columnShare(t, j, func(s string) bool {
			_, ok := ParseNumber(s)
			return ok
		}) > DetectThreshold {
			return j, true
		}
	}
	return -1, false
}

func columnShare(t *Table, j int, ok func(string) bool) float64 {
	if len(t.Rows) == 0 {
		return 0
	}
	n := 0
	for i := range t.Rows {
		if ok(t.Cell(i, j)) {
			n++
		}
	}
	return float64(n) / float64(len(t.Rows))
}

// ParseTimestamp parses s in any common date layout and returns its
// wall-clock reading with the zone dropped. Bare numbers are rejected so
// that value columns are never mistaken for epoch timestamps.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Time{}, false
	}
	ts, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return wallClock(ts), true
}

// ParseNumber parses a numeric cell, tolerating surrounding spaces and
// comma thousand separators. NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if thousands.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
