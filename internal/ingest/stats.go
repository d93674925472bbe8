package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"energy_forecast/internal/model"
)

const SchemaHAStats = "ha_stats"

var haStatsColumns = []string{"sensor_id", "start_time", "avg", "min_val", "max_val"}

// StatsParser parses Home Assistant long-term statistics CSV exports.
//
// Expected format:
//
//	sensor_id,start_time,avg,min_val,max_val
//	sensor.xxx_power,1732186800.0,-368.85,-810.0,-162.0
type StatsParser struct{}

func (p *StatsParser) Schema() string { return SchemaHAStats }

func (p *StatsParser) Matches(header []string) bool {
	return headerHasPrefix(header, haStatsColumns)
}

func (p *StatsParser) ParseTable(t *Table) ([]model.Reading, error) {
	if err := validateHeader(t.Header, haStatsColumns); err != nil {
		return nil, err
	}

	var readings []model.Reading
	for i, record := range t.Rows {
		reading, err := parseStatsRecord(record, i+2)
		if err != nil {
			continue
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func parseStatsRecord(record []string, lineNum int) (model.Reading, error) {
	if len(record) < 5 {
		return model.Reading{}, fmt.Errorf("line %d: expected 5 fields, got %d", lineNum, len(record))
	}

	entityID := strings.TrimSpace(record[0])

	ts, err := parseUnixTimestamp(strings.TrimSpace(record[1]))
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing timestamp: %w", lineNum, err)
	}

	avg, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing avg: %w", lineNum, err)
	}

	// min/max are informational; a missing bound falls back to the mean.
	minVal, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		minVal = avg
	}
	maxVal, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	if err != nil {
		maxVal = avg
	}

	return model.Reading{
		Timestamp: ts,
		SourceID:  entityID,
		Value:     avg,
		Min:       minVal,
		Max:       maxVal,
	}, nil
}

// parseUnixTimestamp parses a Unix epoch float (seconds) into a time.Time.
func parseUnixTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q as unix timestamp: %w", s, err)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
