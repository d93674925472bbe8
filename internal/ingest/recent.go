package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"energy_forecast/internal/model"
)

const SchemaHARecent = "ha_recent"

var haRecentColumns = []string{"sensor_id", "value", "updated_ts"}

// RecentParser parses Home Assistant recent measurements CSV exports.
//
// Expected format:
//
//	sensor_id,value,updated_ts
//	sensor.xxx_power,-341,1770896300.6877737
type RecentParser struct{}

func (p *RecentParser) Schema() string { return SchemaHARecent }

func (p *RecentParser) Matches(header []string) bool {
	return headerHasPrefix(header, haRecentColumns)
}

func (p *RecentParser) ParseTable(t *Table) ([]model.Reading, error) {
	if err := validateHeader(t.Header, haRecentColumns); err != nil {
		return nil, err
	}

	var readings []model.Reading
	for i, record := range t.Rows {
		reading, err := parseRecentRecord(record, i+2)
		if err != nil {
			continue
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func parseRecentRecord(record []string, lineNum int) (model.Reading, error) {
	if len(record) < 3 {
		return model.Reading{}, fmt.Errorf("line %d: expected 3 fields, got %d", lineNum, len(record))
	}

	entityID := strings.TrimSpace(record[0])

	value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing value: %w", lineNum, err)
	}

	ts, err := parseUnixTimestamp(strings.TrimSpace(record[2]))
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing timestamp: %w", lineNum, err)
	}

	return model.Reading{
		Timestamp: ts,
		SourceID:  entityID,
		Value:     value,
		Min:       value,
		Max:       value,
	}, nil
}
