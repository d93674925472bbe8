package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"energy_forecast/internal/model"
)

const SchemaHAHistory = "ha_history"

var haHistoryColumns = []string{"entity_id", "state", "last_changed"}

// HomeAssistantParser parses Home Assistant history CSV exports.
//
// Expected format:
//
//	entity_id,state,last_changed
//	sensor.xxx_power,759.59,2024-11-21T13:00:00.000Z
type HomeAssistantParser struct{}

func (p *HomeAssistantParser) Schema() string { return SchemaHAHistory }

func (p *HomeAssistantParser) Matches(header []string) bool {
	return headerHasPrefix(header, haHistoryColumns)
}

func (p *HomeAssistantParser) ParseTable(t *Table) ([]model.Reading, error) {
	if err := validateHeader(t.Header, haHistoryColumns); err != nil {
		return nil, err
	}

	var readings []model.Reading
	for i, record := range t.Rows {
		reading, err := p.parseRecord(record, i+2)
		if err != nil {
			// Skip unparseable rows (e.g. "unavailable" state)
			continue
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func validateHeader(header []string, expected []string) error {
	if len(header) < len(expected) {
		return fmt.Errorf("expected at least %d columns, got %d", len(expected), len(header))
	}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("expected column %d to be %q, got %q", i, col, header[i])
		}
	}
	return nil
}

func (p *HomeAssistantParser) parseRecord(record []string, lineNum int) (model.Reading, error) {
	if len(record) < 3 {
		return model.Reading{}, fmt.Errorf("line %d: expected 3 fields, got %d", lineNum, len(record))
	}

	entityID := strings.TrimSpace(record[0])

	value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing value %q: %w", lineNum, record[1], err)
	}

	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(record[2]))
	if err != nil {
		ts, err = time.Parse("2006-01-02T15:04:05.000Z", strings.TrimSpace(record[2]))
		if err != nil {
			return model.Reading{}, fmt.Errorf("line %d: parsing timestamp %q: %w", lineNum, record[2], err)
		}
	}

	return model.Reading{
		Timestamp: wallClock(ts),
		SourceID:  entityID,
		Value:     value,
		Min:       value,
		Max:       value,
	}, nil
}
