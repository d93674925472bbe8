package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsParser_Parse(t *testing.T) {
	input := `sensor_id,start_time,avg,min_val,max_val
sensor.0x943469fffed2bf71_power,1732186800.0,-368.85,-810.0,-162.0
sensor.0x943469fffed2bf71_power,1732190400.0,759.59,-286.0,2214.0`

	parser := &StatsParser{}
	readings, err := parseCSV(parser, strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "sensor.0x943469fffed2bf71_power", readings[0].SourceID)
	assert.InDelta(t, -368.85, readings[0].Value, 0.001)
	assert.InDelta(t, -810.0, readings[0].Min, 0.001)
	assert.InDelta(t, -162.0, readings[0].Max, 0.001)
	assert.Equal(t, time.Date(2024, 11, 21, 11, 0, 0, 0, time.UTC), readings[0].Timestamp)

	assert.InDelta(t, 759.59, readings[1].Value, 0.001)
	assert.InDelta(t, -286.0, readings[1].Min, 0.001)
	assert.InDelta(t, 2214.0, readings[1].Max, 0.001)
}

func TestStatsParser_MissingBoundsFallBackToMean(t *testing.T) {
	input := `sensor_id,start_time,avg,min_val,max_val
sensor.grid,1732186800.0,420.5,,`

	readings, err := parseCSV(&StatsParser{}, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 420.5, readings[0].Min)
	assert.Equal(t, 420.5, readings[0].Max)
}

func TestStatsParser_InvalidHeader(t *testing.T) {
	input := `wrong_col,start_time,avg,min_val,max_val
sensor.0x943469fffed2bf71_power,1732186800.0,-368.85,-810.0,-162.0`

	parser := &StatsParser{}
	_, err := parseCSV(parser, strings.NewReader(input))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sensor_id")
}

func TestStatsParser_EmptyInput(t *testing.T) {
	parser := &StatsParser{}
	_, err := parseCSV(parser, strings.NewReader(""))

	assert.Error(t, err)
}

func TestParseUnixTimestamp(t *testing.T) {
	ts, err := parseUnixTimestamp("1770896300.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1770896300), ts.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))

	_, err = parseUnixTimestamp("yesterday")
	assert.Error(t, err)
}
