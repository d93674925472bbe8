package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy_forecast/internal/model"
)

// rowsFor builds 24 hourly rows for each day with the given daily actual and
// forecast totals.
func rowsFor(start time.Time, actual, forecast []float64) []model.ForecastRow {
	var rows []model.ForecastRow
	for d := range actual {
		for h := range 24 {
			rows = append(rows, model.ForecastRow{
				DS:            start.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour),
				Y:             actual[d] / 24,
				YHatCorrected: forecast[d] / 24,
			})
		}
	}
	return rows
}

func TestDailyStats(t *testing.T) {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	rows := rowsFor(start, []float64{240, 120}, []float64{200, 120})
	// a partial day that must be dropped
	rows = append(rows, model.ForecastRow{DS: start.AddDate(0, 0, 2), Y: 5, YHatCorrected: 5})

	days := dailyStats(rows, 20)
	require.Len(t, days, 2)

	assert.Equal(t, "2024-11-01", days[0].Date)
	assert.InDelta(t, 240, days[0].Actual, 1e-9)
	assert.InDelta(t, 200, days[0].Predicted, 1e-9)
	assert.InDelta(t, 20, days[0].DeviationPct, 1e-9)
	assert.Equal(t, 24, days[0].Rows)

	assert.Equal(t, "2024-11-02", days[1].Date)
	assert.InDelta(t, 0, days[1].DeviationPct, 1e-9)
}

func TestFlagAnomalies(t *testing.T) {
	days := []dayStats{
		{Date: "d1", Actual: 100, Predicted: 100, DeviationPct: 0},
		{Date: "d2", Actual: 101, Predicted: 100, DeviationPct: 1},
		{Date: "d3", Actual: 99, Predicted: 100, DeviationPct: -1},
		{Date: "d4", Actual: 100, Predicted: 100, DeviationPct: 0},
		{Date: "d5", Actual: 100, Predicted: 100, DeviationPct: 0},
		{Date: "d6", Actual: 100, Predicted: 100, DeviationPct: 0},
		{Date: "d7", Actual: 100, Predicted: 100, DeviationPct: 0},
		{Date: "d8", Actual: 300, Predicted: 100, DeviationPct: 200},
	}

	flagged, mean, stddev := flagAnomalies(days, 2)
	assert.InDelta(t, 25, mean, 1e-9)
	assert.Greater(t, stddev, 0.0)

	require.Len(t, flagged, 1)
	assert.Equal(t, "d8", flagged[0].Date)
	assert.Equal(t, "HIGH", flagged[0].Category)
	assert.Equal(t, "Very high usage, guests or appliance fault?", flagged[0].Cause)
}

func TestFlagAnomalies_NoneWhenUniform(t *testing.T) {
	days := []dayStats{{DeviationPct: 5}, {DeviationPct: 5}, {DeviationPct: 5}}
	flagged, _, stddev := flagAnomalies(days, 2)
	assert.Empty(t, flagged)
	assert.Equal(t, 0.0, stddev)
}

func TestInferCause(t *testing.T) {
	tests := []struct {
		name string
		day  dayStats
		want string
	}{
		{"very high", dayStats{Category: "HIGH", DeviationPct: 150}, "Very high usage, guests or appliance fault?"},
		{"high", dayStats{Category: "HIGH", DeviationPct: 40}, "Above-normal consumption"},
		{"very low", dayStats{Category: "LOW", DeviationPct: -70}, "Very low usage, away from home?"},
		{"low", dayStats{Category: "LOW", DeviationPct: -20}, "Below-normal consumption"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferCause(tt.day))
		})
	}
}
