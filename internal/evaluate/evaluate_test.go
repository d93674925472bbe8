package evaluate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy_forecast/internal/model"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, f []float64
		want Metrics
	}{
		{
			name: "perfect",
			a:    []float64{1, 2, 3},
			f:    []float64{1, 2, 3},
			want: Metrics{N: 3},
		},
		{
			name: "constant offset",
			a:    []float64{100, 200},
			f:    []float64{110, 190},
			want: Metrics{
				MAE:   10,
				RMSE:  10,
				MAPE:  7.5, // (10% + 5%) / 2
				SMAPE: 100 * (20.0/210.0 + 20.0/390.0) / 2,
				N:     2,
			},
		},
		{
			name: "mixed errors",
			a:    []float64{10, 20, 30, 40},
			f:    []float64{12, 18, 33, 40},
			want: Metrics{
				MAE:   1.75,
				RMSE:  math.Sqrt((4 + 4 + 9 + 0) / 4.0),
				MAPE:  100 * (0.2 + 0.1 + 0.1 + 0) / 4,
				SMAPE: 100 * (4.0/22 + 4.0/38 + 6.0/63 + 0) / 4,
				N:     4,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.a, tt.f)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.MAE, got.MAE, 1e-9)
			assert.InDelta(t, tt.want.RMSE, got.RMSE, 1e-9)
			assert.InDelta(t, tt.want.MAPE, got.MAPE, 1e-9)
			assert.InDelta(t, tt.want.SMAPE, got.SMAPE, 1e-9)
			assert.Equal(t, tt.want.N, got.N)
		})
	}
}

func TestScore_Errors(t *testing.T) {
	_, err := Score(nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Score([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestScore_ZeroActuals(t *testing.T) {
	m, err := Score([]float64{0, 10}, []float64{1, 10})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, m.MAPE, 1e-9, "zero actual is skipped")
	assert.InDelta(t, 100.0, m.SMAPE, 1e-9) // (2 + 0) / 2

	m, err = Score([]float64{0}, []float64{0})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.MAPE))
	assert.True(t, math.IsNaN(m.SMAPE))
}

func TestRows(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.ForecastRow{
		{DS: ts, Y: 100, YHat: 90, ResidualPred: 8, YHatCorrected: 98},
		{DS: ts.Add(time.Hour), Y: 100, YHat: 120, ResidualPred: -18, YHatCorrected: 102},
	}

	r, err := Rows(rows)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r.Hybrid.MAE, 1e-9)
	assert.InDelta(t, 15.0, r.Baseline.MAE, 1e-9)
	assert.Less(t, r.Hybrid.RMSE, r.Baseline.RMSE)

	_, err = Rows(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}
