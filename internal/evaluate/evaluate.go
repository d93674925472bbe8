// Package evaluate scores forecasts against actuals.
package evaluate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"energy_forecast/internal/model"
)

var (
	ErrEmpty          = errors.New("evaluate: no observations")
	ErrLengthMismatch = errors.New("evaluate: actual and forecast lengths differ")
)

// Metrics are point-forecast error measures. MAPE and SMAPE are percentages.
type Metrics struct {
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
	MAPE  float64 `json:"mape"`
	SMAPE float64 `json:"smape"`
	N     int     `json:"n"`
}

func (m Metrics) String() string {
	return fmt.Sprintf("MAE=%.2f RMSE=%.2f MAPE=%.2f%% SMAPE=%.2f%% (n=%d)", m.MAE, m.RMSE, m.MAPE, m.SMAPE, m.N)
}

// Score computes all metrics for forecast f against actual a.
//
// MAPE skips terms with a zero actual; SMAPE skips terms where both actual
// and forecast are zero. Either is NaN when every term was skipped.
func Score(a, f []float64) (Metrics, error) {
	if len(a) == 0 {
		return Metrics{}, ErrEmpty
	}
	if len(a) != len(f) {
		return Metrics{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(f))
	}

	diff := make([]float64, len(a))
	floats.SubTo(diff, f, a)

	abs := make([]float64, len(diff))
	sq := make([]float64, len(diff))
	for i, d := range diff {
		abs[i] = math.Abs(d)
		sq[i] = d * d
	}

	var ape, sape []float64
	for i := range a {
		if a[i] != 0 {
			ape = append(ape, abs[i]/math.Abs(a[i]))
		}
		if denom := math.Abs(a[i]) + math.Abs(f[i]); denom != 0 {
			sape = append(sape, 2*abs[i]/denom)
		}
	}

	return Metrics{
		MAE:   stat.Mean(abs, nil),
		RMSE:  math.Sqrt(stat.Mean(sq, nil)),
		MAPE:  100 * meanOrNaN(ape),
		SMAPE: 100 * meanOrNaN(sape),
		N:     len(a),
	}, nil
}

func meanOrNaN(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// Report holds the hybrid model's scores next to the trend-only baseline.
type Report struct {
	Hybrid   Metrics `json:"hybrid"`
	Baseline Metrics `json:"baseline"`
}

// Rows scores yhat_corrected (hybrid) and yhat (baseline) against y.
func Rows(rows []model.ForecastRow) (Report, error) {
	y := make([]float64, len(rows))
	yhat := make([]float64, len(rows))
	corrected := make([]float64, len(rows))
	for i, r := range rows {
		y[i], yhat[i], corrected[i] = r.Y, r.YHat, r.YHatCorrected
	}

	hybrid, err := Score(y, corrected)
	if err != nil {
		return Report{}, err
	}
	baseline, err := Score(y, yhat)
	if err != nil {
		return Report{}, err
	}
	return Report{Hybrid: hybrid, Baseline: baseline}, nil
}
