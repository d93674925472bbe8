package pipeline

import (
	"fmt"
	"time"

	"energy_forecast/internal/features"
	"energy_forecast/internal/model"
	"energy_forecast/internal/predictor"
	"energy_forecast/internal/trend"
)

// Hybrid is a trend model whose errors are corrected by a residual
// regressor on lag and calendar features.
type Hybrid struct {
	Trend    *trend.Model
	Residual predictor.Regressor
	Step     time.Duration
}

// FitHybrid fits the trend model on train, then trains reg on the trend's
// in-sample residuals for every training row with a complete feature vector.
// It returns the number of residual training rows.
func FitHybrid(train []model.Point, step time.Duration, tc trend.Config, reg predictor.Regressor) (*Hybrid, int, error) {
	tm, err := trend.Fit(train, tc)
	if err != nil {
		return nil, 0, fmt.Errorf("fitting trend model: %w", err)
	}

	rows := features.Build(train, train, step)
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("%w: no training row has %d steps of history", ErrInsufficientHistory, features.MaxLookback)
	}
	X, y := features.Matrix(rows)
	for i, r := range rows {
		y[i] = r.Y - tm.PredictAt(r.DS)
	}
	if err := reg.Fit(X, y); err != nil {
		return nil, 0, fmt.Errorf("fitting residual model: %w", err)
	}

	return &Hybrid{Trend: tm, Residual: reg, Step: step}, len(rows), nil
}

// PredictAt forecasts t from the values known to b. The returned row has Y
// unset.
func (h *Hybrid) PredictAt(b *features.Builder, t time.Time) (model.ForecastRow, bool) {
	x, ok := b.Features(t)
	if !ok {
		return model.ForecastRow{}, false
	}
	yhat := h.Trend.PredictAt(t)
	res := h.Residual.Predict(x)
	return model.ForecastRow{
		DS:            t,
		YHat:          yhat,
		ResidualPred:  res,
		YHatCorrected: yhat + res,
	}, true
}

// OneStep forecasts each target from all actuals before it.
func (h *Hybrid) OneStep(history, targets []model.Point) []model.ForecastRow {
	b := features.NewBuilder(h.Step, history)
	rows := make([]model.ForecastRow, 0, len(targets))
	for _, p := range targets {
		row, ok := h.PredictAt(b, p.DS)
		if !ok {
			continue
		}
		row.Y = p.Y
		rows = append(rows, row)
	}
	return rows
}

// Recursive forecasts targets in order starting from history alone; each
// corrected prediction becomes history for the targets after it.
func (h *Hybrid) Recursive(history, targets []model.Point) []model.ForecastRow {
	b := features.NewBuilder(h.Step, history)
	rows := make([]model.ForecastRow, 0, len(targets))
	for _, p := range targets {
		row, ok := h.PredictAt(b, p.DS)
		if !ok {
			continue
		}
		b.Set(p.DS, row.YHatCorrected)
		row.Y = p.Y
		rows = append(rows, row)
	}
	return rows
}

// Extend forecasts steps intervals past the end of history, recursively.
func (h *Hybrid) Extend(history []model.Point, steps int) []model.ForecastRow {
	if len(history) == 0 || steps <= 0 {
		return nil
	}
	b := features.NewBuilder(h.Step, history)
	last := history[len(history)-1].DS
	rows := make([]model.ForecastRow, 0, steps)
	for i := 1; i <= steps; i++ {
		t := last.Add(time.Duration(i) * h.Step)
		row, ok := h.PredictAt(b, t)
		if !ok {
			break
		}
		b.Set(t, row.YHatCorrected)
		rows = append(rows, row)
	}
	return rows
}
