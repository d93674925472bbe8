package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"energy_forecast/internal/features"
	"energy_forecast/internal/model"
	"energy_forecast/internal/predictor"
	"energy_forecast/internal/trend"
)

// Bundle is a fitted hybrid model written to disk for later forecasting.
type Bundle struct {
	RunID             string          `json:"run_id"`
	CreatedAt         time.Time       `json:"created_at"`
	StepSeconds       float64         `json:"step_seconds"`
	Features          []string        `json:"features"`
	Trend             *trend.Model    `json:"trend"`
	Residual          json.RawMessage `json:"residual"`
	ResidualStdByHour [24]float64     `json:"residual_std_by_hour"`
}

// NewBundle packages the model of a finished run.
func NewBundle(r *Result) (*Bundle, error) {
	residual, err := predictor.Save(r.Model.Residual)
	if err != nil {
		return nil, fmt.Errorf("encoding residual model: %w", err)
	}
	return &Bundle{
		RunID:             r.RunID,
		CreatedAt:         time.Now().UTC(),
		StepSeconds:       r.Step.Seconds(),
		Features:          features.Names,
		Trend:             r.Model.Trend,
		Residual:          residual,
		ResidualStdByHour: r.ResidualStdByHour,
	}, nil
}

// Save writes the bundle as indented JSON, creating parent directories.
func (b *Bundle) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadBundle reads a bundle written by Save.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	if b.Trend == nil || len(b.Residual) == 0 {
		return nil, fmt.Errorf("bundle %s is missing a model", path)
	}
	if len(b.Features) != len(features.Names) {
		return nil, fmt.Errorf("bundle %s was trained on %d features, want %d", path, len(b.Features), len(features.Names))
	}
	return &b, nil
}

// Hybrid reconstructs the fitted model.
func (b *Bundle) Hybrid() (*Hybrid, error) {
	if err := b.Trend.Validate(); err != nil {
		return nil, err
	}
	reg, err := predictor.Load(b.Residual)
	if err != nil {
		return nil, err
	}
	return &Hybrid{
		Trend:    b.Trend,
		Residual: reg,
		Step:     time.Duration(b.StepSeconds * float64(time.Second)),
	}, nil
}

// Projection is one future step with an approximate 80% band from the
// held-out error spread at that hour.
type Projection struct {
	model.ForecastRow
	Lower float64
	Upper float64
}

// Project extends history by steps intervals and attaches error bands.
func (b *Bundle) Project(history []model.Point, steps int) ([]Projection, error) {
	h, err := b.Hybrid()
	if err != nil {
		return nil, err
	}
	rows := h.Extend(history, steps)
	out := make([]Projection, len(rows))
	for i, r := range rows {
		band := 1.2816 * b.ResidualStdByHour[r.DS.Hour()]
		out[i] = Projection{ForecastRow: r, Lower: r.YHatCorrected - band, Upper: r.YHatCorrected + band}
	}
	return out, nil
}
