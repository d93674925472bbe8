// Package report writes forecast results for people and for the display
// layer: the JSON artifact, a PNG plot, an interactive HTML chart and
// console tables.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"energy_forecast/internal/model"
)

// TimeLayout is how timestamps appear in the artifact.
const TimeLayout = "2006-01-02 15:04:05"

// Artifact is the column-oriented forecast file consumed by the frontend.
type Artifact struct {
	DS            []string  `json:"ds"`
	Y             []float64 `json:"y"`
	YHat          []float64 `json:"yhat"`
	YHatCorrected []float64 `json:"yhat_corrected"`
}

// NewArtifact converts evaluated rows into parallel columns.
func NewArtifact(rows []model.ForecastRow) Artifact {
	a := Artifact{
		DS:            make([]string, len(rows)),
		Y:             make([]float64, len(rows)),
		YHat:          make([]float64, len(rows)),
		YHatCorrected: make([]float64, len(rows)),
	}
	for i, r := range rows {
		a.DS[i] = r.DS.Format(TimeLayout)
		a.Y[i] = r.Y
		a.YHat[i] = r.YHat
		a.YHatCorrected[i] = r.YHatCorrected
	}
	return a
}

// WriteJSON writes the artifact to path, creating parent directories.
func WriteJSON(path string, rows []model.ForecastRow) error {
	data, err := json.MarshalIndent(NewArtifact(rows), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
