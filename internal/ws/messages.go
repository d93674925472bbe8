package ws

import (
	"encoding/json"
	"math"

	"energy_forecast/internal/evaluate"
	"energy_forecast/internal/pipeline"
	"energy_forecast/internal/report"
	"energy_forecast/internal/service"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages
const (
	TypeForecastRefresh = "forecast:refresh"
	TypeForecastGet     = "forecast:get"
)

// Server -> Client messages
const (
	TypeForecastUpdate = "forecast:update"
	TypeMetricsUpdate  = "metrics:update"
	TypeDataLoaded     = "data:loaded"
	TypeRunStatus      = "run:status"
)

// ForecastPayload carries the artifact columns of one run.
type ForecastPayload struct {
	RunID  string `json:"run_id"`
	Cutoff string `json:"cutoff"`
	Mode   string `json:"mode"`
	report.Artifact
}

type MetricsValues struct {
	MAE   float64  `json:"mae"`
	RMSE  float64  `json:"rmse"`
	MAPE  *float64 `json:"mape"`
	SMAPE *float64 `json:"smape"`
	N     int      `json:"n"`
}

type MetricsPayload struct {
	RunID    string        `json:"run_id"`
	Hybrid   MetricsValues `json:"hybrid"`
	Baseline MetricsValues `json:"baseline"`
}

type SourceInfo struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Schema string `json:"schema"`
	Entity string `json:"entity,omitempty"`
}

type SkippedInfo struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type DataLoadedPayload struct {
	Sources []SourceInfo  `json:"sources"`
	Skipped []SkippedInfo `json:"skipped"`
	Points  int           `json:"points"`
	Start   string        `json:"start,omitempty"`
	End     string        `json:"end,omitempty"`
	Step    string        `json:"step"`
}

type RunStatusPayload struct {
	Running   bool   `json:"running"`
	RunID     string `json:"run_id,omitempty"`
	LastRun   string `json:"last_run,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Runs      int    `json:"runs"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func ForecastFromResult(r *pipeline.Result) ForecastPayload {
	return ForecastPayload{
		RunID:    r.RunID,
		Cutoff:   r.Cutoff.Format(report.TimeLayout),
		Mode:     r.Mode,
		Artifact: report.NewArtifact(r.Rows),
	}
}

func MetricsFromResult(r *pipeline.Result) MetricsPayload {
	return MetricsPayload{
		RunID:    r.RunID,
		Hybrid:   metricsValues(r.Metrics.Hybrid),
		Baseline: metricsValues(r.Metrics.Baseline),
	}
}

// metricsValues maps NaN percentages (all actuals zero) to JSON null.
func metricsValues(m evaluate.Metrics) MetricsValues {
	v := MetricsValues{MAE: m.MAE, RMSE: m.RMSE, N: m.N}
	if !math.IsNaN(m.MAPE) {
		mape := m.MAPE
		v.MAPE = &mape
	}
	if !math.IsNaN(m.SMAPE) {
		smape := m.SMAPE
		v.SMAPE = &smape
	}
	return v
}

func DataLoadedFromResult(r *pipeline.Result) DataLoadedPayload {
	p := DataLoadedPayload{
		Sources: make([]SourceInfo, 0, len(r.Sources)),
		Skipped: make([]SkippedInfo, 0, len(r.Skipped)),
		Points:  r.Points,
		Step:    r.Step.String(),
	}
	for _, s := range r.Sources {
		p.Sources = append(p.Sources, SourceInfo{ID: s.ID, Path: s.Path, Schema: s.Schema, Entity: s.Entity})
	}
	for _, s := range r.Skipped {
		p.Skipped = append(p.Skipped, SkippedInfo{Path: s.Path, Error: s.Err.Error()})
	}
	if n := len(r.History); n > 0 {
		p.Start = r.History[0].DS.Format(report.TimeLayout)
		p.End = r.History[n-1].DS.Format(report.TimeLayout)
	}
	return p
}

func RunStatusFromService(s service.Status) RunStatusPayload {
	p := RunStatusPayload{
		Running:   s.Running,
		RunID:     s.RunID,
		LastError: s.LastError,
		Runs:      s.Runs,
	}
	if !s.LastRun.IsZero() {
		p.LastRun = s.LastRun.Format(report.TimeLayout)
	}
	return p
}
