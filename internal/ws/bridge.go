package ws

import (
	"energy_forecast/internal/monitoring"
	"energy_forecast/internal/pipeline"
	"energy_forecast/internal/service"
)

// Bridge implements service.Callback and broadcasts events to the WebSocket hub.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) OnStatus(s service.Status) {
	b.broadcast(TypeRunStatus, RunStatusFromService(s))
}

// OnResult pushes the data summary, the forecast and its scores, in that order.
func (b *Bridge) OnResult(r *pipeline.Result) {
	b.broadcast(TypeDataLoaded, DataLoadedFromResult(r))
	b.broadcast(TypeForecastUpdate, ForecastFromResult(r))
	b.broadcast(TypeMetricsUpdate, MetricsFromResult(r))
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		monitoring.Logf("Error marshaling %s: %v", msgType, err)
		return
	}
	b.hub.Broadcast(msg)
}
