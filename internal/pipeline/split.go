package pipeline

import (
	"time"

	"energy_forecast/internal/model"
)

// Split divides a sorted series at cutoff = last ds - horizon. Train holds
// ds < cutoff, test holds ds >= cutoff.
func Split(points []model.Point, horizon time.Duration) (train, test []model.Point, cutoff time.Time) {
	if len(points) == 0 {
		return nil, nil, time.Time{}
	}
	cutoff = points[len(points)-1].DS.Add(-horizon)
	for i, p := range points {
		if !p.DS.Before(cutoff) {
			return points[:i], points[i:], cutoff
		}
	}
	return points, nil, cutoff
}
