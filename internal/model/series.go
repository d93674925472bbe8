package model

import (
	"sort"
	"time"
)

// Reading is one observation taken from a source file.
type Reading struct {
	Timestamp time.Time
	SourceID  string
	Value     float64
	Min       float64
	Max       float64
	Unit      string
}

// Source describes where a set of readings came from.
type Source struct {
	ID     string // file path, or path#entity for multi-entity exports
	Path   string
	Schema string // "generic", "ha_history", "ha_stats", "ha_recent", "ha_recorder"
	Entity string
}

// Point is one row of the reconciled (ds, y) series.
type Point struct {
	DS time.Time
	Y  float64
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration returns End - Start.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// SortPoints sorts points by timestamp, keeping the relative order of equal timestamps.
func SortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].DS.Before(points[j].DS)
	})
}

// Times returns the timestamps of points.
func Times(points []Point) []time.Time {
	ts := make([]time.Time, len(points))
	for i, p := range points {
		ts[i] = p.DS
	}
	return ts
}

// Values returns the y values of points.
func Values(points []Point) []float64 {
	ys := make([]float64, len(points))
	for i, p := range points {
		ys[i] = p.Y
	}
	return ys
}

// ForecastRow is one evaluated row of the held-out window.
type ForecastRow struct {
	DS            time.Time
	Y             float64
	YHat          float64
	ResidualPred  float64
	YHatCorrected float64
}
