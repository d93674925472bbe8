package store

import (
	"sort"
	"sync"
	"time"

	"energy_forecast/internal/model"
)

// Store holds readings in memory, indexed by source ID. Sources remember the
// order they were added in, which decides duplicate resolution in Merged.
type Store struct {
	mu       sync.RWMutex
	order    []string
	sources  map[string]model.Source
	readings map[string][]model.Reading // keyed by source ID, sorted by timestamp
}

func New() *Store {
	return &Store{
		sources:  make(map[string]model.Source),
		readings: make(map[string][]model.Reading),
	}
}

// AddSource registers a source. Re-adding a known ID updates its metadata
// but keeps its original position in the load order.
func (s *Store) AddSource(src model.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSourceLocked(src)
}

func (s *Store) addSourceLocked(src model.Source) {
	if _, ok := s.sources[src.ID]; !ok {
		s.order = append(s.order, src.ID)
	}
	s.sources[src.ID] = src
}

// AddReadings adds readings, then sorts each affected source by timestamp.
// Readings for unknown sources register a bare source on the fly.
func (s *Store) AddReadings(readings []model.Reading) {
	if len(readings) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range readings {
		if _, ok := s.sources[r.SourceID]; !ok {
			s.addSourceLocked(model.Source{ID: r.SourceID})
		}
		s.readings[r.SourceID] = append(s.readings[r.SourceID], r)
	}

	// Stable so that rows sharing a timestamp keep their file order.
	seen := make(map[string]bool)
	for _, r := range readings {
		if !seen[r.SourceID] {
			seen[r.SourceID] = true
			rs := s.readings[r.SourceID]
			sort.SliceStable(rs, func(i, j int) bool {
				return rs[i].Timestamp.Before(rs[j].Timestamp)
			})
		}
	}
}

// AddSeries registers src and stores its readings under src.ID.
func (s *Store) AddSeries(src model.Source, readings []model.Reading) {
	s.AddSource(src)
	tagged := make([]model.Reading, len(readings))
	for i, r := range readings {
		r.SourceID = src.ID
		tagged[i] = r
	}
	s.AddReadings(tagged)
}

// Sources returns all registered sources in load order.
func (s *Store) Sources() []model.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]model.Source, 0, len(s.order))
	for _, id := range s.order {
		sources = append(sources, s.sources[id])
	}
	return sources
}

// ReadingCount returns the total number of readings for a source.
func (s *Store) ReadingCount(sourceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings[sourceID])
}

// TimeRange returns the time range covered by a source's readings.
func (s *Store) TimeRange(sourceID string) (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.readings[sourceID]
	if len(readings) == 0 {
		return model.TimeRange{}, false
	}

	return model.TimeRange{
		Start: readings[0].Timestamp,
		End:   readings[len(readings)-1].Timestamp,
	}, true
}

// GlobalTimeRange returns the union of all sources' time ranges.
func (s *Store) GlobalTimeRange() (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var start, end time.Time
	first := true

	for _, readings := range s.readings {
		if len(readings) == 0 {
			continue
		}
		rStart := readings[0].Timestamp
		rEnd := readings[len(readings)-1].Timestamp

		if first || rStart.Before(start) {
			start = rStart
		}
		if first || rEnd.After(end) {
			end = rEnd
		}
		first = false
	}

	if first {
		return model.TimeRange{}, false
	}
	return model.TimeRange{Start: start, End: end}, true
}

// Merged reconciles every source into one (ds, y) series. Sources are
// concatenated in load order; for a timestamp present more than once the
// first row wins. The result is sorted by ds.
func (s *Store) Merged() []model.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	var points []model.Point
	for _, id := range s.order {
		for _, r := range s.readings[id] {
			key := r.Timestamp.UnixNano()
			if seen[key] {
				continue
			}
			seen[key] = true
			points = append(points, model.Point{DS: r.Timestamp, Y: r.Value})
		}
	}
	model.SortPoints(points)
	return points
}
