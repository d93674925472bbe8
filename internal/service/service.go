// Package service keeps the latest forecast in memory and re-runs the
// pipeline on demand or on a cron schedule.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"energy_forecast/internal/monitoring"
	"energy_forecast/internal/pipeline"
)

var ErrBusy = errors.New("service: a run is already in progress")

// Status describes the refresh state.
type Status struct {
	Running   bool      `json:"running"`
	RunID     string    `json:"run_id,omitempty"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

// Callback receives service events.
type Callback interface {
	OnStatus(status Status)
	OnResult(res *pipeline.Result)
}

// RunFunc produces one forecast.
type RunFunc func(ctx context.Context) (*pipeline.Result, error)

// Service serialises pipeline runs and remembers the last good result.
type Service struct {
	mu       sync.Mutex
	run      RunFunc
	callback Callback
	exporter *monitoring.Exporter

	running bool
	latest  *pipeline.Result
	status  Status

	cron *cron.Cron
}

// New creates a service. callback and exporter may be nil.
func New(run RunFunc, cb Callback, exp *monitoring.Exporter) *Service {
	return &Service{run: run, callback: cb, exporter: exp}
}

// Latest returns the last successful result, or nil before the first one.
func (s *Service) Latest() *pipeline.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Status returns a snapshot of the refresh state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Running = s.running
	return st
}

// Refresh runs the pipeline once and blocks until it finishes. A failed run
// keeps the previous result.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrBusy
	}
	s.running = true
	s.mu.Unlock()
	s.broadcastStatus()

	start := time.Now()
	res, err := s.run(ctx)
	took := time.Since(start)

	s.mu.Lock()
	s.running = false
	s.status.LastRun = time.Now()
	s.status.Runs++
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.RunID = res.RunID
		s.latest = res
	}
	s.mu.Unlock()

	if s.exporter != nil {
		if err != nil {
			s.exporter.RecordFailure(took)
		} else {
			s.exporter.RecordSuccess(res.Metrics, len(res.Rows), len(res.Skipped), took)
		}
	}

	if err != nil {
		monitoring.Logf("Forecast run failed after %s: %v", took.Round(time.Millisecond), err)
	} else {
		monitoring.Logf("Forecast run %s finished in %s", res.RunID, took.Round(time.Millisecond))
		if s.callback != nil {
			s.callback.OnResult(res)
		}
	}
	s.broadcastStatus()
	return err
}

// RefreshAsync starts a refresh in the background. It returns false when a
// run is already in progress.
func (s *Service) RefreshAsync() bool {
	s.mu.Lock()
	busy := s.running
	s.mu.Unlock()
	if busy {
		return false
	}
	go func() {
		if err := s.Refresh(context.Background()); err != nil && !errors.Is(err, ErrBusy) {
			monitoring.Logf("Warning: background refresh: %v", err)
		}
	}()
	return true
}

// Schedule re-runs the pipeline on a standard five-field cron spec.
func (s *Service) Schedule(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := s.Refresh(context.Background()); err != nil && !errors.Is(err, ErrBusy) {
			monitoring.Logf("Warning: scheduled refresh: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = c
	s.mu.Unlock()

	c.Start()
	return nil
}

// Stop halts the schedule and waits for a scheduled run in flight.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) broadcastStatus() {
	if s.callback != nil {
		s.callback.OnStatus(s.Status())
	}
}
