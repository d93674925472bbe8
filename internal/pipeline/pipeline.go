// Package pipeline runs the forecast end to end: extract archives, load and
// reconcile exports, split by time, fit the hybrid model and score it on the
// held-out window.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"energy_forecast/internal/archive"
	"energy_forecast/internal/config"
	"energy_forecast/internal/evaluate"
	"energy_forecast/internal/features"
	"energy_forecast/internal/ingest"
	"energy_forecast/internal/model"
	"energy_forecast/internal/monitoring"
	"energy_forecast/internal/predictor"
	"energy_forecast/internal/store"
)

var ErrInsufficientHistory = errors.New("pipeline: insufficient history")

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Cutoff    time.Time
	Step      time.Duration
	Mode      string
	Sources   []model.Source
	Skipped   []ingest.Skipped
	Points    int
	TrainRows int
	Rows      []model.ForecastRow
	Metrics   evaluate.Report
	// ResidualStdByHour is the spread of held-out errors per hour of day.
	ResidualStdByHour [24]float64
	Model             *Hybrid
	// History is the reconciled series the run was fitted on.
	History []model.Point
}

// Dataset is the reconciled series of all usable input files.
type Dataset struct {
	Points  []model.Point
	Sources []model.Source
	Skipped []ingest.Skipped
}

// Load extracts the archives in opts.DataDir and reconciles every usable
// file into one time-sorted series.
func Load(ctx context.Context, opts Options) (*Dataset, error) {
	monitoring.Logf("Extracting archives from %s...", opts.DataDir)
	dirs, err := archive.Extract(opts.DataDir, opts.ExtractDir)
	if err != nil {
		return nil, fmt.Errorf("extracting archives: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	monitoring.Logf("Loading files from %d directories...", len(dirs))
	series, skipped, err := ingest.NewLoader(opts.Entity).LoadDirs(dirs...)
	for _, s := range skipped {
		monitoring.Logf("Warning: skipping %s: %v", s.Path, s.Err)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := store.New()
	for _, s := range series {
		st.AddSeries(s.Source, s.Readings)
		if tr, ok := st.TimeRange(s.Source.ID); ok {
			monitoring.Logf("  %s: %d readings, %s to %s", s.Source.ID, st.ReadingCount(s.Source.ID),
				tr.Start.Format("2006-01-02 15:04"), tr.End.Format("2006-01-02 15:04"))
		}
	}
	points := st.Merged()
	if tr, ok := st.GlobalTimeRange(); ok {
		monitoring.Logf("Reconciled %d rows from %d sources (%s to %s)",
			len(points), len(series), tr.Start.Format("2006-01-02 15:04"), tr.End.Format("2006-01-02 15:04"))
	}
	return &Dataset{Points: points, Sources: st.Sources(), Skipped: skipped}, nil
}

// Run executes the full pipeline from the zip archives in opts.DataDir.
func Run(ctx context.Context, opts Options) (*Result, error) {
	ds, err := Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	res, err := Forecast(ctx, ds.Points, opts)
	if err != nil {
		return nil, err
	}
	res.Sources = ds.Sources
	res.Skipped = ds.Skipped
	return res, nil
}

// Forecast fits and evaluates the hybrid model on an already reconciled,
// time-sorted series.
func Forecast(ctx context.Context, points []model.Point, opts Options) (*Result, error) {
	step := features.InferStep(points)
	train, test, cutoff := Split(points, opts.Horizon)
	if len(train) < 2 || len(test) == 0 {
		return nil, fmt.Errorf("%w: %d train and %d test rows around cutoff %s",
			ErrInsufficientHistory, len(train), len(test), cutoff.Format("2006-01-02 15:04"))
	}
	monitoring.Logf("Split at %s: %d train, %d test rows (step %s)",
		cutoff.Format("2006-01-02 15:04"), len(train), len(test), step)

	reg, err := opts.newRegressor()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	monitoring.Logf("Fitting trend and %s residual model...", regressorName(reg))
	h, trainRows, err := FitHybrid(train, step, opts.Trend, reg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.ForecastRow
	switch opts.Mode {
	case config.ModeRecursive:
		rows = h.Recursive(train, test)
	default:
		rows = h.OneStep(points, test)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no test row has a complete feature vector", ErrInsufficientHistory)
	}

	report, err := evaluate.Rows(rows)
	if err != nil {
		return nil, err
	}

	hours := make([]int, len(rows))
	pred := make([]float64, len(rows))
	actual := make([]float64, len(rows))
	for i, r := range rows {
		hours[i], pred[i], actual[i] = r.DS.Hour(), r.YHatCorrected, r.Y
	}

	mode := opts.Mode
	if mode == "" {
		mode = config.ModeOneStep
	}
	return &Result{
		RunID:             uuid.NewString(),
		Cutoff:            cutoff,
		Step:              step,
		Mode:              mode,
		Points:            len(points),
		TrainRows:         trainRows,
		Rows:              rows,
		Metrics:           report,
		ResidualStdByHour: predictor.ComputeResidualNoiseByHour(hours, pred, actual),
		Model:             h,
		History:           points,
	}, nil
}

func regressorName(r predictor.Regressor) string {
	switch r.(type) {
	case *predictor.GBM:
		return "gradient boosting"
	case *predictor.MLP:
		return "neural network"
	}
	return fmt.Sprintf("%T", r)
}
