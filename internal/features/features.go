package features

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"energy_forecast/internal/model"
)

// Feature column order. Regressors are trained and queried with vectors in
// exactly this order.
var Names = []string{
	"hour",
	"dayofweek",
	"month",
	"lag_1",
	"lag_24",
	"lag_168",
	"rolling_mean_24",
	"rolling_std_24",
}

// Lags are expressed in steps of the series' sampling interval.
var Lags = []int{1, 24, 168}

// Window is the rolling window length in steps.
const Window = 24

// MaxLookback is how many steps of history a feature row may reach back.
const MaxLookback = 168

// DefaultStep is used when the sampling interval cannot be inferred.
const DefaultStep = time.Hour

// Row is one featurized observation.
type Row struct {
	DS time.Time
	Y  float64
	X  []float64
}

// InferStep returns the median positive spacing between consecutive
// timestamps of a sorted series. The median is taken as an observed spacing
// so that lags always land on real grid points.
func InferStep(points []model.Point) time.Duration {
	var gaps []float64
	for i := 1; i < len(points); i++ {
		d := points[i].DS.Sub(points[i-1].DS)
		if d > 0 {
			gaps = append(gaps, float64(d))
		}
	}
	if len(gaps) == 0 {
		return DefaultStep
	}
	sort.Float64s(gaps)
	return time.Duration(stat.Quantile(0.5, stat.Empirical, gaps, nil))
}

// Calendar returns hour (0-23), day of week (Monday=0) and month (1-12).
func Calendar(t time.Time) (hour, dayOfWeek, month int) {
	return t.Hour(), (int(t.Weekday()) + 6) % 7, int(t.Month())
}

// Builder computes feature vectors from a set of known values. Every
// feature for time t reads only values strictly before t.
type Builder struct {
	step   time.Duration
	values map[int64]float64
}

// NewBuilder indexes history by timestamp. Later duplicates are ignored.
func NewBuilder(step time.Duration, history []model.Point) *Builder {
	if step <= 0 {
		step = DefaultStep
	}
	b := &Builder{step: step, values: make(map[int64]float64, len(history))}
	for _, p := range history {
		if _, ok := b.values[p.DS.UnixNano()]; !ok {
			b.values[p.DS.UnixNano()] = p.Y
		}
	}
	return b
}

// Step returns the sampling interval the builder uses for lags.
func (b *Builder) Step() time.Duration { return b.step }

// Set records (or replaces) the value at t. Recursive forecasting uses it to
// feed predictions back in as history.
func (b *Builder) Set(t time.Time, y float64) {
	b.values[t.UnixNano()] = y
}

// Value returns the known value at t.
func (b *Builder) Value(t time.Time) (float64, bool) {
	v, ok := b.values[t.UnixNano()]
	return v, ok
}

// Features returns the feature vector for t, or false when any lag or
// rolling-window value is missing.
func (b *Builder) Features(t time.Time) ([]float64, bool) {
	hour, dow, month := Calendar(t)
	x := make([]float64, 0, len(Names))
	x = append(x, float64(hour), float64(dow), float64(month))

	for _, k := range Lags {
		v, ok := b.Value(t.Add(-time.Duration(k) * b.step))
		if !ok {
			return nil, false
		}
		x = append(x, v)
	}

	window := make([]float64, Window)
	for k := 1; k <= Window; k++ {
		v, ok := b.Value(t.Add(-time.Duration(k) * b.step))
		if !ok {
			return nil, false
		}
		window[Window-k] = v
	}
	mean, std := stat.MeanStdDev(window, nil)
	x = append(x, mean, std)
	return x, true
}

// Build featurizes each target using values from history only. Targets
// without a complete feature vector are dropped.
func Build(history []model.Point, targets []model.Point, step time.Duration) []Row {
	b := NewBuilder(step, history)
	rows := make([]Row, 0, len(targets))
	for _, p := range targets {
		x, ok := b.Features(p.DS)
		if !ok {
			continue
		}
		rows = append(rows, Row{DS: p.DS, Y: p.Y, X: x})
	}
	return rows
}

// Matrix splits rows into a feature matrix and target vector.
func Matrix(rows []Row) ([][]float64, []float64) {
	X := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		X[i] = r.X
		y[i] = r.Y
	}
	return X, y
}
