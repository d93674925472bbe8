// Package trend fits an additive seasonal trend model: a piecewise linear
// trend with automatic changepoints plus Fourier seasonalities, estimated
// jointly by penalised least squares.
package trend

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"energy_forecast/internal/model"
)

var ErrTooFewPoints = errors.New("trend: at least two points are required")

const day = 24 * time.Hour

// Seasonality periods in days.
const (
	PeriodDaily  = 1.0
	PeriodWeekly = 7.0
	PeriodYearly = 365.25
)

// Config controls model structure and regularization. A zero Fourier order
// disables that seasonality.
type Config struct {
	Changepoints          int     `json:"changepoints"`
	ChangepointRange      float64 `json:"changepoint_range"`
	ChangepointPriorScale float64 `json:"changepoint_prior_scale"`
	SeasonalityPriorScale float64 `json:"seasonality_prior_scale"`
	DailyOrder            int     `json:"daily_order"`
	WeeklyOrder           int     `json:"weekly_order"`
	YearlyOrder           int     `json:"yearly_order"`
}

// DefaultConfig returns the usual settings: 25 changepoints over the first
// 80% of history and daily, weekly and yearly seasonality.
func DefaultConfig() Config {
	return Config{
		Changepoints:          25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		DailyOrder:            4,
		WeeklyOrder:           3,
		YearlyOrder:           10,
	}
}

// Model is a fitted trend model.
type Model struct {
	Config       Config    `json:"config"`
	Start        time.Time `json:"start"`
	Span         float64   `json:"span_seconds"`
	YScale       float64   `json:"y_scale"`
	Changepoints []float64 `json:"changepoints"` // scaled time in [0,1]
	Beta         []float64 `json:"beta"`
}

// Components is the decomposition of one prediction in original units.
type Components struct {
	Trend  float64
	Daily  float64
	Weekly float64
	Yearly float64
}

// Total is the sum of all components.
func (c Components) Total() float64 {
	return c.Trend + c.Daily + c.Weekly + c.Yearly
}

// Fit estimates the model on a time-sorted training series.
func Fit(points []model.Point, cfg Config) (*Model, error) {
	n := len(points)
	if n < 2 {
		return nil, ErrTooFewPoints
	}

	m := &Model{
		Config: cfg,
		Start:  points[0].DS,
		Span:   points[n-1].DS.Sub(points[0].DS).Seconds(),
	}
	if m.Span <= 0 {
		return nil, fmt.Errorf("trend: training points span no time")
	}

	ys := model.Values(points)
	m.YScale = math.Max(math.Abs(floats.Max(ys)), math.Abs(floats.Min(ys)))
	if m.YScale == 0 {
		m.YScale = 1
	}
	m.Changepoints = m.placeChangepoints(points)

	p := m.width()
	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, pt := range points {
		X.SetRow(i, m.design(pt.DS))
		y.SetVec(i, pt.Y/m.YScale)
	}

	// Normal equations with a diagonal ridge penalty.
	var a mat.SymDense
	a.SymOuterK(1, X.T())
	for j, lambda := range m.penalties() {
		a.SetSym(j, j, a.At(j, j)+lambda)
	}
	var rhs mat.VecDense
	rhs.MulVec(X.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&a); !ok {
		return nil, fmt.Errorf("trend: normal equations are not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		return nil, fmt.Errorf("trend: solving normal equations: %w", err)
	}
	m.Beta = make([]float64, p)
	for j := range m.Beta {
		m.Beta[j] = beta.AtVec(j)
	}
	return m, nil
}

// placeChangepoints spreads potential changepoints evenly over the rows of
// the first ChangepointRange of history.
func (m *Model) placeChangepoints(points []model.Point) []float64 {
	hist := int(math.Floor(float64(len(points)) * m.Config.ChangepointRange))
	k := m.Config.Changepoints
	if k > hist-1 {
		k = hist - 1
	}
	if k <= 0 {
		return nil
	}
	cps := make([]float64, k)
	for i := 1; i <= k; i++ {
		idx := int(math.Round(float64(i) * float64(hist-1) / float64(k)))
		cps[i-1] = m.scaleTime(points[idx].DS)
	}
	return cps
}

func (m *Model) scaleTime(t time.Time) float64 {
	return t.Sub(m.Start).Seconds() / m.Span
}

func (m *Model) width() int {
	return 2 + len(m.Changepoints) + 2*(m.Config.DailyOrder+m.Config.WeeklyOrder+m.Config.YearlyOrder)
}

// design returns the regressor row for t:
// [1, t, (t-c_1)+ ... (t-c_k)+, daily fourier, weekly fourier, yearly fourier].
func (m *Model) design(t time.Time) []float64 {
	row := make([]float64, 0, m.width())
	s := m.scaleTime(t)
	row = append(row, 1, s)
	for _, c := range m.Changepoints {
		row = append(row, math.Max(0, s-c))
	}
	days := float64(t.Unix()) / day.Seconds()
	row = fourier(row, days, PeriodDaily, m.Config.DailyOrder)
	row = fourier(row, days, PeriodWeekly, m.Config.WeeklyOrder)
	row = fourier(row, days, PeriodYearly, m.Config.YearlyOrder)
	return row
}

func fourier(row []float64, days, period float64, order int) []float64 {
	for n := 1; n <= order; n++ {
		angle := 2 * math.Pi * float64(n) * days / period
		row = append(row, math.Sin(angle), math.Cos(angle))
	}
	return row
}

// penalties returns the ridge penalty per coefficient. Intercept and base
// slope are effectively free; changepoint deltas and Fourier terms are
// shrunk according to their prior scales.
func (m *Model) penalties() []float64 {
	pen := make([]float64, m.width())
	pen[0], pen[1] = 1e-8, 1e-8
	cp := 1 / (2 * m.Config.ChangepointPriorScale * m.Config.ChangepointPriorScale)
	for j := 0; j < len(m.Changepoints); j++ {
		pen[2+j] = cp
	}
	season := 1 / (2 * m.Config.SeasonalityPriorScale * m.Config.SeasonalityPriorScale)
	for j := 2 + len(m.Changepoints); j < len(pen); j++ {
		pen[j] = season
	}
	return pen
}

// Components decomposes the prediction at t.
func (m *Model) Components(t time.Time) Components {
	row := m.design(t)
	var c Components
	j := 0
	sum := func(n int) float64 {
		v := floats.Dot(row[j:j+n], m.Beta[j:j+n])
		j += n
		return v * m.YScale
	}
	c.Trend = sum(2 + len(m.Changepoints))
	c.Daily = sum(2 * m.Config.DailyOrder)
	c.Weekly = sum(2 * m.Config.WeeklyOrder)
	c.Yearly = sum(2 * m.Config.YearlyOrder)
	return c
}

// PredictAt returns yhat at a single timestamp.
func (m *Model) PredictAt(t time.Time) float64 {
	return floats.Dot(m.design(t), m.Beta) * m.YScale
}

// Predict returns yhat for each timestamp.
func (m *Model) Predict(ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = m.PredictAt(t)
	}
	return out
}

// Save serializes the model to JSON.
func (m *Model) Save() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Load deserializes a model saved with Save.
func Load(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that a decoded model is usable.
func (m *Model) Validate() error {
	if len(m.Beta) != m.width() {
		return fmt.Errorf("trend: model has %d coefficients, structure needs %d", len(m.Beta), m.width())
	}
	if m.Span <= 0 || m.YScale == 0 {
		return fmt.Errorf("trend: model has no time span or scale")
	}
	return nil
}
