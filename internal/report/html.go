package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"energy_forecast/internal/evaluate"
	"energy_forecast/internal/model"
)

// Page builds the interactive forecast page: a line chart of the held-out
// window and a bar chart comparing hybrid and trend-only errors.
func Page(rows []model.ForecastRow, r evaluate.Report) *components.Page {
	xs := make([]string, len(rows))
	actual := make([]opts.LineData, len(rows))
	yhat := make([]opts.LineData, len(rows))
	corrected := make([]opts.LineData, len(rows))
	for i, row := range rows {
		xs[i] = row.DS.Format("01-02 15:04")
		actual[i] = opts.LineData{Value: row.Y}
		yhat[i] = opts.LineData{Value: row.YHat}
		corrected[i] = opts.LineData{Value: row.YHatCorrected}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Energy Demand Forecast", Width: "100%", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: "Energy Demand Forecast", Subtitle: fmt.Sprintf("held-out rows=%d", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Demand", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xs).
		AddSeries("Actual", actual).
		AddSeries("Trend", yhat, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"})).
		AddSeries("Trend + residual", corrected)

	names := []string{"MAE", "RMSE", "MAPE %", "SMAPE %"}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Held-out Error", Subtitle: fmt.Sprintf("n=%d", r.Hybrid.N)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	bar.SetXAxis(names).
		AddSeries("Hybrid", metricBars(r.Hybrid)).
		AddSeries("Trend only", metricBars(r.Baseline)).
		SetSeriesOptions(charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.PageTitle = "Energy Demand Forecast"
	page.AddCharts(line, bar)
	return page
}

func metricBars(m evaluate.Metrics) []opts.BarData {
	return []opts.BarData{
		{Value: round2(m.MAE)},
		{Value: round2(m.RMSE)},
		{Value: round2(m.MAPE)},
		{Value: round2(m.SMAPE)},
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// RenderHTML writes the forecast page to w.
func RenderHTML(w io.Writer, rows []model.ForecastRow, r evaluate.Report) error {
	return Page(rows, r).Render(w)
}

// WriteHTML writes the forecast page to path.
func WriteHTML(path string, rows []model.ForecastRow, r evaluate.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderHTML(f, rows, r); err != nil {
		f.Close()
		return fmt.Errorf("rendering page: %w", err)
	}
	return f.Close()
}
