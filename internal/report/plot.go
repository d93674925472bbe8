package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"energy_forecast/internal/model"
)

// WritePlot renders actuals, the trend forecast and the corrected forecast
// over the held-out window. The image format follows the file extension.
func WritePlot(path string, rows []model.ForecastRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("no rows to plot")
	}

	actual := make(plotter.XYs, len(rows))
	trendPts := make(plotter.XYs, len(rows))
	corrected := make(plotter.XYs, len(rows))
	for i, r := range rows {
		x := float64(r.DS.Unix())
		actual[i] = plotter.XY{X: x, Y: r.Y}
		trendPts[i] = plotter.XY{X: x, Y: r.YHat}
		corrected[i] = plotter.XY{X: x, Y: r.YHatCorrected}
	}

	p := plot.New()
	p.Title.Text = "Energy Demand Forecast (held-out window)"
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Demand"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(actual)
	if err != nil {
		return fmt.Errorf("actual series: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(1.5)

	trendLine, err := plotter.NewLine(trendPts)
	if err != nil {
		return fmt.Errorf("trend series: %w", err)
	}
	trendLine.Color = color.RGBA{B: 200, A: 160}
	trendLine.Width = vg.Points(1)
	trendLine.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	correctedLine, err := plotter.NewLine(corrected)
	if err != nil {
		return fmt.Errorf("corrected series: %w", err)
	}
	correctedLine.Color = color.RGBA{R: 200, A: 255}
	correctedLine.Width = vg.Points(1.5)

	p.Add(scatter, trendLine, correctedLine)
	p.Legend.Add("Actual", scatter)
	p.Legend.Add("Trend", trendLine)
	p.Legend.Add("Trend + residual", correctedLine)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
