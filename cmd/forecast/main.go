// forecast ingests zipped energy exports, fits the trend + residual model on
// everything but the last horizon, scores the held-out window and writes the
// forecast artifact.
//
// Usage:
//
//	forecast
//	forecast -config forecast.json
//	forecast -data-dir data -horizon 72h -mode recursive -plot out/forecast.png
//	forecast -regressor mlp -model-out model/hybrid.json -rows
//	forecast -components
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"energy_forecast/internal/config"
	"energy_forecast/internal/features"
	"energy_forecast/internal/model"
	"energy_forecast/internal/pipeline"
	"energy_forecast/internal/predictor"
	"energy_forecast/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dataDir := flag.String("data-dir", "", "directory containing zip archives (default \"data\")")
	extractDir := flag.String("extract-dir", "", "directory archives are extracted into (default \"extracted\")")
	entity := flag.String("entity", "", "entity to use from multi-entity exports (default: most frequent)")
	output := flag.String("output", "", "forecast artifact path (default \"forecast_output.json\")")
	plotPath := flag.String("plot", "", "write a PNG plot to this path")
	htmlPath := flag.String("html", "", "write an interactive HTML chart to this path")
	modelOut := flag.String("model-out", "", "write the fitted model bundle to this path")
	horizon := flag.String("horizon", "", "held-out window length (default \"48h\")")
	mode := flag.String("mode", "", "test-window evaluation: one-step or recursive")
	regressor := flag.String("regressor", "", "residual model: gbm or mlp")
	showRows := flag.Bool("rows", false, "print every evaluated row")
	showComponents := flag.Bool("components", false, "print the trend, seasonal and correction terms of every evaluated row")
	flag.Parse()

	cfg := config.EmptyForecastConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadForecastConfig(*configPath)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
		log.Printf("Loaded config from %s", *configPath)
	}
	config.SetString(&cfg.DataDir, *dataDir)
	config.SetString(&cfg.ExtractDir, *extractDir)
	config.SetString(&cfg.Entity, *entity)
	config.SetString(&cfg.Output, *output)
	config.SetString(&cfg.PlotPath, *plotPath)
	config.SetString(&cfg.HTMLPath, *htmlPath)
	config.SetString(&cfg.ModelPath, *modelOut)
	config.SetString(&cfg.Horizon, *horizon)
	config.SetString(&cfg.Mode, *mode)
	config.SetString(&cfg.Regressor, *regressor)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid options: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	res, err := pipeline.Run(ctx, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		log.Fatalf("Forecast failed: %v", err)
	}
	log.Printf("Run %s finished in %s", res.RunID, time.Since(start).Round(time.Millisecond))

	if err := report.WriteJSON(cfg.GetOutput(), res.Rows); err != nil {
		log.Fatalf("Writing artifact: %v", err)
	}
	log.Printf("Wrote %d rows to %s", len(res.Rows), cfg.GetOutput())

	if p := cfg.GetPlotPath(); p != "" {
		if err := report.WritePlot(p, res.Rows); err != nil {
			log.Printf("Warning: plot not written: %v", err)
		} else {
			log.Printf("Wrote plot to %s", p)
		}
	}
	if p := cfg.GetHTMLPath(); p != "" {
		if err := report.WriteHTML(p, res.Rows, res.Metrics); err != nil {
			log.Printf("Warning: HTML chart not written: %v", err)
		} else {
			log.Printf("Wrote HTML chart to %s", p)
		}
	}
	if p := cfg.GetModelPath(); p != "" {
		b, err := pipeline.NewBundle(res)
		if err == nil {
			err = b.Save(p)
		}
		if err != nil {
			log.Fatalf("Saving model bundle: %v", err)
		}
		log.Printf("Saved model bundle to %s", p)
	}

	fmt.Println()
	fmt.Printf("Sources: %d used, %d skipped, %d reconciled rows\n", len(res.Sources), len(res.Skipped), res.Points)
	fmt.Printf("Cutoff:  %s (%s mode, step %s, %d training rows)\n",
		res.Cutoff.Format("2006-01-02 15:04"), res.Mode, res.Step, res.TrainRows)
	fmt.Println()
	report.PrintMetrics(os.Stdout, res.Metrics)

	if g, ok := res.Model.Residual.(*predictor.GBM); ok && len(g.Trees) > 0 {
		fmt.Println()
		fmt.Printf("Residual GBM: %d trees, deepest %d\n", len(g.Trees), deepestTree(g))
		report.PrintImportance(os.Stdout, features.Names, g.FeatureImportance())
	}

	if *showRows {
		fmt.Println()
		report.PrintRows(os.Stdout, res.Rows)
	}
	if *showComponents {
		fmt.Println()
		report.PrintComponents(os.Stdout, componentRows(res.Model, res.Rows))
	}
}

// componentRows splits each evaluated row into trend model terms plus the
// residual correction applied on top of them.
func componentRows(h *pipeline.Hybrid, rows []model.ForecastRow) []report.ComponentRow {
	out := make([]report.ComponentRow, len(rows))
	for i, r := range rows {
		c := h.Trend.Components(r.DS)
		out[i] = report.ComponentRow{
			DS:         r.DS,
			Trend:      c.Trend,
			Daily:      c.Daily,
			Weekly:     c.Weekly,
			Yearly:     c.Yearly,
			Correction: r.YHatCorrected - r.YHat,
		}
	}
	return out
}

func deepestTree(g *predictor.GBM) int {
	deepest := 0
	for i := range g.Trees {
		deepest = max(deepest, g.Trees[i].Depth())
	}
	return deepest
}
