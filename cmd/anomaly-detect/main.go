// anomaly-detect replays the fitted model over the whole history one step at
// a time and flags days whose total demand strays far from the forecast.
//
// Usage:
//
//	anomaly-detect -model model/hybrid.json
//	anomaly-detect -sigma 2.5 -min-rows 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"energy_forecast/internal/config"
	"energy_forecast/internal/model"
	"energy_forecast/internal/pipeline"
)

type dayStats struct {
	Date         string
	Actual       float64
	Predicted    float64
	DeviationPct float64
	Rows         int
	Category     string
	Cause        string
}

func main() {
	modelPath := flag.String("model", "model/hybrid.json", "path to model bundle JSON")
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dataDir := flag.String("data-dir", "", "directory containing zip archives (default \"data\")")
	extractDir := flag.String("extract-dir", "", "directory archives are extracted into (default \"extracted\")")
	entity := flag.String("entity", "", "entity to use from multi-entity exports")
	sigma := flag.Float64("sigma", 2.0, "standard deviation threshold for flagging anomalies")
	minRows := flag.Int("min-rows", 20, "minimum forecast rows for a day to be considered")
	flag.Parse()

	cfg := config.EmptyForecastConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadForecastConfig(*configPath)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
	}
	config.SetString(&cfg.DataDir, *dataDir)
	config.SetString(&cfg.ExtractDir, *extractDir)
	config.SetString(&cfg.Entity, *entity)

	bundle, err := pipeline.LoadBundle(*modelPath)
	if err != nil {
		log.Fatalf("Loading model: %v", err)
	}
	h, err := bundle.Hybrid()
	if err != nil {
		log.Fatalf("Restoring model: %v", err)
	}

	ds, err := pipeline.Load(context.Background(), pipeline.OptionsFromConfig(cfg))
	if err != nil {
		log.Fatalf("Loading data: %v", err)
	}
	if len(ds.Points) == 0 {
		log.Fatal("No data loaded")
	}
	first, last := ds.Points[0].DS, ds.Points[len(ds.Points)-1].DS

	fmt.Println()
	fmt.Println("Demand Anomaly Detection")
	fmt.Printf("  Data: %s to %s (%.0f days)\n", first.Format("2006-01-02"), last.Format("2006-01-02"), last.Sub(first).Hours()/24)
	fmt.Printf("  Model: %s | Sigma threshold: %.1f | Min rows per day: %d\n", bundle.RunID, *sigma, *minRows)
	fmt.Println()

	rows := h.OneStep(ds.Points, ds.Points)
	allDays := dailyStats(rows, *minRows)
	if len(allDays) == 0 {
		fmt.Println("No days with sufficient data found.")
		return
	}

	flagged, mean, stddev := flagAnomalies(allDays, *sigma)

	// Summary
	n := float64(len(allDays))
	fmt.Printf("  Days analyzed: %d\n", len(allDays))
	fmt.Printf("  Mean deviation: %+.1f%%\n", mean)
	fmt.Printf("  Std deviation:  %.1f%%\n", stddev)
	fmt.Printf("  Anomalies found: %d (%.1f%%)\n", len(flagged), 100*float64(len(flagged))/n)
	fmt.Println()

	if len(flagged) == 0 {
		fmt.Println("  No anomalous days detected.")
		return
	}

	fmt.Printf("  %-12s │ %10s │ %10s │ %8s │ %5s │ %5s │ %s\n",
		"Date", "Actual", "Forecast", "Dev %", "Rows", "Type", "Possible Cause")
	fmt.Printf("  ─────────────┼────────────┼────────────┼──────────┼───────┼───────┼─────────────────────\n")
	for _, d := range flagged {
		fmt.Printf("  %-12s │ %10.1f │ %10.1f │ %+7.1f  │ %5d │ %5s │ %s\n",
			d.Date, d.Actual, d.Predicted, d.DeviationPct, d.Rows, d.Category, d.Cause)
	}
	fmt.Println()
}

// dailyStats sums actuals and corrected forecasts per calendar day. Days with
// fewer than minRows rows are left out.
func dailyStats(rows []model.ForecastRow, minRows int) []dayStats {
	byDay := make(map[string]*dayStats)
	for _, r := range rows {
		key := r.DS.Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			d = &dayStats{Date: key}
			byDay[key] = d
		}
		d.Actual += r.Y
		d.Predicted += r.YHatCorrected
		d.Rows++
	}

	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []dayStats
	for _, k := range keys {
		d := byDay[k]
		if d.Rows < minRows {
			continue
		}
		if d.Predicted > 0 {
			d.DeviationPct = (d.Actual - d.Predicted) / d.Predicted * 100
		}
		out = append(out, *d)
	}
	return out
}

// flagAnomalies marks days whose deviation is more than sigma population
// standard deviations from the mean deviation.
func flagAnomalies(days []dayStats, sigma float64) (flagged []dayStats, mean, stddev float64) {
	devs := make([]float64, len(days))
	for i, d := range days {
		devs[i] = d.DeviationPct
	}
	mean, variance := stat.PopMeanVariance(devs, nil)
	stddev = math.Sqrt(variance)

	for _, d := range days {
		if math.Abs(d.DeviationPct-mean) <= sigma*stddev {
			continue
		}
		if d.Actual > d.Predicted {
			d.Category = "HIGH"
		} else {
			d.Category = "LOW"
		}
		d.Cause = inferCause(d)
		flagged = append(flagged, d)
	}
	return flagged, mean, stddev
}

func inferCause(d dayStats) string {
	if d.Category == "HIGH" {
		if d.DeviationPct > 100 {
			return "Very high usage, guests or appliance fault?"
		}
		return "Above-normal consumption"
	}
	if d.DeviationPct < -50 {
		return "Very low usage, away from home?"
	}
	return "Below-normal consumption"
}
