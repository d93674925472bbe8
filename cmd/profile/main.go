// profile loads the reconciled demand series and prints when the load
// happens: per-month energy, the average day and the average week.
//
// Usage:
//
//	profile
//	profile -data-dir data -entity sensor.grid_power
//	profile -from 2024-11-01 -to 2024-12-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"energy_forecast/internal/config"
	"energy_forecast/internal/features"
	"energy_forecast/internal/model"
	"energy_forecast/internal/pipeline"
	"energy_forecast/internal/report"
)

// MonthBucket accumulates one calendar month of readings.
type MonthBucket struct {
	Month    time.Time
	KWh      float64
	Peak     float64
	Sum      float64
	Readings int
}

func (b MonthBucket) Mean() float64 {
	if b.Readings == 0 {
		return 0
	}
	return b.Sum / float64(b.Readings)
}

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dataDir := flag.String("data-dir", "", "directory containing zip archives (default \"data\")")
	extractDir := flag.String("extract-dir", "", "directory archives are extracted into (default \"extracted\")")
	entity := flag.String("entity", "", "entity to use from multi-entity exports")
	from := flag.String("from", "", "first day to include (YYYY-MM-DD)")
	to := flag.String("to", "", "first day to exclude (YYYY-MM-DD)")
	maxGap := flag.Duration("max-gap", 2*time.Hour, "longest gap bridged when integrating power to energy")
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

	start, err := parseDay(*from)
	if err != nil {
		log.Fatalf("Invalid -from: %v", err)
	}
	end, err := parseDay(*to)
	if err != nil {
		log.Fatalf("Invalid -to: %v", err)
	}

	ds, err := pipeline.Load(context.Background(), pipeline.OptionsFromConfig(cfg))
	if err != nil {
		log.Fatalf("Loading data: %v", err)
	}
	points := filterRange(ds.Points, start, end)
	if len(points) == 0 {
		log.Fatal("No data in the selected range")
	}

	first, last := points[0].DS, points[len(points)-1].DS
	days := last.Sub(first).Hours() / 24

	fmt.Println()
	fmt.Println("Demand Profile")
	fmt.Printf("  Data: %s to %s (%.0f days, %d rows, step %s)\n",
		first.Format("2006-01-02"), last.Format("2006-01-02"), days, len(points), features.InferStep(points))
	fmt.Printf("  Sources: %d used, %d skipped\n", len(ds.Sources), len(ds.Skipped))
	for _, s := range ds.Sources {
		fmt.Printf("    %-40s %s\n", s.ID, s.Schema)
	}
	fmt.Println()

	printMonthlyTable(monthly(points, *maxGap))
	fmt.Println()

	hourly, weekly := report.Profiles(points)
	report.PrintHourlyProfile(os.Stdout, hourly)
	fmt.Println()
	report.PrintWeekdayProfile(os.Stdout, weekly)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// filterRange keeps points in [start, end). Zero bounds are open.
func filterRange(points []model.Point, start, end time.Time) []model.Point {
	var out []model.Point
	for _, p := range points {
		if !start.IsZero() && p.DS.Before(start) {
			continue
		}
		if !end.IsZero() && !p.DS.Before(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// monthly groups points by calendar month. Energy is integrated with the
// trapezoid rule treating values as watts; gaps longer than maxGap are not
// bridged.
func monthly(points []model.Point, maxGap time.Duration) []MonthBucket {
	var out []MonthBucket
	idx := make(map[time.Time]int)
	bucket := func(t time.Time) *MonthBucket {
		m := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		i, ok := idx[m]
		if !ok {
			i = len(out)
			idx[m] = i
			out = append(out, MonthBucket{Month: m})
		}
		return &out[i]
	}

	for i, p := range points {
		b := bucket(p.DS)
		b.Sum += p.Y
		b.Readings++
		if p.Y > b.Peak {
			b.Peak = p.Y
		}
		if i == 0 {
			continue
		}
		prev := points[i-1]
		gap := p.DS.Sub(prev.DS)
		if gap <= 0 || gap > maxGap {
			continue
		}
		b.KWh += (prev.Y + p.Y) / 2 * gap.Hours() / 1000
	}
	return out
}

func printMonthlyTable(buckets []MonthBucket) {
	fmt.Printf("   %-7s │ %10s │ %10s │ %12s │ %7s\n", "Month", "Mean", "Peak", "Energy", "Rows")
	fmt.Println("  ─────────┼────────────┼────────────┼──────────────┼────────")
	var total float64
	for _, b := range buckets {
		total += b.KWh
		fmt.Printf("   %-7s │ %10.1f │ %10.1f │ %12s │ %7d\n",
			b.Month.Format("2006-01"), b.Mean(), b.Peak, formatKWh(b.KWh), b.Readings)
	}
	fmt.Println("  ─────────┼────────────┼────────────┼──────────────┼────────")
	fmt.Printf("   %-7s │ %10s │ %10s │ %12s │\n", "Total", "", "", formatKWh(total))
}

func formatKWh(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.1f MWh", v/1000)
	}
	return fmt.Sprintf("%.1f kWh", v)
}
