// predict loads a model bundle written by forecast and projects demand beyond
// the last observation in the data directory. Each step feeds its corrected
// prediction back in as history for the next one.
//
// Usage:
//
//	predict
//	predict -model model/hybrid.json -steps 72
//	predict -noise -seed 7 -csv > sample.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"energy_forecast/internal/config"
	"energy_forecast/internal/monitoring"
	"energy_forecast/internal/pipeline"
)

func main() {
	modelPath := flag.String("model", "model/hybrid.json", "path to model bundle JSON")
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dataDir := flag.String("data-dir", "", "directory containing zip archives (default \"data\")")
	extractDir := flag.String("extract-dir", "", "directory archives are extracted into (default \"extracted\")")
	entity := flag.String("entity", "", "entity to use from multi-entity exports")
	steps := flag.Int("steps", 48, "number of steps to project")
	noise := flag.Bool("noise", false, "add noise drawn from the held-out error spread per hour")
	seed := flag.Uint64("seed", 0, "random seed for noise (0 = use current time)")
	csvOut := flag.Bool("csv", false, "output as CSV")
	flag.Parse()

	if *steps < 1 {
		log.Fatalf("-steps must be at least 1, got %d", *steps)
	}
	if *csvOut {
		// Keep stdout clean for the CSV.
		monitoring.SetLogger(func(format string, v ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", v...)
		})
	}

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

	ds, err := pipeline.Load(context.Background(), pipeline.OptionsFromConfig(cfg))
	if err != nil {
		log.Fatalf("Loading data: %v", err)
	}

	proj, err := bundle.Project(ds.Points, *steps)
	if err != nil {
		log.Fatalf("Projecting: %v", err)
	}
	if len(proj) < *steps {
		monitoring.Logf("Warning: only %d of %d steps could be projected (history too short for lag features)", len(proj), *steps)
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(*seed, *seed+1))

	if *csvOut {
		fmt.Println("ds,yhat,yhat_corrected,lower,upper")
	} else {
		fmt.Printf("Projecting %d steps with model %s (trained %s)\n",
			len(proj), bundle.RunID, bundle.CreatedAt.Format("2006-01-02 15:04"))
		if *noise {
			fmt.Println("Mode: with noise")
		}
		fmt.Println()
		fmt.Printf("%-16s │ %9s │ %9s │ %9s │ %9s\n", "Time", "Trend", "Forecast", "Lower", "Upper")
		fmt.Println("─────────────────┼───────────┼───────────┼───────────┼──────────")
	}

	for _, p := range proj {
		value := p.YHatCorrected
		if *noise {
			value += rng.NormFloat64() * bundle.ResidualStdByHour[p.DS.Hour()]
		}
		if *csvOut {
			fmt.Printf("%s,%.2f,%.2f,%.2f,%.2f\n", p.DS.Format("2006-01-02 15:04:05"), p.YHat, value, p.Lower, p.Upper)
		} else {
			fmt.Printf("%-16s │ %9.1f │ %9.1f │ %9.1f │ %9.1f\n", p.DS.Format("2006-01-02 15:04"), p.YHat, value, p.Lower, p.Upper)
		}
	}
}
