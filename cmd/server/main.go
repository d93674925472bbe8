package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"energy_forecast/internal/config"
	"energy_forecast/internal/monitoring"
	"energy_forecast/internal/pipeline"
	"energy_forecast/internal/report"
	"energy_forecast/internal/service"
	"energy_forecast/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dataDir := flag.String("data-dir", "", "directory containing zip archives (default \"data\")")
	extractDir := flag.String("extract-dir", "", "directory archives are extracted into (default \"extracted\")")
	entity := flag.String("entity", "", "entity to use from multi-entity exports")
	output := flag.String("output", "", "also write the artifact here after every run")
	schedule := flag.String("schedule", "", "cron spec for re-running the forecast, e.g. \"0 * * * *\"")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	addr := flag.String("addr", ":8080", "listen address")
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
	config.SetString(&cfg.Output, *output)
	config.SetString(&cfg.Schedule, *schedule)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid options: %v", err)
	}

	opts := pipeline.OptionsFromConfig(cfg)
	exporter := monitoring.NewExporter("energy_forecast")

	// Set up WebSocket hub and forecast service
	hub := ws.NewHub()
	svc := service.New(func(ctx context.Context) (*pipeline.Result, error) {
		return pipeline.Run(ctx, opts)
	}, serviceCallbacks(hub, cfg), exporter)

	handler := ws.NewHandler(hub, svc)
	handler.OnClientsChanged = func(n int) { exporter.WSClients.Set(float64(n)) }

	if err := svc.Refresh(context.Background()); err != nil {
		log.Printf("Warning: initial forecast failed: %v", err)
	}
	if spec := cfg.GetSchedule(); spec != "" {
		if err := svc.Schedule(spec); err != nil {
			log.Fatalf("Scheduling refresh: %v", err)
		}
		log.Printf("Refreshing forecast on schedule %q", spec)
		defer svc.Stop()
	}

	mux := newMux(svc, handler, exporter)

	// Serve frontend static files
	if _, err := os.Stat(*frontendDir); err == nil {
		log.Printf("Serving frontend from %s", *frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(*frontendDir)))
	} else {
		mux.HandleFunc("GET /{$}", chartHandler(svc))
	}

	log.Printf("Starting server on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

func newMux(f ws.Forecaster, wsHandler http.Handler, exporter *monitoring.Exporter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /forecast.json", artifactHandler(f))
	mux.HandleFunc("GET /status", statusHandler(f))
	mux.HandleFunc("POST /refresh", refreshHandler(f))
	mux.HandleFunc("GET /chart", chartHandler(f))
	mux.Handle("GET /metrics", exporter.Handler())
	mux.Handle("/ws", wsHandler)
	return mux
}

func artifactHandler(f ws.Forecaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := f.Latest()
		if res == nil {
			http.Error(w, "no forecast yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, report.NewArtifact(res.Rows))
	}
}

func statusHandler(f ws.Forecaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ws.RunStatusFromService(f.Status()))
	}
}

func refreshHandler(f ws.Forecaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !f.RefreshAsync() {
			http.Error(w, service.ErrBusy.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func chartHandler(f ws.Forecaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := f.Latest()
		if res == nil {
			http.Error(w, "no forecast yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.RenderHTML(w, res.Rows, res.Metrics); err != nil {
			log.Printf("Rendering chart: %v", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// serviceCallbacks wires the WebSocket bridge and, when an output path is set
// by flag or config file, the artifact writer. The server has no default
// output path.
func serviceCallbacks(hub *ws.Hub, cfg *config.ForecastConfig) fanout {
	callbacks := fanout{ws.NewBridge(hub)}
	if cfg.Output != nil && *cfg.Output != "" {
		callbacks = append(callbacks, artifactWriter{path: *cfg.Output})
	}
	return callbacks
}

// fanout delivers service events to several callbacks in order.
type fanout []service.Callback

func (f fanout) OnStatus(s service.Status) {
	for _, cb := range f {
		cb.OnStatus(s)
	}
}

func (f fanout) OnResult(r *pipeline.Result) {
	for _, cb := range f {
		cb.OnResult(r)
	}
}

// artifactWriter keeps the artifact file in step with the latest run.
type artifactWriter struct {
	path string
}

func (a artifactWriter) OnStatus(service.Status) {}

func (a artifactWriter) OnResult(r *pipeline.Result) {
	if err := report.WriteJSON(a.path, r.Rows); err != nil {
		log.Printf("Warning: writing %s: %v", a.path, err)
		return
	}
	log.Printf("Wrote %d rows to %s", len(r.Rows), a.path)
}
