package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"energy_forecast/internal/evaluate"
)

// Exporter exposes forecast run metrics to Prometheus on its own registry.
type Exporter struct {
	Registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastRunSuccess prometheus.Gauge
	LastRunTime    prometheus.Gauge
	ForecastError  *prometheus.GaugeVec
	ForecastRows   prometheus.Gauge
	SkippedFiles   prometheus.Gauge
	WSClients      prometheus.Gauge
}

// NewExporter creates and registers all forecast metrics under namespace.
func NewExporter(namespace string) *Exporter {
	e := &Exporter{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by result (success/failure)",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a full pipeline run in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last pipeline run succeeded, 0 otherwise",
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pipeline run finished",
		}),
		ForecastError: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "forecast_error",
				Help:      "Held-out forecast error of the last successful run by model and metric",
			},
			[]string{"model", "metric"},
		),
		ForecastRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forecast_rows",
			Help:      "Number of evaluated rows in the last successful run",
		}),
		SkippedFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_files",
			Help:      "Number of input files skipped in the last run",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket clients",
		}),
	}

	e.Registry.MustRegister(
		e.RunsTotal,
		e.RunDuration,
		e.LastRunSuccess,
		e.LastRunTime,
		e.ForecastError,
		e.ForecastRows,
		e.SkippedFiles,
		e.WSClients,
	)
	return e
}

// RecordSuccess records a completed run and its held-out scores.
func (e *Exporter) RecordSuccess(report evaluate.Report, rows, skipped int, took time.Duration) {
	e.RunsTotal.WithLabelValues("success").Inc()
	e.RunDuration.Observe(took.Seconds())
	e.LastRunSuccess.Set(1)
	e.LastRunTime.Set(float64(time.Now().Unix()))
	e.ForecastRows.Set(float64(rows))
	e.SkippedFiles.Set(float64(skipped))

	for name, m := range map[string]evaluate.Metrics{"hybrid": report.Hybrid, "baseline": report.Baseline} {
		e.ForecastError.WithLabelValues(name, "mae").Set(m.MAE)
		e.ForecastError.WithLabelValues(name, "rmse").Set(m.RMSE)
		e.ForecastError.WithLabelValues(name, "mape").Set(m.MAPE)
		e.ForecastError.WithLabelValues(name, "smape").Set(m.SMAPE)
	}
}

// RecordFailure records a run that ended in an error.
func (e *Exporter) RecordFailure(took time.Duration) {
	e.RunsTotal.WithLabelValues("failure").Inc()
	e.RunDuration.Observe(took.Seconds())
	e.LastRunSuccess.Set(0)
	e.LastRunTime.Set(float64(time.Now().Unix()))
}

// Handler serves the exporter's registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{})
}
