package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/semmidev/pgvault/internal/domain"
)

// Metrics contains the collected run metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stepErrors    *prometheus.CounterVec
	pruned        prometheus.Counter
	lastSuccess   prometheus.Gauge
	lastTimestamp prometheus.Gauge
	lastSize      prometheus.Gauge
	lastDuration  prometheus.Gauge
}

// New generates new metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgvault_runs_total",
			Help: "total number of backup runs by final status",
		}, []string{"status"}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgvault_step_errors_total",
			Help: "total number of failed steps, fatal or not",
		}, []string{"step"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgvault_pruned_total",
			Help: "total number of expired remote copies deleted",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgvault_last_run_success",
			Help: "is 1 when the last run produced an offsite copy, otherwise 0",
		}),
		lastTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgvault_last_run_timestamp_seconds",
			Help: "unix time the last run finished",
		}),
		lastSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgvault_last_artifact_size_bytes",
			Help: "size of the last dump in bytes",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgvault_last_run_duration_seconds",
			Help: "wall time of the last run",
		}),
	}

	m.registry.MustRegister(
		m.runs,
		m.stepErrors,
		m.pruned,
		m.lastSuccess,
		m.lastTimestamp,
		m.lastSize,
		m.lastDuration,
	)

	return m
}

// Record updates the metrics from a finished run
func (m *Metrics) Record(result domain.RunResult, finished time.Time, duration time.Duration) {
	m.runs.With(prometheus.Labels{"status": string(result.Status)}).Inc()
	m.lastTimestamp.Set(float64(finished.Unix()))
	m.lastDuration.Set(duration.Seconds())

	if result.Failed() {
		m.lastSuccess.Set(0)
		m.stepErrors.With(prometheus.Labels{"step": string(fatalStep(result.Status))}).Inc()
	} else {
		m.lastSuccess.Set(1)
	}

	if result.Artifact != nil {
		m.lastSize.Set(float64(result.Artifact.Size))
	}

	m.pruned.Add(float64(len(result.Pruned)))

	for _, w := range result.Warnings {
		m.stepErrors.With(prometheus.Labels{"step": string(w.Step)}).Inc()
	}
}

func fatalStep(status domain.Status) domain.Step {
	switch status {
	case domain.StatusDumpFailed:
		return domain.StepDump
	case domain.StatusUploadFailed:
		return domain.StepUploadDaily
	default:
		return domain.Step(status)
	}
}

// WriteTextfile writes the current values for the node_exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, logger domain.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 1 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("Metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
