// Package metrics exposes pipeline and backend measurements to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtzanidakis/storecrew/internal/llm"
)

type Metrics struct {
	taskAttempts    *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	taskAttemptsRun *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	backendAttempts *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		taskAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storecrew_task_attempts_total",
			Help: "Task attempts by outcome kind (ok on success)",
		}, []string{"task", "kind"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storecrew_task_duration_seconds",
			Help:    "Wall time of a task including retries",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"task", "status"}),
		taskAttemptsRun: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storecrew_task_attempts",
			Help:    "Attempts a task needed before it finished",
			Buckets: []float64{1, 2, 3, 5, 8},
		}, []string{"task"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storecrew_runs_total",
			Help: "Pipeline runs by final status",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storecrew_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		backendAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storecrew_backend_attempts_total",
			Help: "Language model calls by backend and result",
		}, []string{"backend", "result"}),
		backendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storecrew_backend_latency_seconds",
			Help:    "Language model call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
	}
}

// NewRegistry returns a fresh registry with the collectors registered.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, New(reg)
}

func (m *Metrics) TaskAttempt(taskID, kind string) {
	m.taskAttempts.WithLabelValues(taskID, kind).Inc()
}

func (m *Metrics) TaskFinished(taskID, status string, attempts int, d time.Duration) {
	m.taskDuration.WithLabelValues(taskID, status).Observe(d.Seconds())
	m.taskAttemptsRun.WithLabelValues(taskID).Observe(float64(attempts))
}

func (m *Metrics) RunFinished(status string, d time.Duration) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// BackendAttempt records one language model call. It is meant to be set
// as an llm.Chain's Observe hook.
func (m *Metrics) BackendAttempt(a llm.Attempt) {
	result := "ok"
	switch {
	case a.Skipped:
		result = "skipped"
	case a.Err != nil:
		result = "error"
	}
	m.backendAttempts.WithLabelValues(a.Name, result).Inc()
	if !a.Skipped {
		m.backendLatency.WithLabelValues(a.Name).Observe(a.Duration.Seconds())
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics endpoint %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics endpoint listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
