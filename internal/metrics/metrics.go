// Package metrics exposes Prometheus collectors for harness runs.
//
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stagectl/pkg/logging"
)

const namespace = "stagectl"

// Collector groups the harness's metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	stagesTotal       *prometheus.CounterVec
	stageReadiness    *prometheus.HistogramVec
	verificationTotal *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
	processesRunning  prometheus.Gauge
}

// New creates a collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestrated runs by outcome.",
		}, []string{"result"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of orchestrated runs, teardown included.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		stagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_total",
			Help:      "Stages by name and result.",
		}, []string{"stage", "result"}),
		stageReadiness: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_readiness_seconds",
			Help:      "Time from submitting a stage's task until its latch was released.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		verificationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification commands by result.",
		}, []string{"result"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Remote requests sent to running processes by outcome.",
		}, []string{"outcome"}),
		processesRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes_running",
			Help:      "Launcher tasks submitted and not yet torn down.",
		}),
	}
}

// RunFinished records a completed run.
func (c *Collector) RunFinished(success bool, d time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(outcomeLabel(success)).Inc()
	c.runDuration.Observe(d.Seconds())
}

// StageFinished records a stage result and, when it became ready, how long that took.
func (c *Collector) StageFinished(stage, result string, readyAfter time.Duration) {
	if c == nil {
		return
	}
	c.stagesTotal.WithLabelValues(stage, result).Inc()
	if readyAfter > 0 {
		c.stageReadiness.WithLabelValues(stage).Observe(readyAfter.Seconds())
	}
}

// VerificationFinished records one verification command.
func (c *Collector) VerificationFinished(result string) {
	if c == nil {
		return
	}
	c.verificationTotal.WithLabelValues(result).Inc()
}

// RequestFinished records one remote request outcome.
func (c *Collector) RequestFinished(success bool) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(outcomeLabel(success)).Inc()
}

// ProcessStarted and ProcessStopped track submitted launcher tasks.
func (c *Collector) ProcessStarted() {
	if c == nil {
		return
	}
	c.processesRunning.Inc()
}

func (c *Collector) ProcessStopped() {
	if c == nil {
		return
	}
	c.processesRunning.Dec()
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /healthz on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Metrics", "Listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
