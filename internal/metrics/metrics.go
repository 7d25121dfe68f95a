// Package metrics exposes Prometheus collectors for the playback pipeline.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lingoplay_sessions_started_total",
		Help: "Sessions started, by source (generate or history)",
	}, []string{"source"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lingoplay_stage_duration_seconds",
		Help:    "Per-stage latency of session acquisition",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	StaleDiscards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lingoplay_stale_discards_total",
		Help: "Results dropped because their session was no longer current",
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lingoplay_errors_total",
		Help: "User-visible errors by stage",
	}, []string{"stage", "error_type"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lingoplay_cache_lookups_total",
		Help: "Audio cache lookups by level and result",
	}, []string{"level", "result"})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lingoplay_storage_errors_total",
		Help: "Absorbed storage failures by component and operation",
	}, []string{"component", "op"})

	SynthesisFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingoplay_synthesis_fallbacks_total",
		Help: "Audio syntheses retried in single-voice mode",
	})
)

// ObserveStage records how long a stage took since start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until the server fails. An empty addr
// disables the endpoint.
func Serve(addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Info("Serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", "error", err)
		}
	}()
}
