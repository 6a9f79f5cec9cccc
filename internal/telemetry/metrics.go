// Package telemetry defines the service's Prometheus collectors and the
// optional /metrics listener.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftwatch/driftwatch/internal/logger"
)

var (
	// MessagesProcessed counts consumed pipeline messages by outcome
	// (ok, alert, dropped).
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftwatch",
		Name:      "messages_processed_total",
		Help:      "Pipeline messages processed, by outcome.",
	}, []string{"outcome"})

	// DetectorFailures counts detector-local failures by detector name.
	DetectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftwatch",
		Name:      "detector_failures_total",
		Help:      "Detector runs aborted by a collaborator failure.",
	}, []string{"detector"})

	// AnomaliesDetected counts emitted anomalies by metric name.
	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftwatch",
		Name:      "anomalies_detected_total",
		Help:      "Anomalies emitted by detectors, by metric.",
	}, []string{"metric"})

	// CacheLookups counts baseline cache lookups by cache and result
	// (hit, miss, absent).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftwatch",
		Name:      "cache_lookups_total",
		Help:      "Baseline cache lookups, by cache and result.",
	}, []string{"cache", "result"})

	// CacheRefills counts refill round trips to the metrics database.
	CacheRefills = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftwatch",
		Name:      "cache_refills_total",
		Help:      "Baseline cache refill queries, by cache and result.",
	}, []string{"cache", "result"})

	// CacheEntries reports the current entry count per cache.
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "driftwatch",
		Name:      "cache_entries",
		Help:      "Current number of entries per baseline cache.",
	}, []string{"cache"})
)

const shutdownTimeout = 5 * time.Second

// Server exposes the Prometheus registry over HTTP.
type Server struct {
	srv *http.Server
	log logger.Logger
}

// NewServer creates a /metrics listener on addr.
func NewServer(addr string, log logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		log: log,
	}
}

// Start serves until Stop is called. Run it in its own goroutine.
func (s *Server) Start() {
	s.log.Info("metrics listener started", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("metrics listener failed", logger.Error(err))
	}
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("metrics listener shutdown", logger.Error(err))
	}
}
