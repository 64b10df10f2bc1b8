// Package telemetry exposes the monitor's aggregates over HTTP: Prometheus
// scrapes, JSON snapshots for dashboards, and a websocket live feed.
package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/centsible/infera/internal/backend"
	"github.com/centsible/infera/internal/config"
	"github.com/centsible/infera/internal/monitor"
)

// Server serves the telemetry API for one monitor.
type Server struct {
	logger         *zap.Logger
	monitor        *monitor.Monitor
	cors           config.CORSConfig
	streamInterval time.Duration
}

// NewServer creates the telemetry server. streamInterval controls how often
// the websocket feed pushes snapshots.
func NewServer(logger *zap.Logger, mon *monitor.Monitor, corsCfg config.CORSConfig, streamInterval time.Duration) *Server {
	if streamInterval <= 0 {
		streamInterval = 2 * time.Second
	}
	return &Server{
		logger:         logger,
		monitor:        mon,
		cors:           corsCfg,
		streamInterval: streamInterval,
	}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cors.AllowedOrigins,
		AllowedMethods:   s.cors.AllowedMethods,
		AllowedHeaders:   s.cors.AllowedHeaders,
		AllowCredentials: s.cors.AllowCredentials,
		MaxAge:           s.cors.MaxAge,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/stats/{backend}", s.handleBackendStats)
		r.Post("/reset", s.handleReset)
		r.Get("/stream", s.handleStream)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshots())
}

func (s *Server) handleBackendStats(w http.ResponseWriter, r *http.Request) {
	kind := backend.Kind(chi.URLParam(r, "backend"))
	if kind != backend.KindLocal && kind != backend.KindRemote {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown backend kind",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.Snapshot(kind))
}

// handleReset clears all aggregates. Aggregates never expire on their own;
// this is the one explicit way to drop them.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.monitor.Reset()
	s.logger.Info("telemetry aggregates reset")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
