package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/incident"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/registry"
	"github.com/sre-sentinel/sentinel/pkg/sampler"
)

// Server exposes the snapshot endpoints and the WebSocket subscription used
// by the dashboard. It is a pure reader: all state comes from the registry,
// the incident store, and the sampler rings, and live events from the bus.
type Server struct {
	registry *registry.Registry
	store    *incident.Store
	sampler  *sampler.Sampler
	bus      *bus.Bus
	logger   zerolog.Logger

	http *http.Server
}

// New creates the API server listening on port
func New(port int, reg *registry.Registry, store *incident.Store, smp *sampler.Sampler, b *bus.Bus) *Server {
	s := &Server{
		registry: reg,
		store:    store,
		sampler:  smp,
		bus:      b,
		logger:   log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/containers", s.handleContainers)
	r.Get("/incidents", s.handleIncidents)
	r.Get("/incidents/{id}", s.handleIncident)
	r.Get("/stats/{id}", s.handleStats)
	r.Get("/ws", s.handleWS)
	r.Handle("/metrics", metrics.Handler())

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. Fatal listener errors are reported on errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("API server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleIncident(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "incident not found"})
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	samples := s.sampler.Recent(chi.URLParam(r, "id"))
	if samples == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no samples for container"})
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// countRequests feeds the API request metrics
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
