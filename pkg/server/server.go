// Package server exposes the HTTP surface of the service: health, the
// animal proxy endpoints, the batch receiver, and the ETL trigger.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/animal-etl/pkg/cache"
	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/etl"
	"github.com/Sternrassler/animal-etl/pkg/logging"
	"github.com/Sternrassler/animal-etl/pkg/transform"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Options configures the HTTP surface.
type Options struct {
	Port            int
	UpstreamBaseURL string

	// BatchLimit is the largest batch the receiver accepts per request.
	BatchLimit int
}

// Server routes HTTP traffic to the proxy, receiver, and ETL trigger handlers.
type Server struct {
	router *chi.Mux
	client *client.Client
	runner *etl.Runner
	store  *cache.Store
	opts   Options
	logger zerolog.Logger
}

// New assembles the router. store may be nil-backed; the proxy endpoints
// then always go to the upstream.
func New(c *client.Client, runner *etl.Runner, store *cache.Store, opts Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		client: c,
		runner: runner,
		store:  store,
		opts:   opts,
		logger: logging.NewLogger("server"),
	}

	router.Get("/health", s.health)
	router.Get("/animals", s.listAnimals)
	router.Get("/animals/{id}", s.getAnimal)
	router.Post("/animals/v1/home", s.receiveAnimals)
	router.Post("/process", s.processAll)
	router.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the underlying router (for testing).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	s.logger.Info().Str("addr", addr).Msg("Server starting")
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "animal-etl",
		"version":   Version,
	})
}

// listAnimals proxies one upstream listing page, cache-assisted.
func (s *Server) listAnimals(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	var listing map[string]any
	key := cache.PageKey(page)
	if err := s.store.GetJSON(r.Context(), key, &listing); err == nil {
		writeJSON(w, http.StatusOK, listing)
		return
	}

	url := fmt.Sprintf("%s/animals/v1/animals?page=%d", s.opts.UpstreamBaseURL, page)
	if err := s.client.Get(r.Context(), url, &listing); err != nil {
		s.logger.Error().Err(err).Int("page", page).Msg("Listing proxy failed")
		writeError(w, http.StatusBadGateway, "failed to fetch animals")
		return
	}

	if err := s.store.SetJSON(r.Context(), key, listing); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache listing page")
	}
	writeJSON(w, http.StatusOK, listing)
}

// getAnimal proxies one record, cache-assisted. A missing record stays a 404.
func (s *Server) getAnimal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "animal id must be an integer")
		return
	}

	var rec transform.Record
	key := cache.RecordKey(id)
	if err := s.store.GetJSON(r.Context(), key, &rec); err == nil {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	url := fmt.Sprintf("%s/animals/v1/animals/%d", s.opts.UpstreamBaseURL, id)
	if err := s.client.Get(r.Context(), url, &rec); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("animal with id %d not found", id))
			return
		}
		s.logger.Error().Err(err).Int64("animal_id", id).Msg("Record proxy failed")
		writeError(w, http.StatusBadGateway, "failed to fetch animal details")
		return
	}

	if err := s.store.SetJSON(r.Context(), key, rec); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache record")
	}
	writeJSON(w, http.StatusOK, rec)
}

// receiveAnimals accepts a batch of transformed records. Batches over the
// configured limit are refused outright.
func (s *Server) receiveAnimals(w http.ResponseWriter, r *http.Request) {
	var batch []transform.Record
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array of records")
		return
	}

	if len(batch) > s.opts.BatchLimit {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("maximum %d animals per batch", s.opts.BatchLimit))
		return
	}

	s.logger.Info().Int("count", len(batch)).Msg("Received animal batch")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Successfully received %d animals", len(batch)),
		"count":   len(batch),
	})
}

// processAll runs the full ETL cycle and reports its summary.
func (s *Server) processAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("ETL run aborted")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
